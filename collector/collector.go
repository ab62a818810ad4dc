// Package collector maps adapter statistics snapshots onto registry gauges.
//
// The Adapter performs no I/O. Each call to Update takes one snapshot and sets one gauge per
// (port, counter) and (stream, counter) pair. Snapshot values are hardware cumulative totals,
// so repeated updates with the same snapshot leave the registry unchanged.
package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nomis52/ntexporter/metrics"
	"github.com/nomis52/ntexporter/stats"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultMaxPorts is the port limit used when none is configured.
	DefaultMaxPorts = 8
	// DefaultMaxStreams is the stream limit used when none is configured.
	DefaultMaxStreams = 256
)

// Label names and values used by the exported families.
const (
	LabelPort             = "port"
	LabelPktsCount        = "pkts_count"
	LabelStreamID         = "stream_id"
	LabelStreamPktsCount  = "stream_pkts_count"
	LabelStreamBytesCount = "stream_bytes_count"
	LabelReason           = "reason"

	CountTotal     = "total"
	CountDrops     = "drops"
	CountMulticast = "multicast"
	CountVLAN      = "vlan"

	CountFlush   = "flush"
	CountForward = "forward"
	CountDrop    = "drop"

	reasonRMON1Unsupported = "rmon1_unsupported"
	reasonVersionMismatch  = "version_mismatch"
)

// ErrRMON1Unsupported is returned when a port in the snapshot reports that the adapter
// does not support the RMON1 counter group. No gauges are touched in that case.
var ErrRMON1Unsupported = errors.New("RMON1 counters unsupported by adapter")

// Adapter translates statistics snapshots into registry mutations.
type Adapter struct {
	maxPorts   int
	maxStreams int
	diag       *metrics.Registry
	logger     *slog.Logger

	portPkts    *handles
	portBytes   *handles
	streamPkts  *handles
	streamBytes *handles
	skipped     *metrics.Family

	mu sync.Mutex
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMaxPorts bounds the number of ports read from each snapshot.
func WithMaxPorts(n int) Option {
	return func(a *Adapter) {
		a.maxPorts = n
	}
}

// WithMaxStreams bounds the number of streams read from each snapshot.
func WithMaxStreams(n int) Option {
	return func(a *Adapter) {
		a.maxStreams = n
	}
}

// WithDiagnostics records skipped updates as a counter in reg.
func WithDiagnostics(reg *metrics.Registry) Option {
	return func(a *Adapter) {
		a.diag = reg
	}
}

// WithLogger sets the logger for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates the adapter families in reg.
func New(reg *metrics.Registry, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		maxPorts:   DefaultMaxPorts,
		maxStreams: DefaultMaxStreams,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxPorts < 0 || a.maxStreams < 0 {
		return nil, fmt.Errorf("port and stream limits must not be negative")
	}

	families := []struct {
		dst    **handles
		name   string
		help   string
		labels []string
	}{
		{&a.portPkts, "port_rx_pkts", "RMON1 receive packet counters per port.", []string{LabelPort, LabelPktsCount}},
		{&a.portBytes, "port_rx_bytes", "RMON1 received bytes per port.", []string{LabelPort}},
		{&a.streamPkts, "stream_pkts", "Packets per stream by outcome.", []string{LabelStreamID, LabelStreamPktsCount}},
		{&a.streamBytes, "stream_bytes", "Bytes per stream by outcome.", []string{LabelStreamID, LabelStreamBytesCount}},
	}
	for _, f := range families {
		fam, err := reg.GetOrCreateFamily(f.name, f.help, metrics.KindGauge, f.labels...)
		if err != nil {
			return nil, err
		}
		*f.dst = newHandles(fam)
	}

	if a.diag != nil {
		fam, err := a.diag.GetOrCreateFamily("collector_skipped_updates_total",
			"Snapshots that were not applied to the registry, by reason.", metrics.KindCounter, LabelReason)
		if err != nil {
			return nil, err
		}
		a.skipped = fam
	}
	return a, nil
}

// Update applies one snapshot. It returns ErrRMON1Unsupported, or stats.ErrVersionMismatch,
// without touching any gauge when the snapshot cannot be trusted. Sources already reject
// unknown versions while decoding; the version check here covers snapshots built in code.
func (a *Adapter) Update(s *stats.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s.Version != stats.SnapshotVersion {
		a.skip(reasonVersionMismatch)
		return fmt.Errorf("snapshot version %d: %w", s.Version, stats.ErrVersionMismatch)
	}

	ports := min(len(s.Ports), a.maxPorts)
	streams := min(len(s.Streams), a.maxStreams)

	for i := 0; i < ports; i++ {
		if !s.Ports[i].RMON1Valid {
			a.skip(reasonRMON1Unsupported)
			a.logger.Warn("skipping statistics update", "port", i, "reason", reasonRMON1Unsupported)
			return fmt.Errorf("port %d: %w", i, ErrRMON1Unsupported)
		}
	}

	for i := 0; i < ports; i++ {
		if err := a.updatePort(i, s.Ports[i].RX); err != nil {
			return err
		}
	}
	for i := 0; i < streams; i++ {
		if err := a.updateStream(i, s.Streams[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) updatePort(port int, rx stats.RXCounters) error {
	values := []struct {
		kind  string
		value uint64
	}{
		{CountTotal, rx.Pkts},
		{CountDrops, rx.Drops},
		{CountMulticast, rx.Multicast},
		{CountVLAN, rx.VLAN},
	}
	for _, v := range values {
		if err := a.portPkts.set(port, LabelPort, LabelPktsCount, v.kind, v.value); err != nil {
			return err
		}
	}
	return a.portBytes.set(port, LabelPort, "", "", rx.Octets)
}

func (a *Adapter) updateStream(stream int, st stats.StreamStats) error {
	values := []struct {
		kind   string
		counts stats.PktCount
	}{
		{CountFlush, st.Flush},
		{CountForward, st.Forward},
		{CountDrop, st.Drop},
	}
	for _, v := range values {
		if err := a.streamPkts.set(stream, LabelStreamID, LabelStreamPktsCount, v.kind, v.counts.Pkts); err != nil {
			return err
		}
		if err := a.streamBytes.set(stream, LabelStreamID, LabelStreamBytesCount, v.kind, v.counts.Octets); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) skip(reason string) {
	if a.skipped == nil {
		return
	}
	c, err := a.skipped.Counter(prometheus.Labels{LabelReason: reason})
	if err != nil {
		a.logger.Error("recording skipped update", "error", err)
		return
	}
	c.Inc()
}
