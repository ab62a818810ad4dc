// Package stats describes the adapter statistics snapshot and the stat stream that produces it.
//
// A Snapshot is one point-in-time read of every port and stream counter. Callers allocate a
// Snapshot and hand it to Source.ReadStats, which populates it in place.
package stats

import (
	"time"

	"gopkg.in/yaml.v3"
)

// SnapshotVersion is the only snapshot layout version this package understands.
const SnapshotVersion = 1

// RXCounters are the RMON1 style receive counters of one port.
type RXCounters struct {
	Pkts      uint64 `yaml:"pkts"`
	Drops     uint64 `yaml:"drops"`
	Multicast uint64 `yaml:"multicast"`
	VLAN      uint64 `yaml:"vlan"`
	Octets    uint64 `yaml:"octets"`
}

// PortStats holds the counters of one physical port.
type PortStats struct {
	// RMON1Valid is false when the adapter does not support the RMON1 counter group on this
	// port, in which case RX must not be trusted.
	RMON1Valid bool       `yaml:"rmon1_valid"`
	RX         RXCounters `yaml:"rx"`
}

// UnmarshalYAML defaults RMON1Valid to true when the document does not mention it.
func (p *PortStats) UnmarshalYAML(value *yaml.Node) error {
	type plain PortStats
	raw := plain{RMON1Valid: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*p = PortStats(raw)
	return nil
}

// PktCount is a packet and byte counter pair.
type PktCount struct {
	Pkts   uint64 `yaml:"pkts"`
	Octets uint64 `yaml:"octets"`
}

// StreamStats holds the counters of one logical stream.
type StreamStats struct {
	Flush   PktCount `yaml:"flush"`
	Forward PktCount `yaml:"forward"`
	Drop    PktCount `yaml:"drop"`
}

// Snapshot is one versioned read of the adapter statistics.
type Snapshot struct {
	Version   int           `yaml:"version"`
	Timestamp time.Time     `yaml:"timestamp"`
	Ports     []PortStats   `yaml:"ports"`
	Streams   []StreamStats `yaml:"streams"`
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Version:   s.Version,
		Timestamp: s.Timestamp,
		Ports:     append([]PortStats(nil), s.Ports...),
		Streams:   append([]StreamStats(nil), s.Streams...),
	}
	return out
}

// CopyTo overwrites dst with the contents of s, reusing dst's slices where possible.
func (s *Snapshot) CopyTo(dst *Snapshot) {
	dst.Version = s.Version
	dst.Timestamp = s.Timestamp
	dst.Ports = append(dst.Ports[:0], s.Ports...)
	dst.Streams = append(dst.Streams[:0], s.Streams...)
}

// since returns cur minus *base. A counter below its baseline was reset by the hardware;
// the baseline is moved to zero so this and every later read count from the reset.
func since(cur uint64, base *uint64) uint64 {
	if cur < *base {
		*base = 0
	}
	return cur - *base
}

func (c RXCounters) sub(base *RXCounters) RXCounters {
	return RXCounters{
		Pkts:      since(c.Pkts, &base.Pkts),
		Drops:     since(c.Drops, &base.Drops),
		Multicast: since(c.Multicast, &base.Multicast),
		VLAN:      since(c.VLAN, &base.VLAN),
		Octets:    since(c.Octets, &base.Octets),
	}
}

func (c PktCount) sub(base *PktCount) PktCount {
	return PktCount{
		Pkts:   since(c.Pkts, &base.Pkts),
		Octets: since(c.Octets, &base.Octets),
	}
}

func (s StreamStats) sub(base *StreamStats) StreamStats {
	return StreamStats{
		Flush:   s.Flush.sub(&base.Flush),
		Forward: s.Forward.sub(&base.Forward),
		Drop:    s.Drop.sub(&base.Drop),
	}
}
