package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrVersionMismatch is returned when a snapshot has a layout version other than
// SnapshotVersion.
var ErrVersionMismatch = errors.New("unsupported snapshot version")

// Mode selects how ReadStats waits for data.
type Mode int

const (
	// ModePoll returns the most recent counters immediately.
	ModePoll Mode = iota
	// ModeBlocking waits for the next counter update.
	ModeBlocking
)

func (m Mode) String() string {
	switch m {
	case ModePoll:
		return "poll"
	case ModeBlocking:
		return "blocking"
	default:
		return "unknown"
	}
}

// Source is a stat stream.
type Source interface {
	// ReadStats populates s with one snapshot. When clear is true the counters are reset
	// after the read so later reads report activity since this call.
	ReadStats(ctx context.Context, mode Mode, clear bool, s *Snapshot) error
	// Close releases the stream.
	Close() error
}

// baseline implements read-with-clear on top of sources whose counters cannot be reset.
type baseline struct {
	mu   sync.Mutex
	base *Snapshot
}

// apply rewrites s relative to the stored baseline. With clear set, s becomes the new
// baseline and the caller sees zeroed counters. Counters found below their baseline are
// re-based at zero.
func (b *baseline) apply(s *Snapshot, clear bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clear {
		b.base = s.Clone()
	}
	if b.base == nil {
		return
	}
	for i := range s.Ports {
		if i < len(b.base.Ports) {
			s.Ports[i].RX = s.Ports[i].RX.sub(&b.base.Ports[i].RX)
		}
	}
	for i := range s.Streams {
		if i < len(b.base.Streams) {
			s.Streams[i] = s.Streams[i].sub(&b.base.Streams[i])
		}
	}
}

// decode parses a YAML snapshot document into s.
func decode(data []byte, s *Snapshot) error {
	var doc Snapshot
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	if doc.Version != SnapshotVersion {
		return fmt.Errorf("snapshot version %d, want %d: %w", doc.Version, SnapshotVersion, ErrVersionMismatch)
	}
	doc.CopyTo(s)
	return nil
}
