package stats

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

const defaultWatchInterval = 100 * time.Millisecond

// FileSource replays snapshots from a YAML document on disk. Something else (a vendor tool,
// a test) rewrites the document as counters change.
type FileSource struct {
	path          string
	watchInterval time.Duration

	baseline baseline

	mu      sync.Mutex
	lastMod time.Time
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithWatchInterval sets how often ModeBlocking reads check the file for changes.
func WithWatchInterval(d time.Duration) FileOption {
	return func(f *FileSource) {
		f.watchInterval = d
	}
}

// NewFileSource opens a stat stream backed by the document at path. The file must exist.
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening stat stream: %w", err)
	}
	f := &FileSource{
		path:          path,
		watchInterval: defaultWatchInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// ReadStats implements Source. ModeBlocking waits until the file has been modified since the
// previous read.
func (f *FileSource) ReadStats(ctx context.Context, mode Mode, clear bool, s *Snapshot) error {
	if mode == ModeBlocking {
		if err := f.waitForChange(ctx); err != nil {
			return err
		}
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("reading stat stream: %w", err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading stat stream: %w", err)
	}
	if err := decode(data, s); err != nil {
		return err
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = info.ModTime()
	}

	f.mu.Lock()
	f.lastMod = info.ModTime()
	f.mu.Unlock()

	f.baseline.apply(s, clear)
	return nil
}

func (f *FileSource) waitForChange(ctx context.Context) error {
	f.mu.Lock()
	last := f.lastMod
	f.mu.Unlock()

	ticker := time.NewTicker(f.watchInterval)
	defer ticker.Stop()

	for {
		info, err := os.Stat(f.path)
		if err == nil && info.ModTime().After(last) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close implements Source.
func (f *FileSource) Close() error {
	return nil
}
