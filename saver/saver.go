// Package saver periodically writes a registry snapshot to a local file.
//
// The file uses the Prometheus text exposition format (the node_exporter textfile format) and
// is replaced atomically on every save, so readers never see a partial snapshot. The saver runs
// on its own goroutine and schedule, independent of the push loop.
//
// Example usage:
//
//	s, err := saver.New(saver.Config{Period: 5 * time.Second, Filename: "/var/lib/ntexporter/metrics.prom"}, reg)
//	if err != nil {
//	    return err
//	}
//	if err := s.Start(); err != nil {
//	    return err
//	}
//	defer s.Stop()
package saver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

var (
	// ErrAlreadyRunning is returned by Start when the saver is not idle.
	ErrAlreadyRunning = errors.New("saver already running")
	// ErrInvalidPeriod is returned for periods shorter than MinPeriod or not a whole number
	// of seconds.
	ErrInvalidPeriod = errors.New("invalid save period")
)

// MinPeriod is the shortest supported save period. Periods must be whole seconds; the
// schedule has one second resolution.
const MinPeriod = time.Second

// State is the lifecycle state of a Saver.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config holds the fixed parameters of a Saver.
type Config struct {
	Period   time.Duration
	Filename string
}

// Saver writes the gatherer's state to Filename every Period.
type Saver struct {
	filename string
	schedule cron.Schedule
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Saver.
type Option func(*Saver)

// WithLogger sets the logger used for failed writes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Saver) {
		s.logger = logger
	}
}

// New creates an idle Saver.
func New(cfg Config, gatherer prometheus.Gatherer, opts ...Option) (*Saver, error) {
	if cfg.Period < MinPeriod {
		return nil, fmt.Errorf("period %s is shorter than %s: %w", cfg.Period, MinPeriod, ErrInvalidPeriod)
	}
	if cfg.Period%time.Second != 0 {
		return nil, fmt.Errorf("period %s is not a whole number of seconds: %w", cfg.Period, ErrInvalidPeriod)
	}
	if cfg.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	s := &Saver{
		filename: cfg.Filename,
		schedule: cron.Every(cfg.Period),
		gatherer: gatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the worker goroutine. It returns ErrAlreadyRunning unless the saver is idle.
func (s *Saver) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRunning

	go s.loop(ctx, s.done)

	s.logger.Info("snapshot saver started", "filename", s.filename)
	return nil
}

// Stop asks the worker to exit and waits until it has. A write in progress is allowed to
// finish; no write starts after Stop returns. Stopping an idle saver does nothing.
// Stop must not be called from the worker goroutine.
func (s *Saver) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return
	case StateRunning:
		s.state = StateStopping
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	if s.done == done {
		s.state = StateIdle
		s.cancel = nil
		s.done = nil
		s.logger.Info("snapshot saver stopped", "filename", s.filename)
	}
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Saver) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Save writes one snapshot now.
func (s *Saver) Save() error {
	if err := prometheus.WriteToTextfile(s.filename, s.gatherer); err != nil {
		return fmt.Errorf("writing snapshot to %s: %w", s.filename, err)
	}
	return nil
}

// loop is the worker goroutine.
func (s *Saver) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		wait := time.Until(s.schedule.Next(time.Now()))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// a cancellation racing with the timer wins
		if ctx.Err() != nil {
			return
		}
		if err := s.Save(); err != nil {
			s.logger.Warn("snapshot save failed", "error", err)
			continue
		}
		s.logger.Debug("snapshot saved", "filename", s.filename)
	}
}
