// Package exporter drives the polling cadence: read adapter counters, update the registry,
// push the registry to the gateway and record how the push went.
//
// Per-cycle failures never stop the loop. They are logged and counted in the
// self-observability registry, which is pushed along with everything else, so a failing
// gateway shows up as a skewed distribution of return codes rather than a crash.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nomis52/ntexporter/collector"
	"github.com/nomis52/ntexporter/gateway"
	"github.com/nomis52/ntexporter/metrics"
	"github.com/nomis52/ntexporter/stats"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultPeriod is the poll period used when none is configured.
	DefaultPeriod = time.Second
	// DefaultReadTimeout bounds a single statistics read.
	DefaultReadTimeout = 10 * time.Second
)

// LabelReturnCode labels the push outcome counter.
const LabelReturnCode = "return_code"

// Updater applies a snapshot to the metric registry.
type Updater interface {
	Update(*stats.Snapshot) error
}

// Exporter is the push loop.
type Exporter struct {
	source  stats.Source
	updater Updater
	gateway gateway.Gateway
	period      time.Duration
	readTimeout time.Duration
	logger      *slog.Logger

	pushes       *metrics.Family
	readFailures metrics.Counter

	// reused across cycles; nothing outside RunOnce holds on to it
	snapshot stats.Snapshot
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPeriod sets the time between the end of one cycle and the start of the next.
func WithPeriod(d time.Duration) Option {
	return func(e *Exporter) {
		e.period = d
	}
}

// WithReadTimeout bounds every statistics read. A read that runs past it counts as a read
// failure and the cycle carries on with the push.
func WithReadTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		e.readTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// New creates an Exporter. Push outcomes and read failures are recorded in self.
func New(source stats.Source, updater Updater, gw gateway.Gateway, self *metrics.Registry, opts ...Option) (*Exporter, error) {
	e := &Exporter{
		source:  source,
		updater: updater,
		gateway: gw,
		period:      DefaultPeriod,
		readTimeout: DefaultReadTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.period <= 0 {
		return nil, fmt.Errorf("period must be positive")
	}
	if e.readTimeout <= 0 {
		return nil, fmt.Errorf("read timeout must be positive")
	}

	pushes, err := self.GetOrCreateFamily("exporter_push_total",
		"Push attempts by HTTP return code; -1 means no response was received.",
		metrics.KindCounter, LabelReturnCode)
	if err != nil {
		return nil, err
	}
	e.pushes = pushes

	failures, err := self.GetOrCreateFamily("exporter_stat_read_failures_total",
		"Statistics reads that failed.", metrics.KindCounter)
	if err != nil {
		return nil, err
	}
	e.readFailures, err = failures.Counter(nil)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Run clears the stat stream once, so exported values count from process start, and then
// runs one cycle per period until ctx is cancelled. Only the initial clear can make Run
// return an error.
func (e *Exporter) Run(ctx context.Context) error {
	if err := e.read(ctx, true); err != nil {
		return fmt.Errorf("clearing stat stream: %w", err)
	}
	e.logger.Info("exporter started", "period", e.period)

	for {
		e.RunOnce(ctx)

		select {
		case <-ctx.Done():
			e.logger.Info("exporter shutting down")
			return nil
		case <-time.After(e.period):
		}
	}
}

// RunOnce performs a single read, update and push cycle.
func (e *Exporter) RunOnce(ctx context.Context) {
	if err := e.read(ctx, false); err != nil {
		e.readFailures.Inc()
		e.logger.Error("reading statistics failed", "error", err)
	} else if err := e.updater.Update(&e.snapshot); err != nil {
		if errors.Is(err, collector.ErrRMON1Unsupported) {
			e.logger.Warn("statistics update skipped", "reason", err)
		} else {
			e.logger.Error("statistics update failed", "error", err)
		}
	}

	if ctx.Err() != nil {
		return
	}

	code, err := e.gateway.Push(ctx)
	e.RecordPush(code)
	if err != nil {
		e.logger.Warn("push failed", "return_code", code, "error", err)
		return
	}
	e.logger.Debug("push completed", "return_code", code)
}

func (e *Exporter) read(ctx context.Context, clear bool) error {
	ctx, cancel := context.WithTimeout(ctx, e.readTimeout)
	defer cancel()
	return e.source.ReadStats(ctx, stats.ModePoll, clear, &e.snapshot)
}

// RecordPush counts one push attempt that returned code.
func (e *Exporter) RecordPush(code int) {
	c, err := e.pushes.Counter(prometheus.Labels{LabelReturnCode: strconv.Itoa(code)})
	if err != nil {
		e.logger.Error("recording push outcome", "error", err)
		return
	}
	c.Inc()
}
