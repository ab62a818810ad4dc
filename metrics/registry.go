package metrics

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ErrFamilyConflict is returned when a family name is requested with a different kind or
// different label names than it was first registered with.
var ErrFamilyConflict = errors.New("family already registered with a different definition")

// Registry owns all Families for one metrics sink.
//
// Two views of the registered families are kept. The unlabeled view is what gets pushed to a
// gateway, which attaches the instance identity itself through its grouping key. The labeled
// view carries the constant labels on every sample and backs Collect.
type Registry struct {
	prefix      string
	constLabels prometheus.Labels

	prom    *prometheus.Registry
	labeled *prometheus.Registry

	mu       sync.Mutex
	families map[string]*Family
}

// Option configures a Registry.
type Option func(*Registry)

// WithPrefix prefixes every family name with prefix followed by an underscore.
func WithPrefix(prefix string) Option {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// WithConstLabels attaches labels to every metric returned by Collect.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(r *Registry) {
		r.constLabels = copyLabels(labels)
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		prom:     prometheus.NewRegistry(),
		families: make(map[string]*Family),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.labeled = r.prom
	if len(r.constLabels) > 0 {
		r.labeled = prometheus.NewRegistry()
	}
	return r
}

// GetOrCreateFamily returns the family called name, creating it on first use.
// The registry prefix is applied to name. Requesting an existing name with a different kind
// or different label names returns ErrFamilyConflict.
func (r *Registry) GetOrCreateFamily(name, help string, kind Kind, labelNames ...string) (*Family, error) {
	fullName := name
	if r.prefix != "" {
		fullName = r.prefix + "_" + name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.families[fullName]; ok {
		if f.kind != kind || !slices.Equal(f.labelNames, labelNames) {
			return nil, fmt.Errorf("family %q (%s %v) requested as %s %v: %w",
				fullName, f.kind, f.labelNames, kind, labelNames, ErrFamilyConflict)
		}
		return f, nil
	}

	f := newFamily(fullName, help, kind, labelNames)
	if err := r.register(f.collector()); err != nil {
		return nil, fmt.Errorf("registering family %q: %w", fullName, err)
	}
	r.families[fullName] = f
	return f, nil
}

// RegisterCollector adds an arbitrary collector, such as the Go runtime collector.
func (r *Registry) RegisterCollector(c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(c)
}

func (r *Registry) register(c prometheus.Collector) error {
	if err := r.prom.Register(c); err != nil {
		return err
	}
	if r.labeled == r.prom {
		return nil
	}
	if err := prometheus.WrapRegistererWith(r.constLabels, r.labeled).Register(c); err != nil {
		r.prom.Unregister(c)
		return err
	}
	return nil
}

// Family returns a previously created family by its full name.
func (r *Registry) Family(name string) (*Family, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[name]
	return f, ok
}

// Collect returns the current state of every family, sorted by name, with the constant labels
// applied. Each metric value is read atomically; there is no atomicity across families.
func (r *Registry) Collect() ([]*dto.MetricFamily, error) {
	return r.labeled.Gather()
}

// Gather implements prometheus.Gatherer on top of Collect.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.Collect()
}

// Unlabeled returns a gatherer for the registered families without the constant labels.
func (r *Registry) Unlabeled() prometheus.Gatherer {
	return r.prom
}
