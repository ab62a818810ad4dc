package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ErrWrongKind is returned when a typed accessor is used on a Family of the other kind.
var ErrWrongKind = errors.New("wrong metric kind")

// Family is a named group of Metrics sharing a help string, a kind and a set of label names.
type Family struct {
	name       string
	help       string
	kind       Kind
	labelNames []string

	gaugeVec   *prometheus.GaugeVec
	counterVec *prometheus.CounterVec

	mu      sync.Mutex
	metrics map[string]Metric
}

func newFamily(name, help string, kind Kind, labelNames []string) *Family {
	f := &Family{
		name:       name,
		help:       help,
		kind:       kind,
		labelNames: append([]string(nil), labelNames...),
		metrics:    make(map[string]Metric),
	}
	switch kind {
	case KindGauge:
		f.gaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames)
	default:
		f.counterVec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames)
	}
	return f
}

// Name returns the fully qualified family name, including any registry prefix.
func (f *Family) Name() string { return f.name }

// Help returns the help string.
func (f *Family) Help() string { return f.help }

// Kind returns the kind of every Metric in the family.
func (f *Family) Kind() Kind { return f.kind }

// LabelNames returns the label names every label set in this family must carry.
func (f *Family) LabelNames() []string { return append([]string(nil), f.labelNames...) }

func (f *Family) collector() prometheus.Collector {
	if f.kind == KindGauge {
		return f.gaugeVec
	}
	return f.counterVec
}

// GetOrCreateMetric returns the Metric for labels, creating a zero valued one if this label
// set has not been seen before. Equal label sets always yield the same Metric.
func (f *Family) GetOrCreateMetric(labels prometheus.Labels) (Metric, error) {
	key := labelsKey(labels)

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.metrics[key]; ok {
		return m, nil
	}

	var m Metric
	switch f.kind {
	case KindGauge:
		g, err := f.gaugeVec.GetMetricWith(labels)
		if err != nil {
			return nil, fmt.Errorf("family %q: %w", f.name, err)
		}
		m = &gauge{labels: copyLabels(labels), gauge: g}
	default:
		c, err := f.counterVec.GetMetricWith(labels)
		if err != nil {
			return nil, fmt.Errorf("family %q: %w", f.name, err)
		}
		m = &counter{labels: copyLabels(labels), counter: c}
	}
	f.metrics[key] = m
	return m, nil
}

// Gauge is GetOrCreateMetric for gauge families.
func (f *Family) Gauge(labels prometheus.Labels) (Gauge, error) {
	if f.kind != KindGauge {
		return nil, fmt.Errorf("family %q is a %s: %w", f.name, f.kind, ErrWrongKind)
	}
	m, err := f.GetOrCreateMetric(labels)
	if err != nil {
		return nil, err
	}
	return m.(Gauge), nil
}

// Counter is GetOrCreateMetric for counter families.
func (f *Family) Counter(labels prometheus.Labels) (Counter, error) {
	if f.kind != KindCounter {
		return nil, fmt.Errorf("family %q is a %s: %w", f.name, f.kind, ErrWrongKind)
	}
	m, err := f.GetOrCreateMetric(labels)
	if err != nil {
		return nil, err
	}
	return m.(Counter), nil
}

// Len returns the number of distinct label sets seen so far.
func (f *Family) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.metrics)
}

// gauge wraps prometheus.Gauge to implement Gauge.
type gauge struct {
	labels prometheus.Labels
	gauge  prometheus.Gauge
}

func (g *gauge) Kind() Kind                { return KindGauge }
func (g *gauge) Labels() prometheus.Labels { return copyLabels(g.labels) }
func (g *gauge) Set(v float64)             { g.gauge.Set(v) }

func (g *gauge) Value() float64 {
	var m dto.Metric
	if err := g.gauge.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// counter wraps prometheus.Counter to implement Counter.
type counter struct {
	labels  prometheus.Labels
	counter prometheus.Counter
}

func (c *counter) Kind() Kind                { return KindCounter }
func (c *counter) Labels() prometheus.Labels { return copyLabels(c.labels) }
func (c *counter) Inc()                      { c.counter.Inc() }

// Add drops negative deltas; prometheus.Counter would panic on them.
func (c *counter) Add(v float64) {
	if v < 0 {
		return
	}
	c.counter.Add(v)
}

func (c *counter) Value() float64 {
	var m dto.Metric
	if err := c.counter.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// labelsKey builds an order independent map key for a label set.
func labelsKey(labels prometheus.Labels) string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(0xff)
	}
	return b.String()
}

func copyLabels(labels prometheus.Labels) prometheus.Labels {
	out := make(prometheus.Labels, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
