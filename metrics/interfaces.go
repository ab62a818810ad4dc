// Package metrics provides the label-indexed metric model shared by the exporters.
//
// A Registry owns a set of named Families. Each Family has a fixed kind (counter or gauge)
// and fans out into one Metric per distinct label set. Registries are safe for concurrent use:
// one goroutine may be creating new Metrics while another collects the current state for
// serialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Kind is the type of the Metrics in a Family.
type Kind int

const (
	// KindCounter families hold monotonically increasing values.
	KindCounter Kind = iota
	// KindGauge families hold values that may be set to anything.
	KindGauge
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	default:
		return "unknown"
	}
}

// Metric is one time series within a Family.
type Metric interface {
	// Kind returns the kind of the owning Family.
	Kind() Kind
	// Labels returns a copy of the label set identifying this Metric.
	Labels() prometheus.Labels
	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that represents a single numerical value that can go up and down.
type Gauge interface {
	Metric
	// Set sets the Gauge to the given value.
	Set(float64)
}

// Counter is a metric that represents a single monotonically increasing counter.
type Counter interface {
	Metric
	// Inc increments the counter by 1.
	Inc()
	// Add adds the given value to the counter. Negative values are ignored.
	Add(float64)
}
