package collector

import (
	"strconv"

	"github.com/nomis52/ntexporter/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type handleKey struct {
	index   int
	subtype string
}

// handles caches the gauge for each (index, subtype) pair of one family so the label maps and
// index strings are only built the first time a port or stream is seen.
type handles struct {
	family *metrics.Family
	gauges map[handleKey]metrics.Gauge
}

func newHandles(f *metrics.Family) *handles {
	return &handles{
		family: f,
		gauges: make(map[handleKey]metrics.Gauge),
	}
}

// set updates the gauge for index. An empty subtypeLabel means the family has only the index
// label.
func (h *handles) set(index int, indexLabel, subtypeLabel, subtype string, value uint64) error {
	key := handleKey{index: index, subtype: subtype}
	g, ok := h.gauges[key]
	if !ok {
		labels := prometheus.Labels{indexLabel: strconv.Itoa(index)}
		if subtypeLabel != "" {
			labels[subtypeLabel] = subtype
		}
		var err error
		g, err = h.family.Gauge(labels)
		if err != nil {
			return err
		}
		h.gauges[key] = g
	}
	g.Set(float64(value))
	return nil
}

// len returns the number of cached handles.
func (h *handles) len() int {
	return len(h.gauges)
}
