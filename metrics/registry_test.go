package metrics

import (
	"bytes"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreateFamily(t *testing.T) {
	reg := NewRegistry()

	f1, err := reg.GetOrCreateFamily("rx_pkts", "Received packets", KindGauge, "port")
	require.NoError(t, err)
	f2, err := reg.GetOrCreateFamily("rx_pkts", "ignored help", KindGauge, "port")
	require.NoError(t, err)

	assert.Same(t, f1, f2)
	assert.Equal(t, "Received packets", f2.Help())
}

func TestRegistry_GetOrCreateFamily_Conflict(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		labels []string
	}{
		{name: "different kind", kind: KindCounter, labels: []string{"port"}},
		{name: "different labels", kind: KindGauge, labels: []string{"stream_id"}},
		{name: "no labels", kind: KindGauge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			_, err := reg.GetOrCreateFamily("rx_pkts", "Received packets", KindGauge, "port")
			require.NoError(t, err)

			f, err := reg.GetOrCreateFamily("rx_pkts", "Received packets", tt.kind, tt.labels...)
			require.ErrorIs(t, err, ErrFamilyConflict)
			assert.Nil(t, f)
		})
	}
}

func TestRegistry_Prefix(t *testing.T) {
	reg := NewRegistry(WithPrefix("napatech"))

	f, err := reg.GetOrCreateFamily("port_rx_bytes", "Received bytes", KindGauge, "port")
	require.NoError(t, err)
	assert.Equal(t, "napatech_port_rx_bytes", f.Name())

	got, ok := reg.Family("napatech_port_rx_bytes")
	require.True(t, ok)
	assert.Same(t, f, got)
}

func TestFamily_GetOrCreateMetric(t *testing.T) {
	reg := NewRegistry()
	f, err := reg.GetOrCreateFamily("port_rx_pkts", "Received packets", KindGauge, "port", "pkts_count")
	require.NoError(t, err)

	l1 := prometheus.Labels{}
	l1["port"] = "0"
	l1["pkts_count"] = "total"
	l2 := prometheus.Labels{}
	l2["pkts_count"] = "total"
	l2["port"] = "0"
	l3 := prometheus.Labels{"port": "0", "pkts_count": "drops"}

	m1, err := f.GetOrCreateMetric(l1)
	require.NoError(t, err)
	m2, err := f.GetOrCreateMetric(l2)
	require.NoError(t, err)
	m3, err := f.GetOrCreateMetric(l3)
	require.NoError(t, err)

	assert.Same(t, m1, m2)
	assert.NotSame(t, m1, m3)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, KindGauge, m1.Kind())
	assert.Equal(t, 0.0, m1.Value())
	assert.Equal(t, l1, m1.Labels())
}

func TestFamily_GetOrCreateMetric_BadLabels(t *testing.T) {
	reg := NewRegistry()
	f, err := reg.GetOrCreateFamily("port_rx_pkts", "Received packets", KindGauge, "port")
	require.NoError(t, err)

	_, err = f.GetOrCreateMetric(prometheus.Labels{"stream_id": "1"})
	assert.Error(t, err)
	assert.Equal(t, 0, f.Len())
}

func TestFamily_TypedAccessors(t *testing.T) {
	reg := NewRegistry()
	gauges, err := reg.GetOrCreateFamily("g", "A gauge", KindGauge, "l")
	require.NoError(t, err)
	counters, err := reg.GetOrCreateFamily("c", "A counter", KindCounter, "l")
	require.NoError(t, err)

	_, err = gauges.Counter(prometheus.Labels{"l": "x"})
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = counters.Gauge(prometheus.Labels{"l": "x"})
	assert.ErrorIs(t, err, ErrWrongKind)

	g, err := gauges.Gauge(prometheus.Labels{"l": "x"})
	require.NoError(t, err)
	g.Set(12.5)
	g.Set(-3)
	assert.Equal(t, -3.0, g.Value())
}

func TestCounter_Monotonic(t *testing.T) {
	reg := NewRegistry()
	f, err := reg.GetOrCreateFamily("pushes_total", "Pushes", KindCounter, "return_code")
	require.NoError(t, err)
	c, err := f.Counter(prometheus.Labels{"return_code": "200"})
	require.NoError(t, err)

	last := c.Value()
	for _, delta := range []float64{1, 0, 2.5, -7, 3} {
		c.Add(delta)
		assert.GreaterOrEqual(t, c.Value(), last)
		last = c.Value()
	}
	c.Inc()
	assert.Equal(t, 7.5, c.Value())
}

func TestRegistry_CollectIdempotent(t *testing.T) {
	reg := NewRegistry(WithConstLabels(prometheus.Labels{"instance": "host1"}))
	f, err := reg.GetOrCreateFamily("port_rx_bytes", "Received bytes", KindGauge, "port")
	require.NoError(t, err)
	g, err := f.Gauge(prometheus.Labels{"port": "0"})
	require.NoError(t, err)
	g.Set(6400)

	first, err := reg.Collect()
	require.NoError(t, err)
	second, err := reg.Collect()
	require.NoError(t, err)

	assert.Equal(t, encode(t, first), encode(t, second))
	assert.Contains(t, encode(t, first), `port_rx_bytes{instance="host1",port="0"} 6400`)
}

func TestRegistry_UnlabeledOmitsConstLabels(t *testing.T) {
	reg := NewRegistry(WithConstLabels(prometheus.Labels{"instance": "host1"}))
	f, err := reg.GetOrCreateFamily("port_rx_bytes", "Received bytes", KindGauge, "port")
	require.NoError(t, err)
	g, err := f.Gauge(prometheus.Labels{"port": "0"})
	require.NoError(t, err)
	g.Set(1)

	mfs, err := reg.Unlabeled().Gather()
	require.NoError(t, err)
	out := encode(t, mfs)
	assert.Contains(t, out, `port_rx_bytes{port="0"} 1`)
	assert.NotContains(t, out, "instance")
}

func TestRegistry_ConcurrentCreateAndCollect(t *testing.T) {
	reg := NewRegistry()
	f, err := reg.GetOrCreateFamily("stream_pkts", "Stream packets", KindGauge, "stream_id")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			g, err := f.Gauge(prometheus.Labels{"stream_id": string(rune('a' + i%26))})
			assert.NoError(t, err)
			g.Set(float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, err := reg.Collect()
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, 26, f.Len())
}

func encode(t *testing.T, mfs []*dto.MetricFamily) string {
	t.Helper()
	var buf bytes.Buffer
	for _, mf := range mfs {
		_, err := expfmt.MetricFamilyToText(&buf, mf)
		require.NoError(t, err)
	}
	return buf.String()
}
