package buildinfo

import (
	"testing"

	"github.com/nomis52/ntexporter/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := metrics.NewRegistry(metrics.WithPrefix("ntexporter"))
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	f, ok := reg.Family("ntexporter_build_info")
	require.True(t, ok)
	assert.Equal(t, 1, f.Len())

	g, err := f.Gauge(prometheus.Labels{"version": "dev", "git_commit": "unknown", "build_time": "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, g.Value())
}
