package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/nomis52/ntexporter/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *metrics.Registry {
	t.Helper()
	reg := metrics.NewRegistry(metrics.WithPrefix("napatech"))
	f, err := reg.GetOrCreateFamily("port_rx_bytes", "Received bytes", metrics.KindGauge, "port")
	require.NoError(t, err)
	g, err := f.Gauge(prometheus.Labels{"port": "0"})
	require.NoError(t, err)
	g.Set(6400)
	return reg
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "pushgw:9091", want: "http://pushgw:9091"},
		{in: "http://pushgw:9091/", want: "http://pushgw:9091"},
		{in: "https://vm.example.com", want: "https://vm.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, baseURL(tt.in))
		})
	}
}

func TestPushgateway_Push(t *testing.T) {
	var gotPath, gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gw := NewPushgateway(Config{
		Address:  strings.TrimPrefix(server.URL, "http://"),
		Job:      "ntexporter",
		Instance: "capture01",
	}, testRegistry(t).Unlabeled())

	code, err := gw.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/ntexporter/instance/capture01", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPushgateway_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	gw := NewPushgateway(Config{Address: server.URL, Job: "ntexporter"}, testRegistry(t).Unlabeled())
	code, err := gw.Push(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestPushgateway_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	gw := NewPushgateway(Config{Address: addr, Job: "ntexporter", Timeout: time.Second}, testRegistry(t).Unlabeled())
	code, err := gw.Push(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusTransportError, code)
}

func TestPushgateway_RejectsInstanceLabelledMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("push should not reach the server")
	}))
	defer server.Close()

	reg := metrics.NewRegistry(metrics.WithConstLabels(prometheus.Labels{"instance": "capture01"}))
	f, err := reg.GetOrCreateFamily("up", "Up", metrics.KindGauge)
	require.NoError(t, err)
	g, err := f.Gauge(nil)
	require.NoError(t, err)
	g.Set(1)

	// the labeled view must never be pushed; the gateway adds instance itself
	gw := NewPushgateway(Config{Address: server.URL, Job: "ntexporter", Instance: "capture01"}, reg)
	code, err := gw.Push(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusTransportError, code)
}

func TestRemoteWrite_Push(t *testing.T) {
	received := make(chan []prompb.TimeSeries, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var writeReq prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &writeReq))
		received <- writeReq.Timeseries
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	gw := NewRemoteWrite(Config{Address: server.URL, Job: "ntexporter", Instance: "capture01"}, testRegistry(t).Unlabeled())
	gw.now = func() time.Time { return time.UnixMilli(1700000000000) }

	code, err := gw.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, code)

	select {
	case ts := <-received:
		require.Len(t, ts, 1)
		assert.Equal(t, "napatech_port_rx_bytes", findLabel(ts[0].Labels, "__name__"))
		assert.Equal(t, "ntexporter", findLabel(ts[0].Labels, "job"))
		assert.Equal(t, "capture01", findLabel(ts[0].Labels, "instance"))
		assert.Equal(t, "0", findLabel(ts[0].Labels, "port"))
		require.Len(t, ts[0].Samples, 1)
		assert.Equal(t, 6400.0, ts[0].Samples[0].Value)
		assert.Equal(t, int64(1700000000000), ts[0].Samples[0].Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to be received")
	}
}

func TestRemoteWrite_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gw := NewRemoteWrite(Config{Address: server.URL}, testRegistry(t).Unlabeled())
	code, err := gw.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestRemoteWrite_EmptyRegistry(t *testing.T) {
	gw := NewRemoteWrite(Config{Address: "127.0.0.1:1"}, metrics.NewRegistry().Unlabeled())
	code, err := gw.Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, code)
}
