package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
)

// RemoteWrite pushes to a Prometheus remote write endpoint such as VictoriaMetrics.
type RemoteWrite struct {
	url        string
	httpClient *http.Client
	job        string
	instance   string
	gatherer   prometheus.Gatherers
	now        func() time.Time
}

// NewRemoteWrite creates a RemoteWrite that pushes the union of gatherers to
// <address>/api/v1/write.
func NewRemoteWrite(cfg Config, gatherers ...prometheus.Gatherer) *RemoteWrite {
	return &RemoteWrite{
		url:        baseURL(cfg.Address) + "/api/v1/write",
		httpClient: &http.Client{Timeout: cfg.timeout()},
		job:        cfg.Job,
		instance:   cfg.Instance,
		gatherer:   prometheus.Gatherers(gatherers),
		now:        time.Now,
	}
}

// Push implements Gateway.
func (w *RemoteWrite) Push(ctx context.Context) (int, error) {
	mfs, err := w.gatherer.Gather()
	if err != nil {
		return StatusTransportError, fmt.Errorf("gathering metrics: %w", err)
	}

	req := &prompb.WriteRequest{
		Timeseries: w.toTimeSeries(mfs, w.now().UnixMilli()),
	}
	if len(req.Timeseries) == 0 {
		return http.StatusNoContent, nil
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return StatusTransportError, fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(compressed))
	if err != nil {
		return StatusTransportError, fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return StatusTransportError, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return resp.StatusCode, nil
}

// toTimeSeries flattens gathered families into one sample per series. Counters, gauges and
// untyped values map directly; summaries and histograms are skipped.
func (w *RemoteWrite) toTimeSeries(mfs []*dto.MetricFamily, timestamp int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			value, ok := sampleValue(mf.GetType(), m)
			if !ok {
				continue
			}
			out = append(out, prompb.TimeSeries{
				Labels:  w.seriesLabels(mf.GetName(), m.GetLabel()),
				Samples: []prompb.Sample{{Value: value, Timestamp: timestamp}},
			})
		}
	}
	return out
}

func (w *RemoteWrite) seriesLabels(name string, pairs []*dto.LabelPair) []prompb.Label {
	labels := make([]prompb.Label, 0, len(pairs)+3)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	if w.job != "" {
		labels = append(labels, prompb.Label{Name: "job", Value: w.job})
	}
	if w.instance != "" {
		labels = append(labels, prompb.Label{Name: "instance", Value: w.instance})
	}
	for _, lp := range pairs {
		labels = append(labels, prompb.Label{Name: lp.GetName(), Value: lp.GetValue()})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels
}

func sampleValue(t dto.MetricType, m *dto.Metric) (float64, bool) {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), true
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), true
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), true
	default:
		return 0, false
	}
}
