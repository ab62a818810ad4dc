package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Pushgateway pushes to a Prometheus Pushgateway using PUT, so every push replaces all metrics
// previously pushed under the same job and instance.
type Pushgateway struct {
	mu       sync.Mutex
	pusher   *push.Pusher
	recorder *statusRecorder
}

// NewPushgateway creates a Pushgateway that pushes the union of gatherers. The gatherers must
// not carry job or instance labels themselves.
func NewPushgateway(cfg Config, gatherers ...prometheus.Gatherer) *Pushgateway {
	recorder := &statusRecorder{client: &http.Client{Timeout: cfg.timeout()}}

	p := push.New(baseURL(cfg.Address), cfg.Job).Client(recorder)
	if cfg.Instance != "" {
		p = p.Grouping("instance", cfg.Instance)
	}
	for _, g := range gatherers {
		p = p.Gatherer(g)
	}
	return &Pushgateway{
		pusher:   p,
		recorder: recorder,
	}
}

// Push implements Gateway.
func (g *Pushgateway) Push(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.recorder.status = StatusTransportError
	err := g.pusher.PushContext(ctx)
	return g.recorder.status, err
}
