// Package gateway pushes the full contents of metric registries to a remote endpoint.
//
// Two transports are provided: a Prometheus Pushgateway (grouping key job + instance, each
// push replaces the whole group) and the Prometheus remote-write protocol understood by
// VictoriaMetrics and friends. Both report the HTTP status of every attempt so callers can
// record export health.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// StatusTransportError is reported when the request never produced an HTTP response.
	StatusTransportError = -1
)

// Gateway pushes the current state of its registries.
type Gateway interface {
	// Push sends everything currently registered and returns the HTTP status code, or
	// StatusTransportError. A non-nil error is returned for every unsuccessful push.
	Push(ctx context.Context) (int, error)
}

// Config configures a Gateway.
type Config struct {
	// Address is the endpoint, either host:port or a full URL.
	Address string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// baseURL turns a host:port pair into an http URL and strips any trailing slash.
func baseURL(address string) string {
	u := strings.TrimRight(address, "/")
	if !strings.Contains(u, "://") {
		u = "http://" + u
	}
	return u
}

// statusRecorder is an HTTP client that remembers the status of the last response.
type statusRecorder struct {
	client *http.Client
	status int
}

func (r *statusRecorder) Do(req *http.Request) (*http.Response, error) {
	r.status = StatusTransportError
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	r.status = resp.StatusCode
	return resp, nil
}
