// Package buildinfo provides build-time properties injected via ldflags.
package buildinfo

import (
	"github.com/nomis52/ntexporter/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Properties holds build-time properties injected via ldflags.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Package-level variables for ldflags injection (unexported).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}

// Register exports the build properties as a constant 1 valued build_info gauge.
func Register(reg *metrics.Registry) error {
	p := Get()
	f, err := reg.GetOrCreateFamily("build_info", "Build information of the running exporter.",
		metrics.KindGauge, "version", "git_commit", "build_time")
	if err != nil {
		return err
	}
	g, err := f.Gauge(prometheus.Labels{
		"version":    p.Version,
		"git_commit": p.GitCommit,
		"build_time": p.BuildTime,
	})
	if err != nil {
		return err
	}
	g.Set(1)
	return nil
}
