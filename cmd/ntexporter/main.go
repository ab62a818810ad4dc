// Command ntexporter reads capture adapter statistics and pushes them to a Prometheus
// Pushgateway or remote write endpoint, keeping a local snapshot file alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/ntexporter/buildinfo"
	"github.com/nomis52/ntexporter/clients/sshclient"
	"github.com/nomis52/ntexporter/collector"
	"github.com/nomis52/ntexporter/config"
	"github.com/nomis52/ntexporter/exporter"
	"github.com/nomis52/ntexporter/gateway"
	"github.com/nomis52/ntexporter/logging"
	"github.com/nomis52/ntexporter/metrics"
	"github.com/nomis52/ntexporter/saver"
	"github.com/nomis52/ntexporter/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Args struct {
	ConfigPath string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	instance := cfg.Export.Instance
	if instance == "" {
		instance, err = os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
	}

	build := buildinfo.Get()
	logger.Info("ntexporter starting",
		"config_path", args.ConfigPath,
		"instance", instance,
		"version", build.Version,
		"git_commit", build.GitCommit,
	)

	regOpts := []metrics.Option{
		metrics.WithPrefix(cfg.Export.MetricsPrefix),
		metrics.WithConstLabels(prometheus.Labels{"instance": instance}),
	}
	reg := metrics.NewRegistry(regOpts...)
	self := metrics.NewRegistry(regOpts...)

	if err := buildinfo.Register(self); err != nil {
		return fmt.Errorf("failed to register build info: %w", err)
	}
	if cfg.Export.RuntimeMetrics {
		if err := self.RegisterCollector(collectors.NewGoCollector()); err != nil {
			return fmt.Errorf("registering go collector: %w", err)
		}
		if err := self.RegisterCollector(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return fmt.Errorf("registering process collector: %w", err)
		}
	}

	source, err := openSource(cfg.Source)
	if err != nil {
		return err
	}
	defer source.Close()

	adapter, err := collector.New(reg,
		collector.WithMaxPorts(cfg.Source.MaxPorts),
		collector.WithMaxStreams(cfg.Source.MaxStreams),
		collector.WithDiagnostics(self),
		collector.WithLogger(logger.Component("collector")),
	)
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	gw := newGateway(cfg.Export, instance, reg.Unlabeled(), self.Unlabeled())

	exp, err := exporter.New(source, adapter, gw, self,
		exporter.WithPeriod(cfg.Export.Period),
		exporter.WithReadTimeout(cfg.Export.Timeout),
		exporter.WithLogger(logger.Component("exporter")),
	)
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	var sv *saver.Saver
	if cfg.Saver.Enabled {
		sv, err = saver.New(saver.Config{
			Period:   cfg.Saver.Period,
			Filename: cfg.Saver.Filename,
		}, prometheus.Gatherers{reg, self}, saver.WithLogger(logger.Component("saver")))
		if err != nil {
			return fmt.Errorf("failed to create snapshot saver: %w", err)
		}
		if err := sv.Start(); err != nil {
			return err
		}
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	runErr := exp.Run(ctx)

	if sv != nil {
		sv.Stop()
		if err := sv.Save(); err != nil {
			logger.Warn("final snapshot save failed", "error", err)
		}
	}
	return runErr
}

// openSource opens the configured stat stream. Failing to open it is fatal.
func openSource(cfg config.SourceConfig) (stats.Source, error) {
	switch cfg.Type {
	case config.SourceCommand:
		var opts []stats.CommandOption
		if cfg.SSH != nil {
			var sshOpts []sshclient.Option
			if cfg.SSH.KnownHostsFile != "" {
				sshOpts = append(sshOpts, sshclient.WithKnownHosts(cfg.SSH.KnownHostsFile))
			}
			client, err := sshclient.NewFromKeyFile(cfg.SSH.Host, cfg.SSH.User, cfg.SSH.PrivateKeyFile, sshOpts...)
			if err != nil {
				return nil, fmt.Errorf("failed to open stat stream on %s: %w", cfg.SSH.Host, err)
			}
			opts = append(opts, stats.WithRunner(client))
		}
		src, err := stats.NewCommandSource(cfg.Command, cfg.Args, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open stat stream: %w", err)
		}
		return src, nil
	default:
		src, err := stats.NewFileSource(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open stat stream: %w", err)
		}
		return src, nil
	}
}

func newGateway(cfg config.ExportConfig, instance string, gatherers ...prometheus.Gatherer) gateway.Gateway {
	gwCfg := gateway.Config{
		Address:  cfg.Address,
		Job:      cfg.Job,
		Instance: instance,
		Timeout:  cfg.Timeout,
	}
	if cfg.Mode == config.ModeRemoteWrite {
		return gateway.NewRemoteWrite(gwCfg, gatherers...)
	}
	return gateway.NewPushgateway(gwCfg, gatherers...)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nntexporter - capture adapter statistics exporter\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/ntexporter/config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath: path,
	}
}

