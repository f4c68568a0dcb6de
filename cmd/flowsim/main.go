// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command flowsim replays PCAP and PCAPNG captures through the flow engine
// and reports per-capture flow statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"grimm.is/flowcore/internal/config"
	"grimm.is/flowcore/internal/engine"
	"grimm.is/flowcore/internal/flowtable"
	"grimm.is/flowcore/internal/logging"
	"grimm.is/flowcore/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL config file")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: flowsim [-config file.hcl] [-metrics-addr :9090] <capture>...")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *metricsAddr, flag.Args()); err != nil {
		logging.Error("flowsim failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, metricsAddr string, captures []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Output: os.Stderr,
		JSON:   cfg.Logging.JSON,
	})
	logging.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics()
	if err := m.Register(reg); err != nil {
		return err
	}

	if metricsAddr != "" {
		srv := newMetricsServer(metricsAddr, reg, logger.WithComponent("metrics"))
		srv.Start()
		defer srv.Stop()
	}

	tbl := flowtable.New(engine.NewSessionFactory(logger.WithComponent("session")),
		flowtable.ConfigFrom(cfg.Table), logger.WithComponent("flowtable"), m)
	ins, err := engine.BuildInspectors(cfg, logger)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Options{
		Table:         tbl,
		Inspectors:    ins,
		Config:        cfg.Engine,
		PruneInterval: cfg.Table.CleanupIntervalDuration(),
		Logger:        logger.WithComponent("engine"),
		Metrics:       m,
	})
	if err != nil {
		return err
	}

	for _, path := range captures {
		sum, err := Replay(ctx, eng, path, logger.WithComponent("replay"))
		if err != nil {
			return err
		}
		sum.Closed += tbl.Flush()
		sum.Print(os.Stdout, path)
	}
	return nil
}
