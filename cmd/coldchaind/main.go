package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"coldchain/internal/app"
	"coldchain/internal/platform/config"
	"coldchain/internal/platform/logger"
	"coldchain/internal/platform/telemetry"
)

// main loads configuration, wires the ledger daemon and runs it until
// SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "coldchaind: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	daemon, err := app.New(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	log.Info("starting coldchaind",
		"store", cfg.Store.Driver,
		"publisher", cfg.Events.Publisher,
		"ops_addr", cfg.Ops.Addr,
	)
	return daemon.Run(ctx)
}
