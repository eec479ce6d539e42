// Package app assembles the ledger daemon from configuration: the store
// driver, the ledger service, the event pipeline and the ops listener.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	ledgermetrics "coldchain/internal/ledger/metrics"
	"coldchain/internal/ledger/ports"
	"coldchain/internal/ledger/service"
	"coldchain/internal/ledger/store/memory"
	pgstore "coldchain/internal/ledger/store/postgres"
	redisstore "coldchain/internal/ledger/store/redis"
	"coldchain/internal/platform/config"
	"coldchain/internal/platform/httpserver"
	"coldchain/internal/platform/metrics"
	platformredis "coldchain/internal/platform/redis"
	"coldchain/pkg/platform/circuit"
	"coldchain/pkg/platform/events"
	"coldchain/pkg/platform/events/buffer"
	"coldchain/pkg/platform/events/sinks/kafka"
	"coldchain/pkg/platform/events/sinks/logsink"
	pgevents "coldchain/pkg/platform/events/sinks/postgres"
	"coldchain/pkg/platform/events/worker"
)

// App is a wired daemon. Build it with New, start it with Run.
type App struct {
	Ledger *service.Service
	Events *buffer.RingBuffer

	cfg     config.Config
	logger  *slog.Logger
	ops     *http.Server
	worker  *worker.Worker
	checks  map[string]httpserver.HealthCheck
	closers []func() error
}

// New connects every configured dependency. On error, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (_ *App, err error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
		Events: buffer.NewRingBuffer(cfg.Events.BufferSize),
		checks: map[string]httpserver.HealthCheck{},
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, eventLog, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.openPublisher(ctx)
	if err != nil {
		return nil, err
	}

	guarded := circuit.Guard(circuit.New(cfg.Events.Publisher,
		circuit.WithFailureThreshold(cfg.Events.BreakerThreshold),
		circuit.WithCooldown(cfg.Events.BreakerCooldown),
	), publisher, logger)

	sinks := events.Fanout{guarded}
	if eventLog != nil {
		sinks = append(sinks, eventLog)
	}

	daemonMetrics := metrics.New(reg, a.Events)
	a.worker = worker.New(a.Events, sinks,
		worker.WithLogger(logger),
		worker.WithBatchSize(cfg.Events.BatchSize),
		worker.WithPollInterval(cfg.Events.PollInterval),
		worker.WithFailureHook(func(events.Event) { daemonMetrics.ForwardFails.Inc() }),
	)

	a.Ledger, err = service.New(st,
		service.WithEventSink(a.Events),
		service.WithLogger(logger),
		service.WithMetrics(ledgermetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	a.ops = httpserver.New(cfg.Ops.Addr, httpserver.NewOpsRouter(reg, a.checks, daemonMetrics))
	return a, nil
}

func (a *App) openStore(ctx context.Context) (ports.Transactor, events.Sink, error) {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", a.cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}

		st := pgstore.New(db)
		eventLog := pgevents.New(db)
		if a.cfg.Store.Migrate {
			if err := st.Migrate(ctx); err != nil {
				return nil, nil, err
			}
			if err := eventLog.Migrate(ctx); err != nil {
				return nil, nil, err
			}
		}
		a.checks["postgres"] = st.Health
		return st, eventLog, nil

	case config.DriverRedis:
		client, err := platformredis.New(ctx, a.cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.checks["redis"] = client.Health
		return redisstore.New(client.Client, redisstore.WithKeyPrefix(a.cfg.Redis.KeyPrefix)), nil, nil

	case config.DriverMemory:
		a.logger.Warn("using the in-memory store; ledger state is lost on exit")
		return memory.New(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
}

func (a *App) openPublisher(ctx context.Context) (events.Sink, error) {
	switch a.cfg.Events.Publisher {
	case config.PublisherKafka:
		k := a.cfg.Kafka
		sink, err := kafka.New(kafka.Config{
			Brokers:           k.Brokers,
			Topic:             k.Topic,
			Partitions:        k.Partitions,
			ReplicationFactor: k.ReplicationFactor,
			ClientID:          k.ClientID,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { sink.Close(); return nil })
		if err := sink.EnsureTopic(ctx, k.Partitions, k.ReplicationFactor); err != nil {
			return nil, err
		}
		a.checks["kafka"] = sink.Ping
		return sink, nil

	case config.PublisherLog:
		return logsink.New(a.logger, slog.LevelInfo), nil
	}
	return nil, fmt.Errorf("unknown event publisher %q", a.cfg.Events.Publisher)
}

// Handler returns the ops router, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.ops.Handler
}

// Run serves the ops endpoint and forwards events until ctx is cancelled,
// then shuts both down and releases every connection.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("ops server listening", "addr", a.cfg.Ops.Addr)
		if err := a.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		return a.ops.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := a.worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err := g.Wait()
	a.logger.Info("ledger daemon stopped", "pending_events", a.Events.Len(), "dropped_events", a.Events.Dropped())
	return err
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Ops.ShutdownTimeout > 0 {
		return a.cfg.Ops.ShutdownTimeout
	}
	return 10 * time.Second
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
