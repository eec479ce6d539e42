package worker

import (
	"context"
	"log/slog"
	"time"

	"coldchain/pkg/platform/events"
)

// Source is the queue the worker drains.
type Source interface {
	DequeueBatch(n int) []events.Event
	Ready() <-chan struct{}
}

// Worker moves queued events to a sink. Delivery failures are logged and the
// event is dropped; notifications are fire-and-forget.
type Worker struct {
	source    Source
	sink      events.Sink
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	onFailure func(events.Event)
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithPollInterval bounds how long queued events wait if a ready signal is missed.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithFailureHook is called for every event the sink rejected.
func WithFailureHook(fn func(events.Event)) Option {
	return func(w *Worker) { w.onFailure = fn }
}

func New(source Source, sink events.Sink, opts ...Option) *Worker {
	w := &Worker{
		source:    source,
		sink:      sink,
		logger:    slog.Default(),
		batchSize: 100,
		interval:  time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the source until ctx is cancelled. On cancellation it makes one
// last pass with a short detached deadline so already-queued events still go
// out, then returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			w.Drain(flushCtx)
			cancel()
			return ctx.Err()
		case <-w.source.Ready():
			w.Drain(ctx)
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain publishes everything currently queued.
func (w *Worker) Drain(ctx context.Context) {
	for {
		batch := w.source.DequeueBatch(w.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := w.sink.Publish(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "event delivery failed",
					"event_id", event.ID.String(),
					"kind", string(event.Kind),
					"aggregate_id", event.AggregateID,
					"error", err,
				)
				if w.onFailure != nil {
					w.onFailure(event)
				}
			}
		}
	}
}
