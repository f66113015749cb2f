// Package relay moves facts from the durable event log into the broadcast
// hub. A fact is archived only after its event was handed off, so a crash
// anywhere in between leads to redelivery rather than loss.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/store"
	"github.com/thevtm/baker-news/pkg/config"
	"github.com/thevtm/baker-news/pkg/telemetry"
)

// Publisher receives rehydrated events. A nil error means the event was
// handed off and the fact may be archived.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Options tunes the worker loop
type Options struct {
	Lease           time.Duration
	BatchSize       int
	ErrorBackoff    time.Duration
	IdleWait        time.Duration
	RestartDelay    time.Duration
	AuthorCacheSize int
}

// OptionsFromConfig converts relay configuration into worker options
func OptionsFromConfig(cfg config.RelayConfig) Options {
	return Options{
		Lease:           cfg.Lease(),
		BatchSize:       cfg.BatchSize,
		ErrorBackoff:    cfg.ErrorBackoff(),
		IdleWait:        cfg.IdleWait(),
		RestartDelay:    cfg.RestartDelay(),
		AuthorCacheSize: cfg.AuthorCacheSize,
	}
}

// Worker is the single consumer of the durable event log
type Worker struct {
	queue      store.Queue
	waker      store.Waker
	publisher  Publisher
	rehydrator *Rehydrator
	opts       Options
	logger     *zap.Logger

	processed  metric.Int64Counter
	failed     metric.Int64Counter
	pollErrors metric.Int64Counter
	restarts   metric.Int64Counter
}

// NewWorker creates a relay worker. waker may be nil, in which case an
// empty poll sleeps for the idle wait.
func NewWorker(queue store.Queue, reader store.Reader, waker store.Waker, publisher Publisher, opts Options, logger *zap.Logger) (*Worker, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.AuthorCacheSize < 1 {
		opts.AuthorCacheSize = 1
	}

	rehydrator, err := NewRehydrator(reader, opts.AuthorCacheSize)
	if err != nil {
		return nil, err
	}

	meter := telemetry.Meter()
	processed, _ := meter.Int64Counter("relay_facts_processed_total",
		metric.WithDescription("Facts published and archived"))
	failed, _ := meter.Int64Counter("relay_facts_failed_total",
		metric.WithDescription("Facts left unarchived after a failure"))
	pollErrors, _ := meter.Int64Counter("relay_poll_errors_total",
		metric.WithDescription("Failed queue polls"))
	restarts, _ := meter.Int64Counter("relay_restarts_total",
		metric.WithDescription("Worker restarts after an invariant violation"))

	return &Worker{
		queue:      queue,
		waker:      waker,
		publisher:  publisher,
		rehydrator: rehydrator,
		opts:       opts,
		logger:     logger.With(zap.String("component", "relay")),
		processed:  processed,
		failed:     failed,
		pollErrors: pollErrors,
		restarts:   restarts,
	}, nil
}

// Run polls the queue until ctx is done or a fact violates an invariant.
// Queue failures and transient rehydration or publish failures are logged
// and retried after the error back-off.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting relay worker",
		zap.Duration("lease", w.opts.Lease),
		zap.Int("batch_size", w.opts.BatchSize))

	for {
		// Check for cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Lease the next batch
		facts, err := w.queue.Poll(ctx, w.opts.Lease, w.opts.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.pollErrors.Add(ctx, 1)
			w.logger.Error("Failed to poll event facts", zap.Error(err))
			w.wait(ctx, w.opts.ErrorBackoff)
			continue
		}

		// Nothing visible: wait for an append or the idle timeout
		if len(facts) == 0 {
			w.idle(ctx)
			continue
		}

		for _, f := range facts {
			err := w.handle(ctx, f)
			if err == nil {
				continue
			}
			w.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(f.Kind))))
			if errors.Is(err, ErrInvariant) {
				return fmt.Errorf("fact %d: %w", f.Receipt.FactID, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("Failed to relay fact, leaving it for redelivery",
				zap.Int64("fact_id", f.Receipt.FactID),
				zap.String("kind", string(f.Kind)),
				zap.Error(err))
			w.wait(ctx, w.opts.ErrorBackoff)
			// The rest of the batch is re-leased after its lease expires
			break
		}
	}
}

// Supervise runs the worker and restarts it after RestartDelay whenever it
// stops on an invariant violation. It returns once ctx is done.
func (w *Worker) Supervise(ctx context.Context) {
	for {
		err := w.Run(ctx)
		if ctx.Err() != nil {
			w.logger.Info("Relay worker stopped")
			return
		}

		w.restarts.Add(ctx, 1)
		w.logger.Error("Relay worker crashed, restarting",
			zap.Error(err),
			zap.Duration("restart_delay", w.opts.RestartDelay))
		w.wait(ctx, w.opts.RestartDelay)
	}
}

// handle publishes the event for f and then archives f
func (w *Worker) handle(ctx context.Context, f store.LeasedFact) error {
	ctx, span := telemetry.StartSpan(ctx, "relay.handle")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("fact_id", f.Receipt.FactID),
		attribute.String("kind", string(f.Kind)),
		attribute.Int("read_count", f.Receipt.ReadCount))

	ev, err := w.rehydrator.Rehydrate(ctx, f.Kind, f.Payload)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := w.publisher.Publish(ctx, ev); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish %s event: %w", f.Kind, err)
	}

	archived, err := w.queue.Archive(ctx, f.Receipt)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !archived {
		w.logger.Warn("Lease expired before archive, fact will be redelivered",
			zap.Int64("fact_id", f.Receipt.FactID),
			zap.Int("read_count", f.Receipt.ReadCount))
	}

	w.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(f.Kind))))
	w.logger.Debug("Relayed fact",
		zap.Int64("fact_id", f.Receipt.FactID),
		zap.String("kind", string(f.Kind)),
		zap.Duration("latency", time.Since(f.EnqueuedAt)))
	return nil
}

// idle waits for new facts after an empty poll
func (w *Worker) idle(ctx context.Context) {
	if w.waker != nil {
		w.waker.Wait(ctx, w.opts.IdleWait)
		return
	}
	w.wait(ctx, w.opts.IdleWait)
}

// wait waits for the specified duration or until context is cancelled
func (w *Worker) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
