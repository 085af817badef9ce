// Package relay implements the §4.4 relay worker: a ticker-driven loop that
// locks unpublished outbox rows with FOR UPDATE SKIP LOCKED, publishes each
// to the bus, and commits the publish mark in the same transaction as the
// lock — one row, one transaction, so a publish failure on one row never
// rolls back progress already made on another.
package relay

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/repository/db"
	"github.com/arc-self/order-lifecycle/internal/telemetry"
	"github.com/arc-self/order-lifecycle/internal/tracing"
)

// beginner is satisfied by *pgxpool.Pool in production and by pgxmock's
// mocked pool in tests, mirroring the service package's own narrowing of
// the pool dependency for testability.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config carries the §6.6 relay tunables.
type Config struct {
	BatchSize       int
	PollInterval    time.Duration
	ErrorBackoff    time.Duration
	MaxRetries      int
	ErrorMessageMax int
}

// Relay polls the outbox table and publishes unpublished rows to the bus.
type Relay struct {
	pool      beginner
	publisher Publisher
	cfg       Config
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

// NewRelay wires a Relay from its dependencies.
func NewRelay(pool beginner, publisher Publisher, cfg Config, logger *zap.Logger, metrics *telemetry.Metrics) *Relay {
	return &Relay{pool: pool, publisher: publisher, cfg: cfg, logger: logger, metrics: metrics}
}

// Run polls on cfg.PollInterval until ctx is cancelled, backing off to
// cfg.ErrorBackoff after a poll-level failure (a DB outage, not a single
// row's publish error, which is handled and recorded per-row instead).
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.metrics != nil {
				r.metrics.BackgroundTaskLive.WithLabelValues("relay").Set(1)
			}
			r.updateBacklogMetrics(ctx)
			if _, err := r.pollOnce(ctx); err != nil {
				r.logger.Error("relay poll failed", zap.Error(err))
				ticker.Reset(r.cfg.ErrorBackoff)
				continue
			}
			ticker.Reset(r.cfg.PollInterval)
		}
	}
}

// pollOnce processes up to cfg.BatchSize rows, each in its own transaction,
// stopping early once the outbox has no more unpublished rows to offer.
func (r *Relay) pollOnce(ctx context.Context) (int, error) {
	processed := 0
	for i := 0; i < r.cfg.BatchSize; i++ {
		ok, err := r.processOne(ctx)
		if err != nil {
			return processed, err
		}
		if !ok {
			break
		}
		processed++
	}
	return processed, nil
}

// processOne locks a single row, publishes it, and commits the publish mark
// — or, on publish failure, rolls back the lock and records the failure in
// a separate short transaction so the row remains visible to the next poll
// (§4.4, §7 PublishPoison once attempts reaches cfg.MaxRetries).
func (r *Relay) processOne(ctx context.Context) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	qtx := db.New(tx)

	rows, err := qtx.LockUnpublishedOutboxEvents(ctx, 1)
	if err != nil {
		tx.Rollback(ctx)
		return false, err
	}
	if len(rows) == 0 {
		tx.Rollback(ctx)
		return false, nil
	}
	row := rows[0]

	traceparent := ""
	if row.TraceID.Valid && row.SpanID.Valid {
		traceparent = tracing.Format(tracing.Context{TraceID: row.TraceID.String, SpanID: row.SpanID.String})
	}

	start := time.Now()
	pubErr := r.publisher.Publish(ctx, row.Topic, row.Payload, row.PartitionKey.String, traceparent)
	if r.metrics != nil {
		r.metrics.PublishLatency.Observe(time.Since(start).Seconds())
	}

	if pubErr != nil {
		tx.Rollback(ctx)
		return true, r.recordFailure(ctx, row, pubErr)
	}

	if err := qtx.MarkOutboxEventPublished(ctx, row.ID); err != nil {
		tx.Rollback(ctx)
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	if r.metrics != nil {
		r.metrics.EventsPublished.WithLabelValues(row.EventType).Inc()
	}
	return true, nil
}

// updateBacklogMetrics refreshes the §4.8 outbox-backlog and pool-in-use
// gauges once per tick. r.pool is narrowed to beginner for testability, so
// both reads go through a type assertion against the concrete pool type
// rather than the interface: a pgxmock pool satisfies db.DBTX (so the
// backlog count would run against it too) but never Stat() *pgxpool.Stat,
// and neither assertion is reached by relay_test.go anyway since its cases
// call processOne directly rather than Run.
func (r *Relay) updateBacklogMetrics(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	if dbtx, ok := r.pool.(db.DBTX); ok {
		if n, err := db.New(dbtx).CountUnpublishedOutboxEvents(ctx); err == nil {
			r.metrics.OutboxBacklog.Set(float64(n))
		}
	}
	if statter, ok := r.pool.(interface{ Stat() *pgxpool.Stat }); ok {
		r.metrics.DBPoolInUse.Set(float64(statter.Stat().AcquiredConns()))
	}
}

// recordFailure writes the attempt/last_error bump in its own transaction,
// independent of the failed publish's rolled-back transaction, and logs a
// warning — escalating to an error-level poison-pill log once attempts
// reaches cfg.MaxRetries (§7).
func (r *Relay) recordFailure(ctx context.Context, row db.OutboxEvent, pubErr error) error {
	msg := pubErr.Error()
	if len(msg) > r.cfg.ErrorMessageMax {
		msg = msg[:r.cfg.ErrorMessageMax]
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	qtx := db.New(tx)
	if err := qtx.RecordOutboxEventFailure(ctx, db.RecordOutboxEventFailureParams{ID: row.ID, LastError: msg}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	attempts := row.Attempts + 1
	if attempts >= int32(r.cfg.MaxRetries) {
		r.logger.Error("outbox row exhausted retries, left unpublished for manual intervention",
			zap.String("event_id", row.EventID), zap.Int32("attempts", attempts), zap.Error(pubErr))
	} else {
		r.logger.Warn("outbox publish failed, will retry",
			zap.String("event_id", row.EventID), zap.Int32("attempts", attempts), zap.Error(pubErr))
	}
	return nil
}
