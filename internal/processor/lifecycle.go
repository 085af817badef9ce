// Package processor implements the §4.5 lifecycle sweeps: PENDING→CONFIRMED
// after ORDER_CONFIRM_DELAY and CONFIRMED→SHIPPED after ORDER_SHIP_DELAY,
// each transition writing its outbox event in the same transaction as the
// order update, one order per transaction.
package processor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/domain"
	"github.com/arc-self/order-lifecycle/internal/outbox"
	"github.com/arc-self/order-lifecycle/internal/repository"
	"github.com/arc-self/order-lifecycle/internal/repository/db"
	"github.com/arc-self/order-lifecycle/internal/telemetry"
	"github.com/arc-self/order-lifecycle/internal/tracing"
)

// beginner is satisfied by *pgxpool.Pool in production and pgxmock's mocked
// pool in tests, mirroring the relay and service packages' own narrowing.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config carries the §6.6 lifecycle tunables.
type Config struct {
	ConfirmDelay time.Duration
	ShipDelay    time.Duration
	Interval     time.Duration
}

// Processor runs the confirm and ship sweeps on a ticker.
type Processor struct {
	pool    beginner
	outbox  *outbox.Store
	cfg     Config
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// New wires a Processor from its dependencies.
func New(pool beginner, store *outbox.Store, cfg Config, logger *zap.Logger, metrics *telemetry.Metrics) *Processor {
	return &Processor{pool: pool, outbox: store, cfg: cfg, logger: logger, metrics: metrics}
}

// Run ticks every cfg.Interval, draining all currently-eligible orders on
// each tick before waiting for the next one.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.metrics != nil {
				p.metrics.BackgroundTaskLive.WithLabelValues("processor").Set(1)
			}
			p.drain(ctx, "confirm sweep", p.confirmOne)
			p.drain(ctx, "ship sweep", p.shipOne)
		}
	}
}

// drain repeats step until it reports no more eligible rows or an error,
// so one tick clears the whole backlog rather than one row per interval.
func (p *Processor) drain(ctx context.Context, label string, step func(context.Context) (bool, error)) {
	for {
		ok, err := step(ctx)
		if err != nil {
			p.logger.Error("lifecycle "+label+" failed", zap.Error(err))
			return
		}
		if !ok {
			return
		}
	}
}

// confirmOne locks and confirms a single eligible pending order, emitting
// order.confirmed in the same transaction (§4.5).
func (p *Processor) confirmOne(ctx context.Context) (bool, error) {
	cutoff := time.Now().UTC().Add(-p.cfg.ConfirmDelay)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)
	qtx := db.New(tx)

	rows, err := qtx.ListOrdersEligibleForConfirm(ctx, cutoff)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	order := rows[0]
	orderID := repository.UUIDString(order.ID)

	ctx = p.withOriginatingTrace(ctx, qtx, orderID)

	paymentID := "pay_" + randomHex(6)
	confirmed, err := qtx.ConfirmOrder(ctx, db.ConfirmOrderParams{ID: order.ID, PaymentID: repository.Text(paymentID)})
	if err != nil {
		return false, fmt.Errorf("confirm order %s: %w", orderID, err)
	}

	if _, err := p.outbox.Insert(ctx, qtx, outbox.InsertParams{
		EventType:    domain.EventOrderConfirmed,
		Topic:        domain.EventOrderConfirmed,
		PartitionKey: confirmed.UserID,
		AggregateID:  orderID,
		Data: domain.OrderConfirmedData{
			OrderID:     orderID,
			UserID:      confirmed.UserID,
			Status:      string(domain.OrderStatusConfirmed),
			PaymentID:   paymentID,
			TotalAmount: repository.NumericString(confirmed.TotalAmount),
			Currency:    confirmed.Currency,
			ConfirmedAt: confirmed.ConfirmedAt.Time.Format(time.RFC3339),
		},
	}); err != nil {
		return false, fmt.Errorf("insert order.confirmed outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// shipOne locks and ships a single eligible confirmed order, emitting
// order.shipped in the same transaction (§4.5).
func (p *Processor) shipOne(ctx context.Context) (bool, error) {
	cutoff := time.Now().UTC().Add(-p.cfg.ShipDelay)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)
	qtx := db.New(tx)

	rows, err := qtx.ListOrdersEligibleForShip(ctx, cutoff)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	order := rows[0]
	orderID := repository.UUIDString(order.ID)

	ctx = p.withOriginatingTrace(ctx, qtx, orderID)

	trackingNumber := "TRK" + strings.ToUpper(randomHex(5))
	carrier := "FedEx"
	shipped, err := qtx.ShipOrder(ctx, db.ShipOrderParams{
		ID:             order.ID,
		TrackingNumber: repository.Text(trackingNumber),
		Carrier:        repository.Text(carrier),
	})
	if err != nil {
		return false, fmt.Errorf("ship order %s: %w", orderID, err)
	}

	if _, err := p.outbox.Insert(ctx, qtx, outbox.InsertParams{
		EventType:    domain.EventOrderShipped,
		Topic:        domain.EventOrderShipped,
		PartitionKey: shipped.UserID,
		AggregateID:  orderID,
		Data: domain.OrderShippedData{
			OrderID:           orderID,
			UserID:            shipped.UserID,
			Status:            string(domain.OrderStatusShipped),
			TrackingNumber:    trackingNumber,
			Carrier:           carrier,
			EstimatedDelivery: shipped.ShippedAt.Time.Add(5 * 24 * time.Hour).Format(time.RFC3339),
			ShippedAt:         shipped.ShippedAt.Time.Format(time.RFC3339),
		},
	}); err != nil {
		return false, fmt.Errorf("insert order.shipped outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// withOriginatingTrace recovers the order.created row's trace context and
// attaches it to ctx, so every event in an order's lifecycle shares one
// trace (§9). A lookup failure is not fatal — the transition still emits
// its outbox event, just under a fresh trace.
func (p *Processor) withOriginatingTrace(ctx context.Context, qtx db.Querier, orderID string) context.Context {
	origin, err := qtx.GetOutboxEventByAggregateEventType(ctx, orderID, domain.EventOrderCreated)
	if err != nil || !origin.TraceID.Valid || !origin.SpanID.Valid {
		return tracing.WithContext(ctx, tracing.New())
	}
	return tracing.WithContext(ctx, tracing.Context{TraceID: origin.TraceID.String, SpanID: origin.SpanID.String})
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
