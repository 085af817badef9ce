// Package consumer implements the §4.6 inbound event consumer: a durable
// JetStream pull subscription on user.* subjects that keeps the local user
// cache warm and cancels outstanding orders on user.deleted.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/cache"
	"github.com/arc-self/order-lifecycle/internal/directory"
	"github.com/arc-self/order-lifecycle/internal/domain"
	"github.com/arc-self/order-lifecycle/internal/natsclient"
	"github.com/arc-self/order-lifecycle/internal/repository"
	"github.com/arc-self/order-lifecycle/internal/repository/db"
	"github.com/arc-self/order-lifecycle/internal/telemetry"
	"github.com/arc-self/order-lifecycle/internal/tracing"
)

// cancellableStatuses are the order statuses a user.deleted event may still
// cancel (§4.6).
var cancellableStatuses = []string{string(domain.OrderStatusPending), string(domain.OrderStatusConfirmed)}

// Publisher is the same shape as internal/relay's Publisher — kept as its
// own interface here (rather than imported) so the consumer doesn't take a
// dependency on the relay package for an unrelated collaborator.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, partitionKey, traceparent string) error
}

// beginner is satisfied by *pgxpool.Pool in production and pgxmock's mocked
// pool in tests.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// malformedPayloadError marks an event as a poison pill — processMessage
// terminates it instead of requeueing, mirroring the audit consumer's
// "malformed payload" sentinel string match but as a typed error.
type malformedPayloadError struct{ err error }

func (e malformedPayloadError) Error() string { return fmt.Sprintf("malformed payload: %v", e.err) }
func (e malformedPayloadError) Unwrap() error  { return e.err }

// Consumer pulls user.* events from JetStream, applies the §4.6 cache and
// cancellation side effects, and acks/naks/terms based on the outcome.
type Consumer struct {
	nats    *natsclient.Client
	pool    beginner
	querier db.Querier
	cache   *cache.Cache
	publish Publisher
	durable string
	logger  *zap.Logger
	metrics *telemetry.Metrics
	batch   int
}

// New wires a Consumer from its dependencies. durable names the JetStream
// consumer group (one logical subscriber across all replicas).
func New(nc *natsclient.Client, pool beginner, q db.Querier, c *cache.Cache, pub Publisher, durable string, logger *zap.Logger, metrics *telemetry.Metrics) *Consumer {
	return &Consumer{nats: nc, pool: pool, querier: q, cache: c, publish: pub, durable: durable, logger: logger, metrics: metrics, batch: 10}
}

// Run opens a durable pull subscription on user.> and processes messages
// until ctx is cancelled, following the audit consumer's Fetch-loop shape.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.nats.JS.PullSubscribe(
		natsclient.SubjectUsers,
		c.durable,
		nats.BindStream(natsclient.StreamOrderLifecycle),
	)
	if err != nil {
		return fmt.Errorf("pull subscribe: %w", err)
	}

	c.logger.Info("event consumer subscribed",
		zap.String("stream", natsclient.StreamOrderLifecycle),
		zap.String("durable", c.durable))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if c.metrics != nil {
				c.metrics.BackgroundTaskLive.WithLabelValues("consumer").Set(1)
			}
			msgs, err := sub.Fetch(c.batch, nats.Context(ctx))
			if err != nil {
				continue // fetch timeout or ctx cancellation; loop and re-check ctx.Done()
			}
			for _, msg := range msgs {
				c.processMessage(ctx, msg)
			}
		}
	}
}

// processMessage decides ack/nak/term from processEvent's outcome, kept
// separate from processEvent so the handler logic is testable without a
// live NATS message (mirrors the audit consumer's split).
func (c *Consumer) processMessage(ctx context.Context, msg *nats.Msg) {
	start := time.Now()
	err := c.processEvent(ctx, msg.Data, msg.Header)
	if c.metrics != nil {
		c.metrics.ConsumeLatency.Observe(time.Since(start).Seconds())
	}

	var malformed malformedPayloadError
	switch {
	case err == nil:
		_ = msg.Ack()
	case asMalformed(err, &malformed):
		c.logger.Error("terminating poison-pill event", zap.Error(err))
		_ = msg.Term()
	default:
		c.logger.Warn("event processing failed, will redeliver", zap.Error(err))
		_ = msg.Nak()
	}
}

func asMalformed(err error, target *malformedPayloadError) bool {
	me, ok := err.(malformedPayloadError)
	if ok {
		*target = me
	}
	return ok
}

// processEvent parses the envelope, applies the idempotency check, and
// dispatches by event type (§4.6).
func (c *Consumer) processEvent(ctx context.Context, data []byte, header nats.Header) error {
	var envelope domain.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return malformedPayloadError{err}
	}

	already, err := c.cache.IsProcessed(ctx, envelope.EventID)
	if err != nil {
		return fmt.Errorf("check processed marker: %w", err)
	}
	if already {
		if c.metrics != nil {
			c.metrics.EventsDuplicated.WithLabelValues(envelope.EventType).Inc()
		}
		return nil
	}

	ctx = c.withTraceFromHeader(ctx, header)

	var handleErr error
	switch envelope.EventType {
	case domain.EventUserCreated, domain.EventUserUpdated:
		handleErr = c.handleUserUpsert(ctx, envelope)
	case domain.EventUserDeleted:
		handleErr = c.handleUserDeleted(ctx, envelope)
	default:
		// Unknown event types on this subscription are not this consumer's
		// concern; ack without processing so they don't pile up as retries.
		handleErr = nil
	}
	if handleErr != nil {
		return handleErr
	}

	if _, err := c.cache.MarkProcessed(ctx, envelope.EventID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if c.metrics != nil {
		c.metrics.EventsConsumed.WithLabelValues(envelope.EventType).Inc()
		c.metrics.EventsProcessed.WithLabelValues(envelope.EventType).Inc()
	}
	return nil
}

// handleUserUpsert keeps the cache-aside user cache warm so CreateOrder's
// validation path hits the cache instead of the directory on the common
// case (§4.6, §6.4).
func (c *Consumer) handleUserUpsert(ctx context.Context, envelope domain.Envelope) error {
	var data domain.UserEventData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return malformedPayloadError{err}
	}
	if data.UserID == "" {
		return malformedPayloadError{fmt.Errorf("missing user_id")}
	}

	return c.cache.SetUser(ctx, directory.User{
		UserID: data.UserID,
		Email:  data.Email,
		Name:   data.Name,
		Status: data.Status,
	})
}

// handleUserDeleted cancels the user's outstanding orders. Per §4.6/§9 the
// bus publish for each order.cancelled happens before that order's DB
// write — a deliberate kept-as-specified ordering (see DESIGN.md) whose
// recovery semantics rely on this handler's own idempotency, not the
// publish/write pair's atomicity.
func (c *Consumer) handleUserDeleted(ctx context.Context, envelope domain.Envelope) error {
	var data domain.UserDeletedData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return malformedPayloadError{err}
	}
	if data.UserID == "" {
		return malformedPayloadError{fmt.Errorf("missing user_id")}
	}

	orders, err := c.querier.ListOrdersByUserAndStatuses(ctx, data.UserID, cancellableStatuses)
	if err != nil {
		return fmt.Errorf("list cancellable orders: %w", err)
	}

	for _, order := range orders {
		if err := c.cancelOne(ctx, order, data.UserID); err != nil {
			c.logger.Error("order cancellation failed, leaving order in place",
				zap.String("order_id", repository.UUIDString(order.ID)), zap.Error(err))
		}
	}

	return c.cache.InvalidateUser(ctx, data.UserID)
}

// cancelOne publishes order.cancelled and, only if that succeeds, writes
// the status change in a separate transaction (§4.6: "on bus failure,
// rollback the DB write and move on").
func (c *Consumer) cancelOne(ctx context.Context, order db.Order, userID string) error {
	orderID := repository.UUIDString(order.ID)

	dataRaw, err := json.Marshal(domain.OrderCancelledData{
		OrderID:     orderID,
		UserID:      userID,
		Status:      string(domain.OrderStatusCancelled),
		Reason:      "user_deleted",
		CancelledAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal cancellation data: %w", err)
	}
	envelope := domain.Envelope{
		EventID:   fmt.Sprintf("%s-cancelled", orderID),
		EventType: domain.EventOrderCancelled,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   domain.EnvelopeVersion,
		Data:      dataRaw,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal cancellation event: %w", err)
	}

	traceparent := ""
	if tc, ok := tracing.FromContext(ctx); ok {
		traceparent = tracing.Format(tc)
	}

	if err := c.publish.Publish(ctx, domain.EventOrderCancelled, payload, userID, traceparent); err != nil {
		return fmt.Errorf("publish order.cancelled: %w", err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := db.New(tx).CancelOrder(ctx, db.CancelOrderParams{ID: order.ID}); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return tx.Commit(ctx)
}

// withTraceFromHeader extracts the W3C traceparent header the publisher set
// on the NATS message (§6.2: trace context rides the bus as a header, never
// embedded in the event data body) and parses it into a request-scoped
// trace context. A missing or malformed header starts a fresh trace rather
// than failing the message, mirroring Parse's own "never abort" contract.
func (c *Consumer) withTraceFromHeader(ctx context.Context, header nats.Header) context.Context {
	raw := header.Get("traceparent")
	if raw == "" {
		return tracing.WithContext(ctx, tracing.New())
	}
	tc, ok := tracing.Parse(raw)
	if !ok {
		return tracing.WithContext(ctx, tracing.New())
	}
	return tracing.WithContext(ctx, tc)
}
