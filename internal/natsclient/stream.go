package natsclient

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamOrderLifecycle is the durable stream that captures every
	// order/user domain event published to order.> or user.> (by the relay
	// worker, the event consumer's cancellation path, and cmd/eventgen).
	StreamOrderLifecycle = "ORDER_LIFECYCLE"
	// SubjectOrders captures order.created/confirmed/shipped/cancelled.
	SubjectOrders = "order.>"
	// SubjectUsers captures user.created/updated/deleted.
	SubjectUsers = "user.>"
)

var streamSubjects = []string{SubjectOrders, SubjectUsers}

// ProvisionStreams idempotently ensures the ORDER_LIFECYCLE JetStream stream
// exists with the correct subject filter. It creates the stream on first run
// and is a no-op if the stream already exists.
func (c *Client) ProvisionStreams() error {
	info, err := c.JS.StreamInfo(StreamOrderLifecycle)
	if err == nil {
		_ = info
		c.Log.Info("NATS stream already exists", zap.String("stream", StreamOrderLifecycle))
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamOrderLifecycle,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}

	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	c.Log.Info("NATS stream provisioned",
		zap.String("stream", StreamOrderLifecycle),
		zap.Strings("subjects", streamSubjects),
	)
	return nil
}
