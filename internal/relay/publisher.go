package relay

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/arc-self/order-lifecycle/internal/natsclient"
)

// Publisher is the bus-publish seam the relay depends on, so tests can
// swap in a fake without a live NATS connection.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, partitionKey, traceparent string) error
}

// natsPublisher publishes via JetStream, attaching traceparent and the
// partition key as message headers when present. Topic is always the fixed
// event-type subject, never key-namespaced, so ordering does not come from
// per-key subject routing: the single ORDER_LIFECYCLE stream (covering
// order.> and user.>) gives every message one global sequence, and
// partition-key is carried purely for downstream consumers that want to
// group by it, not for ordering.
type natsPublisher struct {
	client *natsclient.Client
}

// NewPublisher wraps a natsclient.Client as a relay Publisher.
func NewPublisher(client *natsclient.Client) Publisher {
	return &natsPublisher{client: client}
}

func (p *natsPublisher) Publish(ctx context.Context, topic string, payload []byte, partitionKey, traceparent string) error {
	msg := &nats.Msg{
		Subject: topic,
		Data:    payload,
	}
	if traceparent != "" {
		msg.Header = nats.Header{}
		msg.Header.Set("traceparent", traceparent)
	}
	if partitionKey != "" {
		if msg.Header == nil {
			msg.Header = nats.Header{}
		}
		msg.Header.Set("partition-key", partitionKey)
	}

	_, err := p.client.JS.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
