package domain

import "time"

// OutboxEvent is the §3 OutboxEvent entity: the row written in the same
// transaction as the business state change that produced it, relayed to the
// bus by the relay worker, and never deleted by normal operation.
type OutboxEvent struct {
	ID           string
	EventID      string
	EventType    string
	Topic        string
	PartitionKey string
	AggregateID  string
	Payload      []byte // JSON-encoded Envelope
	Published    bool
	PublishedAt  *time.Time
	Attempts     int32
	LastError    string
	TraceID      string
	SpanID       string
	ParentSpanID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
