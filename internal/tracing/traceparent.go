// Package tracing implements the W3C traceparent codec (§4.1) that rides
// inside outbox payloads and bus message headers. It is deliberately
// separate from the OpenTelemetry SDK spans the HTTP/DB layers emit: this
// package's Context is the small, serializable (trace_id, span_id,
// parent_span_id) triple that survives a database round-trip and a bus
// hop, and from which a remote otel.SpanContext can later be reconstructed.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Context is a parsed or freshly minted W3C trace context.
type Context struct {
	TraceID      string // 32 lowercase hex chars
	SpanID       string // 16 lowercase hex chars
	ParentSpanID string // 16 lowercase hex chars, empty for a fresh trace
}

const (
	traceIDHexLen = 32
	spanIDHexLen  = 16
	headerVersion = "00"
	headerFlags   = "01"
)

// GenerateTraceID returns a cryptographically random 128-bit trace id as
// 32 lowercase hex characters.
func GenerateTraceID() string {
	return randomHex(16)
}

// GenerateSpanID returns a cryptographically random 64-bit span id as 16
// lowercase hex characters.
func GenerateSpanID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	// crypto/rand.Read never returns a short read without an error, and on
	// error we fall back to the zero buffer — Parse/validation elsewhere
	// rejects all-zero ids, so a starved entropy source degrades safely to
	// "start a fresh trace" rather than propagating a bad id.
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Format renders a Context as a W3C traceparent header. The returned span_id
// is always the context's own SpanID — callers that want to hand a child a
// new id must mint one with GenerateSpanID first.
func Format(c Context) string {
	return fmt.Sprintf("%s-%s-%s-%s", headerVersion, c.TraceID, c.SpanID, headerFlags)
}

// Parse decodes a W3C traceparent header. It returns ok=false for any
// malformed input — version mismatch, wrong segment lengths, non-hex
// characters, or an all-zero trace/span id — never an error, matching the
// spec's "malformed input never aborts the operation" contract (§4.1).
//
// On success the returned Context carries a *new* SpanID and records the
// inbound span id as ParentSpanID, per §4.1: "parse produces a new span_id
// and keeps the inbound span_id as parent_span_id".
func Parse(header string) (Context, bool) {
	if len(header) != 2+1+traceIDHexLen+1+spanIDHexLen+1+2 {
		return Context{}, false
	}
	version := header[0:2]
	traceID := header[3 : 3+traceIDHexLen]
	spanID := header[3+traceIDHexLen+1 : 3+traceIDHexLen+1+spanIDHexLen]
	flags := header[len(header)-2:]

	if version != headerVersion {
		return Context{}, false
	}
	if !isHex(traceID) || !isHex(spanID) || !isHex(flags) {
		return Context{}, false
	}
	if isAllZero(traceID) || isAllZero(spanID) {
		return Context{}, false
	}

	return Context{
		TraceID:      traceID,
		SpanID:       GenerateSpanID(),
		ParentSpanID: spanID,
	}, true
}

// New starts a fresh trace context with no parent.
func New() Context {
	return Context{TraceID: GenerateTraceID(), SpanID: GenerateSpanID()}
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return len(s) > 0
}

func isAllZero(s string) bool {
	for _, c := range s {
		if c != '0' {
			return false
		}
	}
	return true
}

// ── request-scoped carrier ──────────────────────────────────────────────

type carrierKey struct{}

// WithContext returns a derived context.Context carrying c as the current
// trace context for this unit of work. Starting a new unit of work (a fresh
// HTTP request, a fresh relay row, a fresh processor transition) must call
// this with a newly parsed-or-generated Context rather than inheriting one,
// per §9's "starting a new unit must clear inherited context".
func WithContext(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, carrierKey{}, c)
}

// FromContext retrieves the current trace context, if any was set on this
// path. ok is false if no unit of work has established one yet.
func FromContext(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(carrierKey{}).(Context)
	return c, ok
}
