// Package repository adapts the hand-written db package (pgtype-typed
// rows) to the plain-string domain package the rest of the service works
// with, and provides the UUID/numeric/timestamp helpers every other package
// needs when talking to Postgres.
package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/arc-self/order-lifecycle/internal/domain"
	"github.com/arc-self/order-lifecycle/internal/repository/db"
)

// NewUUID generates a UUIDv7 (time-ordered, so primary-key locality and
// created_at correlate) and returns it as a pgtype.UUID, following the
// teacher's newUUID idiom.
func NewUUID() pgtype.UUID {
	id, _ := uuid.NewV7()
	var u pgtype.UUID
	_ = u.Scan(id.String())
	return u
}

// ParseUUID parses a string UUID into pgtype.UUID.
func ParseUUID(s string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("parse uuid %q: %w", s, err)
	}
	var u pgtype.UUID
	_ = u.Scan(parsed.String())
	return u, nil
}

// UUIDString renders a pgtype.UUID as a canonical hex string.
func UUIDString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	id, _ := uuid.FromBytes(u.Bytes[:])
	return id.String()
}

// Text wraps a possibly-empty string as pgtype.Text, treating "" as NULL.
func Text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// TextPtr unwraps a pgtype.Text into a *string, nil when NULL.
func TextPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}

// OptionalText wraps a *string as pgtype.Text.
func OptionalText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return Text(*s)
}

// Numeric parses a decimal string into pgtype.Numeric.
func Numeric(s string) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return n, nil
}

// NumericString renders a pgtype.Numeric back to its decimal string form.
func NumericString(n pgtype.Numeric) string {
	v, err := n.Value()
	if err != nil || v == nil {
		return "0"
	}
	s, _ := v.(string)
	return s
}

// TimePtr converts a pgtype.Timestamptz to *time.Time, nil when NULL.
func TimePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Timestamptz wraps a time.Time as a valid pgtype.Timestamptz.
func Timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// ToDomainOrder converts a db.Order row (and its already-loaded items) into
// the plain domain.Order the service/handler layers operate on.
func ToDomainOrder(o db.Order, items []db.OrderItem) domain.Order {
	out := domain.Order{
		ID:              UUIDString(o.ID),
		UserID:          o.UserID,
		TotalAmount:     NumericString(o.TotalAmount),
		Currency:        o.Currency,
		ShippingAddress: TextPtr(o.ShippingAddress),
		Status:          domain.OrderStatus(o.Status),
		TrackingNumber:  TextPtr(o.TrackingNumber),
		Carrier:         TextPtr(o.Carrier),
		PaymentID:       TextPtr(o.PaymentID),
		ConfirmedAt:     TimePtr(o.ConfirmedAt),
		ShippedAt:       TimePtr(o.ShippedAt),
	}
	if o.CreatedAt.Valid {
		out.CreatedAt = o.CreatedAt.Time
	}
	if o.UpdatedAt.Valid {
		out.UpdatedAt = o.UpdatedAt.Time
	}
	for _, it := range items {
		out.Items = append(out.Items, domain.OrderItem{
			ID:        UUIDString(it.ID),
			OrderID:   UUIDString(it.OrderID),
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     NumericString(it.Price),
		})
	}
	return out
}
