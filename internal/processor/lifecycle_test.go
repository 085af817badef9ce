package processor

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/outbox"
)

var orderColumns = []string{
	"id", "user_id", "total_amount", "currency", "shipping_address", "status",
	"tracking_number", "carrier", "payment_id", "created_at", "updated_at", "confirmed_at", "shipped_at",
}

var outboxColumns = []string{
	"id", "event_id", "event_type", "topic", "partition_key", "aggregate_id", "payload",
	"published", "published_at", "attempts", "last_error",
	"trace_id", "span_id", "parent_span_id", "created_at", "updated_at",
}

func testConfig() Config {
	return Config{ConfirmDelay: 30 * time.Second, ShipDelay: 120 * time.Second, Interval: 10 * time.Second}
}

func TestConfirmOneTransitionsAndEmitsOutboxEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "19.98", "USD", nil, "pending",
			nil, nil, nil, nil, nil, nil, nil,
		))
	mock.ExpectQuery("SELECT id, event_id").
		WillReturnRows(pgxmock.NewRows(outboxColumns))
	mock.ExpectQuery("UPDATE orders SET status = 'confirmed'").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "19.98", "USD", nil, "confirmed",
			nil, nil, "pay_abc123", nil, nil, time.Now().UTC(), nil,
		))
	mock.ExpectQuery("INSERT INTO outbox_events").
		WillReturnRows(pgxmock.NewRows(outboxColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "evt-2", "order.confirmed", "order.confirmed", "user-1", "order-1", []byte(`{}`),
			false, nil, int32(0), nil, nil, nil, nil, nil, nil,
		))
	mock.ExpectCommit()

	p := New(mock, outbox.NewStore(), testConfig(), zap.NewNop(), nil)

	ok, err := p.confirmOne(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmOneReusesOriginatingTrace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	originTraceID := "abcdefabcdefabcdefabcdefabcdef12"
	originSpanID := "abcdefabcdef1234"

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "19.98", "USD", nil, "pending",
			nil, nil, nil, nil, nil, nil, nil,
		))
	mock.ExpectQuery("SELECT id, event_id").
		WillReturnRows(pgxmock.NewRows(outboxColumns).AddRow(
			"22222222-2222-2222-2222-222222222222", "evt-1", "order.created", "order.created", "user-1", "order-1", []byte(`{}`),
			true, nil, int32(0), nil, originTraceID, originSpanID, nil, nil, nil,
		))
	mock.ExpectQuery("UPDATE orders SET status = 'confirmed'").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "19.98", "USD", nil, "confirmed",
			nil, nil, "pay_abc123", nil, nil, time.Now().UTC(), nil,
		))
	mock.ExpectQuery("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgtype.Text{String: originTraceID, Valid: true}, pgtype.Text{String: originSpanID, Valid: true},
			pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(outboxColumns).AddRow(
			"33333333-3333-3333-3333-333333333333", "evt-2", "order.confirmed", "order.confirmed", "user-1", "order-1", []byte(`{}`),
			false, nil, int32(0), nil, originTraceID, originSpanID, nil, nil, nil,
		))
	mock.ExpectCommit()

	p := New(mock, outbox.NewStore(), testConfig(), zap.NewNop(), nil)

	ok, err := p.confirmOne(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmOneNoEligibleRowsReturnsFalse(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(pgxmock.NewRows(orderColumns))
	mock.ExpectRollback()

	p := New(mock, outbox.NewStore(), testConfig(), zap.NewNop(), nil)

	ok, err := p.confirmOne(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShipOneTransitionsAndEmitsOutboxEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "19.98", "USD", nil, "confirmed",
			nil, nil, "pay_abc123", nil, nil, nil, nil,
		))
	mock.ExpectQuery("SELECT id, event_id").
		WillReturnRows(pgxmock.NewRows(outboxColumns))
	mock.ExpectQuery("UPDATE orders SET status = 'shipped'").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "19.98", "USD", nil, "shipped",
			"TRKABCDE12345", "FedEx", "pay_abc123", nil, nil, nil, time.Now().UTC(),
		))
	mock.ExpectQuery("INSERT INTO outbox_events").
		WillReturnRows(pgxmock.NewRows(outboxColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "evt-3", "order.shipped", "order.shipped", "user-1", "order-1", []byte(`{}`),
			false, nil, int32(0), nil, nil, nil, nil, nil, nil,
		))
	mock.ExpectCommit()

	p := New(mock, outbox.NewStore(), testConfig(), zap.NewNop(), nil)

	ok, err := p.shipOne(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
