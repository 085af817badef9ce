package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/cache"
	"github.com/arc-self/order-lifecycle/internal/directory"
	"github.com/arc-self/order-lifecycle/internal/domain"
	"github.com/arc-self/order-lifecycle/internal/repository/db"
	"github.com/arc-self/order-lifecycle/internal/tracing"
)

var orderColumns = []string{
	"id", "user_id", "total_amount", "currency", "shipping_address", "status",
	"tracking_number", "carrier", "payment_id", "created_at", "updated_at", "confirmed_at", "shipped_at",
}

type fakePublisher struct {
	calls []string
	ctxs  []context.Context
	fail  map[int]bool
	n     int
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte, partitionKey, traceparent string) error {
	i := f.n
	f.n++
	f.calls = append(f.calls, topic)
	f.ctxs = append(f.ctxs, ctx)
	if f.fail[i] {
		return assert.AnError
	}
	return nil
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.New(rdb, 24*time.Hour, 7*24*time.Hour)
}

func userDeletedEnvelope(eventID, userID string) []byte {
	data, _ := json.Marshal(domain.UserDeletedData{UserID: userID})
	b, _ := json.Marshal(domain.Envelope{
		EventID:   eventID,
		EventType: domain.EventUserDeleted,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   domain.EnvelopeVersion,
		Data:      data,
	})
	return b
}

func TestProcessEventSkipsAlreadyProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := newTestCache(t)
	_, err = c.MarkProcessed(context.Background(), "evt-1")
	require.NoError(t, err)

	pub := &fakePublisher{}
	cons := New(nil, mock, db.New(mock), c, pub, "test-group", zap.NewNop(), nil)

	err = cons.processEvent(context.Background(), userDeletedEnvelope("evt-1", "user-1"), nil)
	require.NoError(t, err)
	assert.Empty(t, pub.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleUserDeletedPublishesBeforeEachDBWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, user_id").
		WillReturnRows(pgxmock.NewRows(orderColumns).
			AddRow("11111111-1111-1111-1111-111111111111", "user-1", "9.99", "USD", nil, "pending",
				nil, nil, nil, nil, nil, nil, nil).
			AddRow("22222222-2222-2222-2222-222222222222", "user-1", "4.99", "USD", nil, "confirmed",
				nil, nil, "pay_x", nil, nil, nil, nil))

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE orders SET status = 'cancelled'").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "9.99", "USD", nil, "cancelled",
			nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE orders SET status = 'cancelled'").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"22222222-2222-2222-2222-222222222222", "user-1", "4.99", "USD", nil, "cancelled",
			nil, nil, "pay_x", nil, nil, nil, nil))
	mock.ExpectCommit()

	c := newTestCache(t)
	pub := &fakePublisher{}
	cons := New(nil, mock, db.New(mock), c, pub, "test-group", zap.NewNop(), nil)

	err = cons.processEvent(context.Background(), userDeletedEnvelope("evt-2", "user-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.EventOrderCancelled, domain.EventOrderCancelled}, pub.calls)
	assert.NoError(t, mock.ExpectationsWereMet())

	processed, err := c.IsProcessed(context.Background(), "evt-2")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleUserDeletedSkipsDBWriteOnPublishFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, user_id").
		WillReturnRows(pgxmock.NewRows(orderColumns).
			AddRow("11111111-1111-1111-1111-111111111111", "user-1", "9.99", "USD", nil, "pending",
				nil, nil, nil, nil, nil, nil, nil))

	c := newTestCache(t)
	pub := &fakePublisher{fail: map[int]bool{0: true}}
	cons := New(nil, mock, db.New(mock), c, pub, "test-group", zap.NewNop(), nil)

	err = cons.processEvent(context.Background(), userDeletedEnvelope("evt-3", "user-1"), nil)
	require.NoError(t, err, "a per-order publish failure is logged and skipped, not propagated")
	assert.Equal(t, []string{domain.EventOrderCancelled}, pub.calls)
	assert.NoError(t, mock.ExpectationsWereMet(), "no Begin/Exec expected since the publish failed first")
}

func TestProcessEventExtractsTraceFromNATSHeader(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, user_id").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "9.99", "USD", nil, "pending",
			nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE orders SET status = 'cancelled'").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "9.99", "USD", nil, "cancelled",
			nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectCommit()

	c := newTestCache(t)
	pub := &fakePublisher{}
	cons := New(nil, mock, db.New(mock), c, pub, "test-group", zap.NewNop(), nil)

	const inboundTraceID = "0af7651916cd43dd8448eb211c80319c"
	const inboundSpanID = "b7ad6b7169203331"
	header := make(nats.Header)
	header.Set("traceparent", "00-"+inboundTraceID+"-"+inboundSpanID+"-01")

	err = cons.processEvent(context.Background(), userDeletedEnvelope("evt-5", "user-1"), header)
	require.NoError(t, err)
	require.Len(t, pub.ctxs, 1)

	tc, ok := tracing.FromContext(pub.ctxs[0])
	require.True(t, ok, "the cancellation publish must carry the trace context extracted from the inbound header")
	assert.Equal(t, inboundTraceID, tc.TraceID, "trace_id is preserved across the hop")
	assert.Equal(t, inboundSpanID, tc.ParentSpanID, "the inbound span_id becomes the parent, per Parse's contract")
	assert.NotEmpty(t, tc.SpanID)
	assert.NotEqual(t, inboundSpanID, tc.SpanID, "Parse mints a fresh span_id for this hop")
}

func TestProcessEventFallsBackToFreshTraceWithoutHeader(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, user_id").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "9.99", "USD", nil, "pending",
			nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE orders SET status = 'cancelled'").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"11111111-1111-1111-1111-111111111111", "user-1", "9.99", "USD", nil, "cancelled",
			nil, nil, nil, nil, nil, nil, nil))
	mock.ExpectCommit()

	c := newTestCache(t)
	pub := &fakePublisher{}
	cons := New(nil, mock, db.New(mock), c, pub, "test-group", zap.NewNop(), nil)

	err = cons.processEvent(context.Background(), userDeletedEnvelope("evt-6", "user-1"), nil)
	require.NoError(t, err)
	require.Len(t, pub.ctxs, 1)

	tc, ok := tracing.FromContext(pub.ctxs[0])
	require.True(t, ok)
	assert.Len(t, tc.TraceID, 32)
	assert.Empty(t, tc.ParentSpanID, "a missing header starts a fresh, parentless trace")
}

func TestHandleUserUpsertWritesCache(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := newTestCache(t)
	require.NoError(t, c.SetUser(context.Background(), directory.User{UserID: "user-1", Status: "active"}))

	pub := &fakePublisher{}
	cons := New(nil, mock, db.New(mock), c, pub, "test-group", zap.NewNop(), nil)

	userData, _ := json.Marshal(domain.UserEventData{UserID: "user-1", Email: "new@example.com", Status: "active"})
	raw, _ := json.Marshal(domain.Envelope{
		EventID:   "evt-4",
		EventType: domain.EventUserUpdated,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   domain.EnvelopeVersion,
		Data:      userData,
	})
	err = cons.processEvent(context.Background(), raw, nil)
	require.NoError(t, err)

	got, ok, err := c.GetUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, ok, "the upsert event's user record is written to the cache")
	assert.Equal(t, "new@example.com", got.Email)
}
