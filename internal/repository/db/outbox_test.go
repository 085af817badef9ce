package db_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/order-lifecycle/internal/repository/db"
)

func zeroUUID() pgtype.UUID {
	return pgtype.UUID{Valid: true}
}

var outboxColumns = []string{
	"id", "event_id", "event_type", "topic", "partition_key", "aggregate_id", "payload",
	"published", "published_at", "attempts", "last_error",
	"trace_id", "span_id", "parent_span_id", "created_at", "updated_at",
}

// TestLockUnpublishedOutboxEventsUsesSkipLocked asserts the relay's batch
// select issues FOR UPDATE SKIP LOCKED (§4.4, §5) so concurrent relay
// replicas never block behind one another's in-flight row.
func TestLockUnpublishedOutboxEventsUsesSkipLocked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`(?s)SELECT.*FROM outbox_events.*WHERE published = false.*FOR UPDATE SKIP LOCKED`).
		WithArgs(int32(10)).
		WillReturnRows(pgxmock.NewRows(outboxColumns))

	q := db.New(mock)
	_, err = q.LockUnpublishedOutboxEvents(context.Background(), 10)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOutboxEventPublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := pgxmock.AnyArg()
	mock.ExpectExec(`UPDATE outbox_events SET published = true`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	q := db.New(mock)
	err = q.MarkOutboxEventPublished(context.Background(), zeroUUID())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutboxEventFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE outbox_events SET attempts = attempts \+ 1`).
		WithArgs(pgxmock.AnyArg(), "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	q := db.New(mock)
	err = q.RecordOutboxEventFailure(context.Background(), db.RecordOutboxEventFailureParams{
		ID:        zeroUUID(),
		LastError: "boom",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
