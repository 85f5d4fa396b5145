package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:outbox_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func newTestRepo(conn *gorm.DB) *Repository {
	repo := NewRepository(conn)
	repo.now = func() time.Time { return testNow }
	return repo
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := newTestDB(t)
	repo := newTestRepo(conn)
	svc := NewService(repo, nil).WithClock(func() time.Time { return testNow })

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventReservationCreated,
			AggregateType: enums.AggregateReservation,
			AggregateID:   "res-1",
			Data:          map[string]any{"quantity": 3},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateReservation, "res-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEqual(t, uuid.Nil, rows[0].ID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.True(t, envelope.OccurredAt.Equal(testNow))
	assert.JSONEq(t, `{"quantity":3}`, string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := newTestDB(t)
	repo := newTestRepo(conn)
	svc := NewService(repo, nil)

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventReservationCancelled,
			AggregateType: enums.AggregateReservation,
			AggregateID:   "res-2",
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateReservation, "res-2")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitValidation(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(newTestRepo(conn), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: "bogus", AggregateID: "x"}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventReservationExpired}))
}

func TestPublishLifecycle(t *testing.T) {
	conn := newTestDB(t)
	repo := newTestRepo(conn)

	first := seedEvent(t, conn, repo, testNow.Add(-2*time.Minute), 0)
	second := seedEvent(t, conn, repo, testNow.Add(-time.Minute), 0)
	exhausted := seedEvent(t, conn, repo, testNow.Add(-3*time.Minute), 5)

	var fetched []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	require.Len(t, fetched, 2)
	assert.Equal(t, first, fetched[0].ID)
	assert.Equal(t, second, fetched[1].ID)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, first); err != nil {
			return err
		}
		return repo.MarkFailedTx(tx, second, errors.New("topic unavailable"))
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.Take(&row, "id = ?", second).Error)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "topic unavailable", *row.LastError)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return repo.MarkTerminalTx(tx, second, errors.New("bad payload"), 5)
	}))
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	assert.Empty(t, fetched)

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(context.Background(), tx, testNow.Add(time.Hour), 5)
		return err
	}))
	assert.Equal(t, int64(3), deleted, "published, terminal and exhausted rows all age out")
	assert.NotEqual(t, uuid.Nil, exhausted)
}

func TestDLQInsertAndFind(t *testing.T) {
	conn := newTestDB(t)
	dlq := NewDLQRepository(conn)
	eventID := uuid.New()

	long := make([]byte, maxDLQErrorLen+50)
	for i := range long {
		long[i] = 'e'
	}
	msg := string(long)
	entry := models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventReservationCreated,
		AggregateType: enums.AggregateReservation,
		AggregateID:   "res-9",
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
	}
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error { return dlq.InsertTx(tx, entry) }))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := dlq.List(context.Background(), enums.OutboxDLQReasonNonRetryable, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
	rows, err = dlq.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	entry.ErrorReason = "unknown"
	require.Error(t, conn.Transaction(func(tx *gorm.DB) error { return dlq.InsertTx(tx, entry) }))
}

func TestDLQDeleteFailedBefore(t *testing.T) {
	conn := newTestDB(t)
	dlq := NewDLQRepository(conn)
	for _, failedAt := range []time.Time{testNow.AddDate(0, 0, -100), testNow.AddDate(0, 0, -1)} {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return dlq.InsertTx(tx, models.OutboxDLQ{
				EventID:       uuid.New(),
				EventType:     enums.EventReservationExpired,
				AggregateType: enums.AggregateReservation,
				AggregateID:   "res-old",
				Payload:       json.RawMessage(`{}`),
				ErrorReason:   enums.OutboxDLQReasonNonRetryable,
				FailedAt:      failedAt,
			})
		}))
	}

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = dlq.DeleteFailedBefore(context.Background(), tx, testNow.AddDate(0, 0, -90))
		return err
	}))
	assert.Equal(t, int64(1), deleted)

	rows, err := dlq.List(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].FailedAt.Equal(testNow.AddDate(0, 0, -1)))
}

func seedEvent(t *testing.T, conn *gorm.DB, repo *Repository, createdAt time.Time, attempts int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventReservationCreated,
		AggregateType: enums.AggregateReservation,
		AggregateID:   uuid.NewString(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
	}))
	return id
}
