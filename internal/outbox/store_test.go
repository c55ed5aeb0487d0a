package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRunsInCallerTransaction(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO outbox_events`).
		WithArgs("ASSET_LOAN", int64(42), "AssetAssigned", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))
	mock.ExpectRollback()

	tx, err := conn.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	store := NewStore(conn)
	rec, err := NewRecord("ASSET_LOAN", 42, "AssetAssigned", map[string]interface{}{"loanId": 42})
	require.NoError(t, err)

	require.NoError(t, store.Insert(context.Background(), tx, rec))
	assert.Equal(t, int64(7), rec.ID)
}

func drainRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "aggregate_type", "aggregate_id", "event_type", "payload_json", "created_at", "retry_count",
	})
	for _, id := range ids {
		rows.AddRow(id, "ASSET_LOAN", id, "AssetAssigned", []byte(`{"loanId":1}`), time.Now(), 0)
	}
	return rows
}

func TestDrainMarksSentOnSuccess(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(3, 100).
		WillReturnRows(drainRows(1, 2))
	mock.ExpectExec(`SET sent_at = NOW\(\)`).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET sent_at = NOW\(\)`).WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewStore(conn)
	var published []int64
	sent, err := store.Drain(context.Background(), 100, 3, func(_ context.Context, rec Record) error {
		published = append(published, rec.ID)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 2}, published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainBumpsRetryOnFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(3, 100).
		WillReturnRows(drainRows(1, 2))
	mock.ExpectExec(`SET retry_count = retry_count \+ 1`).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET sent_at = NOW\(\)`).WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewStore(conn)
	sent, err := store.Drain(context.Background(), 100, 3, func(_ context.Context, rec Record) error {
		if rec.ID == 1 {
			return errors.New("broker down")
		}
		return nil
	})

	// One failure does not stop the batch.
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectStuck(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{
		"id", "aggregate_type", "aggregate_id", "event_type", "payload_json", "created_at", "retry_count",
	}).AddRow(int64(9), "ASSET_LOAN", int64(9), "AssetOverdue", []byte(`{}`), time.Now(), 3)

	mock.ExpectQuery(`retry_count >= \$1`).WithArgs(3).WillReturnRows(rows)

	store := NewStore(conn)
	stuck, err := store.SelectStuck(context.Background(), 3)

	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, int64(9), stuck[0].ID)
	assert.Equal(t, 3, stuck[0].RetryCount)
}
