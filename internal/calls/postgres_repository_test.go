package calls

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callRows(record *CallRecord) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "call_sid", "caller_phone", "tenant_phone", "status",
		"current_turn", "consecutive_low_confidence",
		"handoff_attempted", "handoff_number", "handoff_reason", "started_at", "ended_at",
	}).AddRow(
		record.ID, record.TenantID, record.CallSID, record.CallerPhone, record.TenantPhone, record.Status,
		record.CurrentTurn, record.ConsecutiveLowConfidence,
		record.HandoffAttempted, record.HandoffNumber, record.HandoffReason, record.StartedAt, record.EndedAt,
	)
}

func TestPostgresRepository_FindByCallSID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)

	stored := &CallRecord{
		ID:          "rec-1",
		TenantID:    "t-1",
		CallSID:     "CA600",
		CallerPhone: "+15551112222",
		TenantPhone: "+15553334444",
		Status:      StatusInProgress,
		StartedAt:   time.Now().UTC(),
	}
	mock.ExpectQuery("FROM calls").
		WithArgs("CA600").
		WillReturnRows(callRows(stored))

	record, err := repo.FindByCallSID(context.Background(), "CA600")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)
	assert.Equal(t, "t-1", record.TenantID)
	assert.Nil(t, record.EndedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)

	mock.ExpectQuery("FROM calls").
		WithArgs("CA-none").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.FindByCallSID(context.Background(), "CA-none")
	assert.ErrorIs(t, err, ErrCallNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)

	stored := &CallRecord{
		ID:        "rec-2",
		TenantID:  "t-1",
		CallSID:   "CA601",
		Status:    StatusInProgress,
		StartedAt: time.Now().UTC(),
	}
	mock.ExpectQuery("INSERT INTO calls").
		WithArgs(pgxmock.AnyArg(), "t-1", "CA601", "", "", StatusInProgress).
		WillReturnRows(callRows(stored))

	record, err := repo.Create(context.Background(), &CallRecord{TenantID: "t-1", CallSID: "CA601"})
	require.NoError(t, err)
	assert.Equal(t, "rec-2", record.ID)
	assert.Equal(t, StatusInProgress, record.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateRequiresCallSID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)

	_, err = repo.Create(context.Background(), &CallRecord{TenantID: "t-1"})
	assert.ErrorIs(t, err, ErrMissingCallSID)
}

func TestPostgresRepository_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)

	mock.ExpectQuery("UPDATE calls").
		WithArgs("CA602", StatusCompleted, 5, 0, true, "+15550009999", "caller_requested_human", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("rec-3"))

	ended := time.Now().UTC()
	err = repo.Save(context.Background(), &CallRecord{
		CallSID:          "CA602",
		Status:           StatusCompleted,
		CurrentTurn:      5,
		HandoffAttempted: true,
		HandoffNumber:    "+15550009999",
		HandoffReason:    "caller_requested_human",
		EndedAt:          &ended,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SaveMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)

	mock.ExpectQuery("UPDATE calls").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(pgx.ErrNoRows)

	err = repo.Save(context.Background(), &CallRecord{CallSID: "CA-none"})
	assert.ErrorIs(t, err, ErrCallNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
