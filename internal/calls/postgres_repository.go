package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Querier is the pgx query surface the repository needs. *pgxpool.Pool and
// pgxmock both satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores call records in the relational database.
type PostgresRepository struct {
	pool Querier
}

// NewPostgresRepository initializes a repo backed by pgx.
func NewPostgresRepository(pool Querier) *PostgresRepository {
	if pool == nil {
		panic("calls: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const callColumns = `id, tenant_id, call_sid, caller_phone, tenant_phone, status,
		current_turn, consecutive_low_confidence,
		handoff_attempted, handoff_number, handoff_reason, started_at, ended_at`

// FindByCallSID fetches a call by the provider's session identifier.
func (r *PostgresRepository) FindByCallSID(ctx context.Context, callSID string) (*CallRecord, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE call_sid = $1
	`
	return r.scanCall(r.pool.QueryRow(ctx, query, callSID))
}

// Create inserts a new call row.
func (r *PostgresRepository) Create(ctx context.Context, record *CallRecord) (*CallRecord, error) {
	if record.CallSID == "" {
		return nil, ErrMissingCallSID
	}

	id := record.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := record.Status
	if status == "" {
		status = StatusInProgress
	}

	query := `
		INSERT INTO calls (id, tenant_id, call_sid, caller_phone, tenant_phone, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + callColumns + `
	`
	saved, err := r.scanCall(r.pool.QueryRow(ctx, query,
		id,
		record.TenantID,
		record.CallSID,
		record.CallerPhone,
		record.TenantPhone,
		status,
	))
	if err != nil {
		return nil, fmt.Errorf("calls: insert failed: %w", err)
	}
	return saved, nil
}

// Save persists mutable call fields.
func (r *PostgresRepository) Save(ctx context.Context, record *CallRecord) error {
	if record.CallSID == "" {
		return ErrMissingCallSID
	}

	query := `
		UPDATE calls
		SET status = $2,
			current_turn = $3,
			consecutive_low_confidence = $4,
			handoff_attempted = $5,
			handoff_number = $6,
			handoff_reason = $7,
			ended_at = $8
		WHERE call_sid = $1
		RETURNING id
	`
	var id string
	err := r.pool.QueryRow(ctx, query,
		record.CallSID,
		record.Status,
		record.CurrentTurn,
		record.ConsecutiveLowConfidence,
		record.HandoffAttempted,
		record.HandoffNumber,
		record.HandoffReason,
		record.EndedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCallNotFound
		}
		return fmt.Errorf("calls: update failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanCall(row pgx.Row) (*CallRecord, error) {
	var (
		record  CallRecord
		endedAt *time.Time
	)
	if err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.CallSID,
		&record.CallerPhone,
		&record.TenantPhone,
		&record.Status,
		&record.CurrentTurn,
		&record.ConsecutiveLowConfidence,
		&record.HandoffAttempted,
		&record.HandoffNumber,
		&record.HandoffReason,
		&record.StartedAt,
		&endedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("calls: select failed: %w", err)
	}
	record.EndedAt = endedAt
	return &record, nil
}

var _ Repository = (*PostgresRepository)(nil)
