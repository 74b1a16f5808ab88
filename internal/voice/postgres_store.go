package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresConfigRepository stores tenant voice configs in the relational
// database. escalation_rules and notification fields are JSONB columns.
type PostgresConfigRepository struct {
	pool Querier
}

// Querier is the pgx query surface the repository needs. *pgxpool.Pool and
// pgxmock both satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresConfigRepository initializes a repo backed by pgx.
func NewPostgresConfigRepository(pool Querier) *PostgresConfigRepository {
	if pool == nil {
		panic("voice: pgx pool required")
	}
	return &PostgresConfigRepository{pool: pool}
}

const voiceConfigColumns = `tenant_id, is_enabled, handoff_mode, live_transfer_number,
		escalation_rules, default_greeting, disclosure_line, after_hours_message,
		notification_methods, notification_recipients, created_at, updated_at`

// Read fetches the tenant's config row.
func (r *PostgresConfigRepository) Read(ctx context.Context, tenantID string) (*TenantVoiceConfig, error) {
	query := `
		SELECT ` + voiceConfigColumns + `
		FROM tenant_voice_configs
		WHERE tenant_id = $1
	`
	return r.scanConfig(r.pool.QueryRow(ctx, query, tenantID))
}

// Create inserts a config row. The unique constraint on tenant_id resolves
// the concurrent first-access race: the loser gets ErrConfigExists and
// re-reads the winner's row.
func (r *PostgresConfigRepository) Create(ctx context.Context, cfg *TenantVoiceConfig) (*TenantVoiceConfig, error) {
	rules, methods, recipients, err := marshalConfigJSON(cfg)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO tenant_voice_configs
			(id, tenant_id, is_enabled, handoff_mode, live_transfer_number,
			 escalation_rules, default_greeting, disclosure_line, after_hours_message,
			 notification_methods, notification_recipients)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id) DO NOTHING
		RETURNING ` + voiceConfigColumns + `
	`
	saved, err := r.scanConfig(r.pool.QueryRow(ctx, query,
		uuid.New(),
		cfg.TenantID,
		cfg.IsEnabled,
		string(cfg.HandoffMode),
		cfg.LiveTransferNumber,
		rules,
		cfg.DefaultGreeting,
		cfg.DisclosureLine,
		cfg.AfterHoursMessage,
		methods,
		recipients,
	))
	if errors.Is(err, ErrConfigNotFound) {
		// ON CONFLICT DO NOTHING returns no row when the tenant already has one.
		return nil, ErrConfigExists
	}
	return saved, err
}

// Update overwrites the tenant's stored config.
func (r *PostgresConfigRepository) Update(ctx context.Context, cfg *TenantVoiceConfig) (*TenantVoiceConfig, error) {
	rules, methods, recipients, err := marshalConfigJSON(cfg)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE tenant_voice_configs
		SET is_enabled = $2,
			handoff_mode = $3,
			live_transfer_number = $4,
			escalation_rules = $5,
			default_greeting = $6,
			disclosure_line = $7,
			after_hours_message = $8,
			notification_methods = $9,
			notification_recipients = $10,
			updated_at = now()
		WHERE tenant_id = $1
		RETURNING ` + voiceConfigColumns + `
	`
	return r.scanConfig(r.pool.QueryRow(ctx, query,
		cfg.TenantID,
		cfg.IsEnabled,
		string(cfg.HandoffMode),
		cfg.LiveTransferNumber,
		rules,
		cfg.DefaultGreeting,
		cfg.DisclosureLine,
		cfg.AfterHoursMessage,
		methods,
		recipients,
	))
}

func (r *PostgresConfigRepository) scanConfig(row pgx.Row) (*TenantVoiceConfig, error) {
	var (
		cfg            TenantVoiceConfig
		mode           string
		rulesJSON      []byte
		methodsJSON    []byte
		recipientsJSON []byte
		createdAt      time.Time
		updatedAt      time.Time
	)
	if err := row.Scan(
		&cfg.TenantID,
		&cfg.IsEnabled,
		&mode,
		&cfg.LiveTransferNumber,
		&rulesJSON,
		&cfg.DefaultGreeting,
		&cfg.DisclosureLine,
		&cfg.AfterHoursMessage,
		&methodsJSON,
		&recipientsJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("voice: select config: %w", err)
	}

	cfg.HandoffMode = HandoffMode(mode)
	cfg.CreatedAt = createdAt
	cfg.UpdatedAt = updatedAt

	if len(rulesJSON) > 0 {
		var rules EscalationRules
		if err := json.Unmarshal(rulesJSON, &rules); err != nil {
			return nil, fmt.Errorf("voice: unmarshal escalation rules: %w", err)
		}
		cfg.EscalationRules = &rules
	}
	if len(methodsJSON) > 0 {
		if err := json.Unmarshal(methodsJSON, &cfg.NotificationMethods); err != nil {
			return nil, fmt.Errorf("voice: unmarshal notification methods: %w", err)
		}
	}
	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &cfg.NotificationRecipients); err != nil {
			return nil, fmt.Errorf("voice: unmarshal notification recipients: %w", err)
		}
	}
	return &cfg, nil
}

func marshalConfigJSON(cfg *TenantVoiceConfig) (rules, methods, recipients []byte, err error) {
	if cfg.EscalationRules != nil {
		rules, err = json.Marshal(cfg.EscalationRules)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("voice: marshal escalation rules: %w", err)
		}
	}
	methods, err = json.Marshal(cfg.NotificationMethods)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("voice: marshal notification methods: %w", err)
	}
	recipients, err = json.Marshal(cfg.NotificationRecipients)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("voice: marshal notification recipients: %w", err)
	}
	return rules, methods, recipients, nil
}

var _ ConfigRepository = (*PostgresConfigRepository)(nil)
