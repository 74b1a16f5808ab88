package voice

import (
	"context"
	"sync"
	"time"
)

// ConfigRepository persists tenant voice configuration. The Postgres
// implementation is authoritative; the in-memory one backs tests and local
// development.
type ConfigRepository interface {
	// Read returns the tenant's config or ErrConfigNotFound.
	Read(ctx context.Context, tenantID string) (*TenantVoiceConfig, error)
	// Create inserts a new config. When the tenant already has one (including
	// a concurrent first-access race) it returns ErrConfigExists; callers
	// re-read on conflict.
	Create(ctx context.Context, cfg *TenantVoiceConfig) (*TenantVoiceConfig, error)
	// Update overwrites the tenant's stored config and returns the saved row.
	Update(ctx context.Context, cfg *TenantVoiceConfig) (*TenantVoiceConfig, error)
}

// InMemoryConfigRepository is a map-backed ConfigRepository.
type InMemoryConfigRepository struct {
	mu      sync.RWMutex
	configs map[string]*TenantVoiceConfig
}

// NewInMemoryConfigRepository creates an empty in-memory repository.
func NewInMemoryConfigRepository() *InMemoryConfigRepository {
	return &InMemoryConfigRepository{configs: make(map[string]*TenantVoiceConfig)}
}

// Read returns a copy of the stored config.
func (r *InMemoryConfigRepository) Read(_ context.Context, tenantID string) (*TenantVoiceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[tenantID]
	if !ok {
		return nil, ErrConfigNotFound
	}
	copied := *cfg
	return &copied, nil
}

// Create stores the config unless the tenant already has one.
func (r *InMemoryConfigRepository) Create(_ context.Context, cfg *TenantVoiceConfig) (*TenantVoiceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[cfg.TenantID]; ok {
		return nil, ErrConfigExists
	}
	now := time.Now().UTC()
	copied := *cfg
	copied.CreatedAt = now
	copied.UpdatedAt = now
	r.configs[cfg.TenantID] = &copied
	result := copied
	return &result, nil
}

// Update overwrites the stored config.
func (r *InMemoryConfigRepository) Update(_ context.Context, cfg *TenantVoiceConfig) (*TenantVoiceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.configs[cfg.TenantID]
	if !ok {
		return nil, ErrConfigNotFound
	}
	copied := *cfg
	copied.CreatedAt = existing.CreatedAt
	copied.UpdatedAt = time.Now().UTC()
	r.configs[cfg.TenantID] = &copied
	result := copied
	return &result, nil
}

var _ ConfigRepository = (*InMemoryConfigRepository)(nil)
