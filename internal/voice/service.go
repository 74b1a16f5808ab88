package voice

import (
	"context"
	"errors"
	"fmt"

	"github.com/hivedesk/engage-platform/internal/observability/metrics"
	"github.com/hivedesk/engage-platform/pkg/logging"
)

// Cache key purposes. The composite key also carries the tenant tag so that
// Invalidate(tenantID) clears all four projections at once.
const (
	cachePurposeHandoff  = "handoff"
	cachePurposeRules    = "rules"
	cachePurposeNotify   = "notify"
	cachePurposeGreeting = "greeting"
)

// HandoffConfig is the engine-facing projection of a tenant's handoff
// settings with defaults applied.
type HandoffConfig struct {
	Enabled        bool        `json:"enabled"`
	Mode           HandoffMode `json:"mode"`
	TransferNumber string      `json:"transfer_number,omitempty"`
}

// NotificationConfig is the notifier-facing projection.
type NotificationConfig struct {
	Methods    []string                `json:"methods"`
	Recipients []NotificationRecipient `json:"recipients"`
}

// GreetingConfig carries the tenant's spoken prompt text with defaults applied.
type GreetingConfig struct {
	Greeting          string `json:"greeting"`
	DisclosureLine    string `json:"disclosure_line"`
	AfterHoursMessage string `json:"after_hours_message"`
}

// ConfigService is the tenant voice configuration accessor. Reads go through
// the cache; writes invalidate every cached projection for the tenant.
type ConfigService struct {
	repo    ConfigRepository
	cache   ConfigCache
	metrics *metrics.VoiceMetrics
	logger  *logging.Logger
}

// NewConfigService creates the accessor.
func NewConfigService(repo ConfigRepository, cache ConfigCache, m *metrics.VoiceMetrics, logger *logging.Logger) *ConfigService {
	if repo == nil {
		panic("voice: config repository required")
	}
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfigService{repo: repo, cache: cache, metrics: m, logger: logger}
}

// GetOrCreate reads the tenant's config, lazily creating it with system
// defaults on first access. A concurrent create losing the uniqueness race
// falls back to re-reading the winner's row.
func (s *ConfigService) GetOrCreate(ctx context.Context, tenantID string) (*TenantVoiceConfig, error) {
	cfg, err := s.repo.Read(ctx, tenantID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrConfigNotFound) {
		return nil, fmt.Errorf("voice: read config: %w", err)
	}

	created, err := s.repo.Create(ctx, DefaultConfig(tenantID))
	if err == nil {
		s.logger.Info("voice config created with defaults", "tenant_id", tenantID)
		return created, nil
	}
	if errors.Is(err, ErrConfigExists) {
		return s.repo.Read(ctx, tenantID)
	}
	return nil, fmt.Errorf("voice: create config: %w", err)
}

// Update applies a partial update: nil fields keep their stored value. The
// merged config is validated as a whole, persisted, and every cached
// projection for the tenant is invalidated.
func (s *ConfigService) Update(ctx context.Context, tenantID string, upd ConfigUpdate) (*TenantVoiceConfig, error) {
	cfg, err := s.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	upd.apply(cfg)
	if err := validateMerged(cfg); err != nil {
		return nil, err
	}

	saved, err := s.repo.Update(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("voice: update config: %w", err)
	}

	s.cache.Invalidate(ctx, tenantID)
	s.logger.Info("voice config updated", "tenant_id", tenantID, "handoff_mode", saved.HandoffMode)
	return saved, nil
}

// HandoffConfig returns the effective handoff settings, cache-first. A tenant
// with no stored config gets the all-default view without creating a row.
func (s *ConfigService) HandoffConfig(ctx context.Context, tenantID string) (HandoffConfig, error) {
	key := cacheKey(cachePurposeHandoff, tenantID)
	var cached HandoffConfig
	if s.cachedGet(ctx, key, cachePurposeHandoff, &cached) {
		return cached, nil
	}

	cfg, err := s.readOrDefault(ctx, tenantID)
	if err != nil {
		return HandoffConfig{}, err
	}

	mode := cfg.HandoffMode
	if mode == "" {
		mode = HandoffModeTakeMessage
	}
	result := HandoffConfig{
		Enabled:        cfg.IsEnabled,
		Mode:           mode,
		TransferNumber: cfg.LiveTransferNumber,
	}
	s.cache.Set(ctx, key, result)
	return result, nil
}

// EscalationRules returns the effective rule set (stored merged with
// defaults), cache-first.
func (s *ConfigService) EscalationRules(ctx context.Context, tenantID string) (EscalationRules, error) {
	key := cacheKey(cachePurposeRules, tenantID)
	var cached EscalationRules
	if s.cachedGet(ctx, key, cachePurposeRules, &cached) {
		return cached, nil
	}

	cfg, err := s.readOrDefault(ctx, tenantID)
	if err != nil {
		return EscalationRules{}, err
	}

	rules := cfg.EffectiveRules()
	s.cache.Set(ctx, key, rules)
	return rules, nil
}

// NotificationConfig returns the tenant's notification settings, cache-first.
func (s *ConfigService) NotificationConfig(ctx context.Context, tenantID string) (NotificationConfig, error) {
	key := cacheKey(cachePurposeNotify, tenantID)
	var cached NotificationConfig
	if s.cachedGet(ctx, key, cachePurposeNotify, &cached) {
		return cached, nil
	}

	cfg, err := s.readOrDefault(ctx, tenantID)
	if err != nil {
		return NotificationConfig{}, err
	}

	methods := cfg.NotificationMethods
	if len(methods) == 0 {
		methods = DefaultConfig(tenantID).NotificationMethods
	}
	result := NotificationConfig{
		Methods:    methods,
		Recipients: cfg.NotificationRecipients,
	}
	s.cache.Set(ctx, key, result)
	return result, nil
}

// GreetingAndDisclosure returns the tenant's spoken prompt text with system
// defaults filling unset fields, cache-first.
func (s *ConfigService) GreetingAndDisclosure(ctx context.Context, tenantID string) (GreetingConfig, error) {
	key := cacheKey(cachePurposeGreeting, tenantID)
	var cached GreetingConfig
	if s.cachedGet(ctx, key, cachePurposeGreeting, &cached) {
		return cached, nil
	}

	cfg, err := s.readOrDefault(ctx, tenantID)
	if err != nil {
		return GreetingConfig{}, err
	}

	result := GreetingConfig{
		Greeting:          cfg.DefaultGreeting,
		DisclosureLine:    cfg.DisclosureLine,
		AfterHoursMessage: cfg.AfterHoursMessage,
	}
	if result.Greeting == "" {
		result.Greeting = DefaultGreetingText
	}
	if result.DisclosureLine == "" {
		result.DisclosureLine = DefaultDisclosureLine
	}
	if result.AfterHoursMessage == "" {
		result.AfterHoursMessage = DefaultAfterHoursText
	}
	s.cache.Set(ctx, key, result)
	return result, nil
}

// InvalidateTenant drops every cached projection for the tenant.
func (s *ConfigService) InvalidateTenant(ctx context.Context, tenantID string) {
	s.cache.Invalidate(ctx, tenantID)
}

// cachedGet wraps cache.Get with hit/miss accounting per projection.
func (s *ConfigService) cachedGet(ctx context.Context, key, purpose string, dest any) bool {
	if s.cache.Get(ctx, key, dest) {
		s.metrics.ObserveCacheLookup(purpose, "hit")
		return true
	}
	s.metrics.ObserveCacheLookup(purpose, "miss")
	return false
}

// readOrDefault loads the tenant config, substituting the default view when
// no row exists. Read paths never create records.
func (s *ConfigService) readOrDefault(ctx context.Context, tenantID string) (*TenantVoiceConfig, error) {
	cfg, err := s.repo.Read(ctx, tenantID)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, ErrConfigNotFound) {
		return DefaultConfig(tenantID), nil
	}
	return nil, fmt.Errorf("voice: read config: %w", err)
}
