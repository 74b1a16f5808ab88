package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivedesk/engage-platform/internal/observability/metrics"
)

func newTestService(t *testing.T) (*ConfigService, *InMemoryConfigRepository, *MemoryCache) {
	t.Helper()
	repo := NewInMemoryConfigRepository()
	cache := NewMemoryCache(time.Minute)
	return NewConfigService(repo, cache, nil, nil), repo, cache
}

func TestConfigService_GetOrCreateLazyDefaults(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	cfg, err := service.GetOrCreate(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", cfg.TenantID)
	assert.False(t, cfg.IsEnabled)
	assert.Equal(t, HandoffModeTakeMessage, cfg.HandoffMode)

	// The row now exists; a second call reads it rather than recreating.
	stored, err := repo.Read(ctx, "t-1")
	require.NoError(t, err)
	stored.IsEnabled = true
	_, err = repo.Update(ctx, stored)
	require.NoError(t, err)

	again, err := service.GetOrCreate(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, again.IsEnabled)
}

func TestConfigService_GetOrCreateConcurrent(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	// Concurrent first access: exactly one create wins, everyone reads the
	// same row, nobody errors.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.GetOrCreate(ctx, "t-race")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestConfigService_UpdateValidatesAndInvalidates(t *testing.T) {
	service, _, cache := newTestService(t)
	ctx := context.Background()

	// Prime the handoff projection cache.
	handoff, err := service.HandoffConfig(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, handoff.Enabled)

	enabled := true
	mode := HandoffModeLiveTransfer
	number := "+15557779999"
	_, err = service.Update(ctx, "t-1", ConfigUpdate{
		IsEnabled:          &enabled,
		HandoffMode:        &mode,
		LiveTransferNumber: &number,
	})
	require.NoError(t, err)

	// The stale cached projection must be gone.
	var stale HandoffConfig
	assert.False(t, cache.Get(ctx, cacheKey(cachePurposeHandoff, "t-1"), &stale))

	handoff, err = service.HandoffConfig(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, handoff.Enabled)
	assert.Equal(t, HandoffModeLiveTransfer, handoff.Mode)
	assert.Equal(t, "+15557779999", handoff.TransferNumber)
}

func TestConfigService_UpdateRejectsInvalidMerge(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	mode := HandoffModeLiveTransfer
	_, err := service.Update(ctx, "t-1", ConfigUpdate{HandoffMode: &mode})
	assert.ErrorIs(t, err, ErrTransferNumberRequired)

	methods := []string{"smoke_signal"}
	_, err = service.Update(ctx, "t-1", ConfigUpdate{NotificationMethods: &methods})
	assert.ErrorIs(t, err, ErrUnknownNotificationMethod)
}

func TestConfigService_ProjectionsDefaultWithoutRow(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	handoff, err := service.HandoffConfig(ctx, "t-ghost")
	require.NoError(t, err)
	assert.False(t, handoff.Enabled)
	assert.Equal(t, HandoffModeTakeMessage, handoff.Mode)

	rules, err := service.EscalationRules(ctx, "t-ghost")
	require.NoError(t, err)
	assert.True(t, rules.CallerAsksHuman)
	assert.Equal(t, 3, rules.RepeatedConfusion.Threshold)

	notify, err := service.NotificationConfig(ctx, "t-ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, notify.Methods)

	greeting, err := service.GreetingAndDisclosure(ctx, "t-ghost")
	require.NoError(t, err)
	assert.Equal(t, DefaultGreetingText, greeting.Greeting)
	assert.Equal(t, DefaultDisclosureLine, greeting.DisclosureLine)

	// Read paths never create rows.
	_, err = repo.Read(ctx, "t-ghost")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestConfigService_ProjectionsServedFromCache(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	cfg := DefaultConfig("t-1")
	cfg.IsEnabled = true
	_, err := repo.Create(ctx, cfg)
	require.NoError(t, err)

	first, err := service.HandoffConfig(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, first.Enabled)

	// Mutate storage behind the cache; the stale projection is served until
	// invalidation or TTL expiry.
	stored, err := repo.Read(ctx, "t-1")
	require.NoError(t, err)
	stored.IsEnabled = false
	_, err = repo.Update(ctx, stored)
	require.NoError(t, err)

	cached, err := service.HandoffConfig(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, cached.Enabled)

	service.InvalidateTenant(ctx, "t-1")

	fresh, err := service.HandoffConfig(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, fresh.Enabled)
}

type failingConfigRepo struct {
	err error
}

func (r *failingConfigRepo) Read(context.Context, string) (*TenantVoiceConfig, error) {
	return nil, r.err
}

func (r *failingConfigRepo) Create(context.Context, *TenantVoiceConfig) (*TenantVoiceConfig, error) {
	return nil, r.err
}

func (r *failingConfigRepo) Update(context.Context, *TenantVoiceConfig) (*TenantVoiceConfig, error) {
	return nil, r.err
}

func TestConfigService_StorageErrorsPropagate(t *testing.T) {
	repoErr := errors.New("connection reset")
	service := NewConfigService(&failingConfigRepo{err: repoErr}, NewMemoryCache(time.Minute), nil, nil)

	_, err := service.HandoffConfig(context.Background(), "t-1")
	assert.ErrorIs(t, err, repoErr)

	_, err = service.GetOrCreate(context.Background(), "t-1")
	assert.ErrorIs(t, err, repoErr)
}

func TestConfigService_EscalationRulesHonorExplicitZeroThreshold(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	// A tenant may configure escalate-immediately by setting a zero
	// threshold; it must not be mistaken for "unset" and defaulted away.
	_, err := service.Update(ctx, "t-zero", ConfigUpdate{
		EscalationRules: &EscalationRules{
			RepeatedConfusion: RepeatedConfusionRule{Enabled: true, Threshold: 0},
			LowConfidence:     LowConfidenceRule{Enabled: true, Threshold: 0},
		},
	})
	require.NoError(t, err)

	rules, err := service.EscalationRules(ctx, "t-zero")
	require.NoError(t, err)
	assert.Equal(t, 0, rules.RepeatedConfusion.Threshold)
	assert.InDelta(t, 0, rules.LowConfidence.Threshold, 1e-9)
}

func TestConfigService_ProjectionsCountCacheLookups(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewVoiceMetrics(reg)
	service := NewConfigService(NewInMemoryConfigRepository(), NewMemoryCache(time.Minute), m, nil)
	ctx := context.Background()

	// First read misses, second read hits.
	_, err := service.EscalationRules(ctx, "t-m")
	require.NoError(t, err)
	_, err = service.EscalationRules(ctx, "t-m")
	require.NoError(t, err)

	assert.Equal(t, 1, cacheLookupCount(t, reg, "rules", "miss"))
	assert.Equal(t, 1, cacheLookupCount(t, reg, "rules", "hit"))
}

func cacheLookupCount(t *testing.T, reg *prometheus.Registry, purpose, result string) int {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "engage_voice_config_cache_ops_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["purpose"] == purpose && labels["result"] == result {
				return int(metric.GetCounter().GetValue())
			}
		}
	}
	return 0
}
