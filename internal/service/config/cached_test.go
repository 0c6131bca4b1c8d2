package config

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/config-api/internal/model"
	"github.com/jwalitptl/config-api/pkg/cache"
	"github.com/jwalitptl/config-api/pkg/logger"
	"github.com/jwalitptl/config-api/pkg/metrics"
)

func newCachedService(t *testing.T) (*CachedService, *metrics.Metrics) {
	t.Helper()
	svc, _ := newTestService(t)
	m := metrics.NewMetricsWithRegistry("config_api", "test", prometheus.NewRegistry())
	store := cache.NewMemoryStore(time.Minute, time.Minute)
	return NewCachedService(svc, store, time.Minute, logger.NewLogger(nil), m), m
}

func TestCachedGetEffectiveHitAndMiss(t *testing.T) {
	cached, m := newCachedService(t)
	ctx := context.Background()

	_, err := cached.Create(ctx, CreateInput{Key: "k", Value: "v1", Scope: model.ScopeGlobal})
	require.NoError(t, err)

	got, err := cached.GetEffective(ctx, "k", ResolveQuery{})
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Value)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheHits))

	got, err = cached.GetEffective(ctx, "k", ResolveQuery{})
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Value)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
}

func TestCachedMutationInvalidates(t *testing.T) {
	cached, _ := newCachedService(t)
	ctx := context.Background()

	_, err := cached.Create(ctx, CreateInput{Key: "k", Value: "v1", Scope: model.ScopeGlobal})
	require.NoError(t, err)

	got, err := cached.GetEffective(ctx, "k", ResolveQuery{})
	require.NoError(t, err)
	require.Equal(t, "v1", got.Value)

	_, err = cached.Update(ctx, "k", UpdateInput{Value: "v2", Scope: model.ScopeGlobal})
	require.NoError(t, err)

	// The cached "latest" entry must not survive the update.
	got, err = cached.GetEffective(ctx, "k", ResolveQuery{})
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Value)
	assert.Equal(t, 2, got.Version)
}

func TestCachedTenantWriteDropsStaleEntries(t *testing.T) {
	cached, _ := newCachedService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := cached.Create(ctx, CreateInput{Key: "k", Value: "g", Scope: model.ScopeGlobal})
	require.NoError(t, err)

	// Warm the tenant-shaped lookup; it falls back to global.
	got, err := cached.GetEffective(ctx, "k", ResolveQuery{TenantID: &tenantID})
	require.NoError(t, err)
	require.Equal(t, "g", got.Value)

	// A tenant override lands. The decorator drops that tenant's entry, so
	// the next read with the same tenant resolves the override instead of
	// serving the warmed global fallback.
	_, err = cached.Create(ctx, CreateInput{Key: "k", Value: "t", Scope: model.ScopeTenant, TenantID: &tenantID})
	require.NoError(t, err)

	got, err = cached.GetEffective(ctx, "k", ResolveQuery{TenantID: &tenantID})
	require.NoError(t, err)
	assert.Equal(t, "t", got.Value)
}

func TestCachedGlobalUpdateDropsWarmedFallbacks(t *testing.T) {
	cached, _ := newCachedService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := cached.Create(ctx, CreateInput{Key: "k", Value: "g1", Scope: model.ScopeGlobal})
	require.NoError(t, err)

	// The tenant-shaped lookup caches the global fallback.
	got, err := cached.GetEffective(ctx, "k", ResolveQuery{TenantID: &tenantID})
	require.NoError(t, err)
	require.Equal(t, "g1", got.Value)

	// A global update must reach that warmed entry too, not just the
	// global "latest" shape.
	_, err = cached.Update(ctx, "k", UpdateInput{Value: "g2", Scope: model.ScopeGlobal})
	require.NoError(t, err)

	got, err = cached.GetEffective(ctx, "k", ResolveQuery{TenantID: &tenantID})
	require.NoError(t, err)
	assert.Equal(t, "g2", got.Value)
	assert.Equal(t, 2, got.Version)
}

func TestCachedVersionReadsAreKeyedSeparately(t *testing.T) {
	cached, _ := newCachedService(t)
	ctx := context.Background()

	_, err := cached.Create(ctx, CreateInput{Key: "k", Value: "v1", Scope: model.ScopeGlobal})
	require.NoError(t, err)
	_, err = cached.Update(ctx, "k", UpdateInput{Value: "v2", Scope: model.ScopeGlobal})
	require.NoError(t, err)

	version := 1
	got, err := cached.GetEffective(ctx, "k", ResolveQuery{Version: &version})
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Value)

	latest, err := cached.GetEffective(ctx, "k", ResolveQuery{})
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Value)
}

func TestCacheKeyShapes(t *testing.T) {
	tenantID := uuid.New()
	companyID := uuid.New()
	version := 3

	assert.Equal(t, "config:k:global:none:latest", cacheKey("k", nil, nil, nil))
	assert.Equal(t, "config:k:"+tenantID.String()+":none:latest", cacheKey("k", &tenantID, nil, nil))
	assert.Equal(t, "config:k:global:"+companyID.String()+":3", cacheKey("k", nil, &companyID, &version))
}
