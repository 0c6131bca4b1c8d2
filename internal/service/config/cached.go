package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/config-api/pkg/cache"
	"github.com/jwalitptl/config-api/pkg/logger"
	"github.com/jwalitptl/config-api/pkg/metrics"
)

// CachedService decorates a ConfigServicer with read-through caching of
// resolved lookups. Mutations pass through and invalidate the affected
// scope's "latest" entry, the global "latest" entry, and every lookup
// shape this process has populated for the key: a narrower write can
// change what a broader lookup would fall back to, and a broader write
// can change what a narrower lookup fell back to. Entries warmed by
// other replicas age out within the TTL.
type CachedService struct {
	inner   ConfigServicer
	store   cache.Store
	ttl     time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	shapes map[string]map[string]struct{}
}

func NewCachedService(inner ConfigServicer, store cache.Store, ttl time.Duration, logger *logger.Logger, m *metrics.Metrics) *CachedService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedService{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		shapes:  make(map[string]map[string]struct{}),
	}
}

func cacheKey(key string, tenantID, companyID *uuid.UUID, version *int) string {
	tenantPart := "global"
	if tenantID != nil {
		tenantPart = tenantID.String()
	}
	companyPart := "none"
	if companyID != nil {
		companyPart = companyID.String()
	}
	versionPart := "latest"
	if version != nil {
		versionPart = strconv.Itoa(*version)
	}
	return fmt.Sprintf("config:%s:%s:%s:%s", key, tenantPart, companyPart, versionPart)
}

func (s *CachedService) GetEffective(ctx context.Context, key string, q ResolveQuery) (*ConfigResponse, error) {
	ck := cacheKey(key, q.TenantID, q.CompanyID, q.Version)

	if raw, err := s.store.Get(ctx, ck); err == nil {
		var resp ConfigResponse
		if err := json.Unmarshal(raw, &resp); err == nil {
			s.metrics.CacheHits.Inc()
			return &resp, nil
		}
		// Undecodable entry: drop it and fall through.
		_ = s.store.Delete(ctx, ck)
	}
	s.metrics.CacheMisses.Inc()

	resp, err := s.inner.GetEffective(ctx, key, q)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(resp); err == nil {
		if err := s.store.Set(ctx, ck, raw, s.ttl); err != nil {
			s.logger.Warn("failed to populate config cache", "cache_key", ck, "error", err.Error())
		} else {
			s.rememberShape(key, ck)
		}
	}
	return resp, nil
}

// rememberShape records that this process cached an entry under ck for
// the logical key, so any later mutation of the key can drop it.
func (s *CachedService) rememberShape(key, ck string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shapes[key] == nil {
		s.shapes[key] = make(map[string]struct{})
	}
	s.shapes[key][ck] = struct{}{}
}

func (s *CachedService) Create(ctx context.Context, input CreateInput) (*ConfigResponse, error) {
	resp, err := s.inner.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, resp.Key, resp.TenantID, resp.CompanyID)
	return resp, nil
}

func (s *CachedService) Update(ctx context.Context, key string, input UpdateInput) (*ConfigResponse, error) {
	resp, err := s.inner.Update(ctx, key, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, key, resp.TenantID, resp.CompanyID)
	return resp, nil
}

func (s *CachedService) Rollback(ctx context.Context, key string, targetVersion int, input RollbackInput) (*ConfigResponse, error) {
	resp, err := s.inner.Rollback(ctx, key, targetVersion, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, key, resp.TenantID, resp.CompanyID)
	return resp, nil
}

func (s *CachedService) History(ctx context.Context, key string, q ResolveQuery) ([]*ConfigResponse, error) {
	return s.inner.History(ctx, key, q)
}

func (s *CachedService) invalidate(ctx context.Context, key string, tenantID, companyID *uuid.UUID) {
	keys := map[string]struct{}{
		cacheKey(key, tenantID, companyID, nil): {},
		cacheKey(key, nil, nil, nil):            {},
	}
	if companyID != nil {
		// A company row is reachable both with and without the tenant in
		// the lookup; drop both shapes.
		keys[cacheKey(key, nil, companyID, nil)] = struct{}{}
	}
	if tenantID != nil && companyID != nil {
		keys[cacheKey(key, tenantID, nil, nil)] = struct{}{}
	}

	// Any shape this process populated for the key may be holding a
	// fallback value the mutation just changed.
	s.mu.Lock()
	for ck := range s.shapes[key] {
		keys[ck] = struct{}{}
	}
	delete(s.shapes, key)
	s.mu.Unlock()

	all := make([]string, 0, len(keys))
	for ck := range keys {
		all = append(all, ck)
	}
	if err := s.store.Delete(ctx, all...); err != nil {
		s.logger.Warn("failed to invalidate config cache", "key", key, "error", err.Error())
	}
}
