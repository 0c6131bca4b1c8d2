// Package memory provides an in-memory implementation of the repository
// interfaces for tests and dev mode. State is an explicit struct guarded
// by a single coarse lock; nothing is process-global.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/config-api/internal/model"
	"github.com/jwalitptl/config-api/internal/repository"
)

// Store holds configuration versions, outbox events and domains behind
// one mutex. It implements ConfigRepository, OutboxRepository and
// DomainRepository.
type Store struct {
	mu       sync.Mutex
	versions []*model.ConfigVersion
	outbox   []*model.OutboxEvent
	domains  map[string]*model.Domain

	// failMutation, when set, makes the next atomic mutation fail before
	// anything is applied. Used to exercise transaction-abort paths.
	failMutation error
}

func NewStore() *Store {
	return &Store{domains: make(map[string]*model.Domain)}
}

// FailNextMutation injects a failure into the next InsertNewVersion or
// SwapActive call, simulating a transaction abort.
func (s *Store) FailNextMutation(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMutation = err
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func matchesIdentity(cv *model.ConfigVersion, key string, id model.ScopeIdentity) bool {
	if cv.Key != key || cv.Scope != id.Scope {
		return false
	}
	// A nil tenant matches any tenant: company identities are unique on
	// their own, and global rows never carry one.
	if id.TenantID != nil && (cv.TenantID == nil || *cv.TenantID != *id.TenantID) {
		return false
	}
	return uuidPtrEqual(cv.CompanyID, id.CompanyID)
}

func copyVersion(cv *model.ConfigVersion) *model.ConfigVersion {
	c := *cv
	return &c
}

func copyEvent(evt *model.OutboxEvent) *model.OutboxEvent {
	c := *evt
	return &c
}

// ConfigRepository

func (s *Store) GetActive(_ context.Context, key string, id model.ScopeIdentity) (*model.ConfigVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(key, id)
}

func (s *Store) activeLocked(key string, id model.ScopeIdentity) (*model.ConfigVersion, error) {
	var best *model.ConfigVersion
	for _, cv := range s.versions {
		if matchesIdentity(cv, key, id) && cv.Status == model.StatusActive {
			if best == nil || cv.Version > best.Version {
				best = cv
			}
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return copyVersion(best), nil
}

func (s *Store) GetByVersion(_ context.Context, key string, id model.ScopeIdentity, version int) (*model.ConfigVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cv := range s.versions {
		if matchesIdentity(cv, key, id) && cv.Version == version {
			return copyVersion(cv), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) MaxVersion(_ context.Context, key string, id model.ScopeIdentity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxVersionLocked(key, id), nil
}

func (s *Store) maxVersionLocked(key string, id model.ScopeIdentity) int {
	max := 0
	for _, cv := range s.versions {
		if matchesIdentity(cv, key, id) && cv.Version > max {
			max = cv.Version
		}
	}
	return max
}

func (s *Store) ListVersions(_ context.Context, key string, id model.ScopeIdentity) ([]*model.ConfigVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.ConfigVersion
	for _, cv := range s.versions {
		if matchesIdentity(cv, key, id) {
			result = append(result, copyVersion(cv))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version > result[j].Version })
	return result, nil
}

func (s *Store) GetActiveGlobal(_ context.Context, key string) (*model.ConfigVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestActiveLocked(func(cv *model.ConfigVersion) bool {
		return cv.Key == key && cv.Scope == model.ScopeGlobal
	})
}

func (s *Store) GetActiveTenant(_ context.Context, key string, tenantID uuid.UUID) (*model.ConfigVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestActiveLocked(func(cv *model.ConfigVersion) bool {
		return cv.Key == key && cv.Scope == model.ScopeTenant &&
			cv.TenantID != nil && *cv.TenantID == tenantID
	})
}

func (s *Store) GetActiveCompany(_ context.Context, key string, companyID uuid.UUID, tenantID *uuid.UUID) (*model.ConfigVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestActiveLocked(func(cv *model.ConfigVersion) bool {
		if cv.Key != key || cv.Scope != model.ScopeCompany {
			return false
		}
		if cv.CompanyID == nil || *cv.CompanyID != companyID {
			return false
		}
		if tenantID != nil && (cv.TenantID == nil || *cv.TenantID != *tenantID) {
			return false
		}
		return true
	})
}

func (s *Store) bestActiveLocked(match func(*model.ConfigVersion) bool) (*model.ConfigVersion, error) {
	var best *model.ConfigVersion
	for _, cv := range s.versions {
		if cv.Status == model.StatusActive && match(cv) {
			if best == nil || cv.Version > best.Version {
				best = cv
			}
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return copyVersion(best), nil
}

func (s *Store) InsertNewVersion(_ context.Context, cv *model.ConfigVersion, evt *model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeInjectedFailureLocked(); err != nil {
		return err
	}
	if _, err := s.activeLocked(cv.Key, cv.Identity()); err == nil {
		return repository.ErrDuplicateActive
	}
	if s.versionTakenLocked(cv) {
		return repository.ErrConcurrentMutation
	}

	s.versions = append(s.versions, copyVersion(cv))
	s.outbox = append(s.outbox, copyEvent(evt))
	return nil
}

func (s *Store) SwapActive(_ context.Context, currentID uuid.UUID, cv *model.ConfigVersion, evt *model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeInjectedFailureLocked(); err != nil {
		return err
	}

	var current *model.ConfigVersion
	for _, existing := range s.versions {
		if existing.ID == currentID && existing.Status == model.StatusActive {
			current = existing
			break
		}
	}
	if current == nil {
		return repository.ErrConcurrentMutation
	}
	if s.versionTakenLocked(cv) {
		return repository.ErrConcurrentMutation
	}

	current.Status = model.StatusDeprecated
	s.versions = append(s.versions, copyVersion(cv))
	s.outbox = append(s.outbox, copyEvent(evt))
	return nil
}

func (s *Store) versionTakenLocked(cv *model.ConfigVersion) bool {
	for _, existing := range s.versions {
		if matchesIdentity(existing, cv.Key, cv.Identity()) && existing.Version == cv.Version {
			return true
		}
	}
	return false
}

func (s *Store) takeInjectedFailureLocked() error {
	if s.failMutation != nil {
		err := s.failMutation
		s.failMutation = nil
		return err
	}
	return nil
}

// OutboxRepository

// claimLease mirrors the postgres implementation: a claimed event is
// invisible to other pollers until the lease expires or a failure
// releases it.
const claimLease = 30 * time.Second

func (s *Store) GetUndispatched(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var pending []*model.OutboxEvent
	for _, evt := range s.outbox {
		if evt.Dispatched {
			continue
		}
		if evt.ClaimedAt != nil && now.Sub(*evt.ClaimedAt) < claimLease {
			continue
		}
		pending = append(pending, evt)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].OccurredAt.Before(pending[j].OccurredAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]*model.OutboxEvent, 0, len(pending))
	for _, evt := range pending {
		claimed := now
		evt.ClaimedAt = &claimed
		out = append(out, copyEvent(evt))
	}
	return out, nil
}

func (s *Store) MarkDispatched(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range s.outbox {
		if evt.ID == id && !evt.Dispatched {
			now := time.Now().UTC()
			evt.Dispatched = true
			evt.DispatchedAt = &now
			evt.Attempts++
			evt.LastError = nil
		}
	}
	return nil
}

func (s *Store) RecordFailure(_ context.Context, id uuid.UUID, publishErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range s.outbox {
		if evt.ID == id {
			evt.Attempts++
			evt.LastError = &publishErr
			evt.ClaimedAt = nil
		}
	}
	return nil
}

func (s *Store) CountUndispatched(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, evt := range s.outbox {
		if !evt.Dispatched {
			count++
		}
	}
	return count, nil
}

// DomainRepository

func (s *Store) GetOrCreate(_ context.Context, name string) (*model.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.domains[name]; ok {
		c := *d
		return &c, nil
	}
	d := &model.Domain{ID: uuid.New(), Name: name}
	s.domains[name] = d
	c := *d
	return &c, nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*model.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.domains {
		if d.ID == id {
			c := *d
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

// Events returns a snapshot of every outbox row, for tests.
func (s *Store) Events() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.OutboxEvent, 0, len(s.outbox))
	for _, evt := range s.outbox {
		out = append(out, copyEvent(evt))
	}
	return out
}

// Versions returns a snapshot of every version row, for tests.
func (s *Store) Versions() []*model.ConfigVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ConfigVersion, 0, len(s.versions))
	for _, cv := range s.versions {
		out = append(out, copyVersion(cv))
	}
	return out
}
