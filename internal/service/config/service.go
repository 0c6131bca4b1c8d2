package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/config-api/internal/model"
	"github.com/jwalitptl/config-api/internal/repository"
	apperrors "github.com/jwalitptl/config-api/pkg/errors"
	"github.com/jwalitptl/config-api/pkg/logger"
)

// globalDomainName is the display value for GLOBAL-scoped responses.
const globalDomainName = "Global"

// CreateInput carries everything Create needs. CompanyID is absent on
// purpose: company identities are minted by the service, never supplied.
type CreateInput struct {
	Key           string
	Value         string
	Scope         model.Scope
	TenantID      *uuid.UUID
	Domain        string
	CorrelationID string
	ActorID       *uuid.UUID
}

type UpdateInput struct {
	Value           string
	Scope           model.Scope
	TenantID        *uuid.UUID
	CompanyID       *uuid.UUID
	ExpectedVersion *int
	CorrelationID   string
	ActorID         *uuid.UUID
}

type RollbackInput struct {
	TenantID      *uuid.UUID
	CompanyID     *uuid.UUID
	CorrelationID string
	ActorID       *uuid.UUID
}

// ResolveQuery is a read context. The presence of an identifier selects
// a scope tier exactly; absence triggers the cascade.
type ResolveQuery struct {
	TenantID  *uuid.UUID
	CompanyID *uuid.UUID
	Version   *int
}

// ConfigResponse is the caller-facing view of a version row, with
// tenant/company/domain nulled as the scope dictates.
type ConfigResponse struct {
	Key       string      `json:"key"`
	Value     string      `json:"value"`
	Scope     model.Scope `json:"scope"`
	TenantID  *uuid.UUID  `json:"tenant_id,omitempty"`
	CompanyID *uuid.UUID  `json:"company_id,omitempty"`
	Version   int         `json:"version"`
	Status    string      `json:"status"`
	Domain    string      `json:"domain,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ConfigServicer is the full surface: scope resolution plus the three
// mutations. The cached variant wraps this same interface.
type ConfigServicer interface {
	Create(ctx context.Context, input CreateInput) (*ConfigResponse, error)
	Update(ctx context.Context, key string, input UpdateInput) (*ConfigResponse, error)
	Rollback(ctx context.Context, key string, targetVersion int, input RollbackInput) (*ConfigResponse, error)
	GetEffective(ctx context.Context, key string, q ResolveQuery) (*ConfigResponse, error)
	History(ctx context.Context, key string, q ResolveQuery) ([]*ConfigResponse, error)
}

type Service struct {
	repo    repository.ConfigRepository
	domains repository.DomainRepository
	logger  *logger.Logger
}

func NewService(repo repository.ConfigRepository, domains repository.DomainRepository, logger *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		domains: domains,
		logger:  logger,
	}
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*ConfigResponse, error) {
	if strings.TrimSpace(input.Key) == "" {
		return nil, apperrors.BadRequest("key is required", nil)
	}
	if strings.TrimSpace(input.Value) == "" {
		return nil, apperrors.BadRequest("value is required", nil)
	}
	if !input.Scope.Valid() {
		return nil, apperrors.InvalidScope(fmt.Sprintf("unknown scope %q", input.Scope))
	}

	switch input.Scope {
	case model.ScopeGlobal:
		if input.TenantID != nil {
			return nil, apperrors.InvalidScope("tenant_id must be absent for GLOBAL scope")
		}
	case model.ScopeTenant:
		if input.TenantID == nil {
			return nil, apperrors.InvalidScope("tenant_id is required for TENANT scope")
		}
	}

	tenantID := input.TenantID
	var companyID *uuid.UUID
	if input.Scope == model.ScopeCompany {
		// Company overrides stay tenant-traceable: mint a tenant when the
		// caller did not supply one. The company identity is always minted.
		if tenantID == nil {
			minted := uuid.New()
			tenantID = &minted
		}
		minted := uuid.New()
		companyID = &minted
	}

	var domainID *uuid.UUID
	var domainName string
	if strings.TrimSpace(input.Domain) != "" {
		domain, err := s.domains.GetOrCreate(ctx, input.Domain)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("failed to resolve domain: %w", err))
		}
		domainID = &domain.ID
		domainName = domain.Name
	}

	identity := model.ScopeIdentity{Scope: input.Scope, TenantID: tenantID, CompanyID: companyID}

	if _, err := s.repo.GetActive(ctx, input.Key, identity); err == nil {
		return nil, apperrors.AlreadyExists(input.Key)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	max, err := s.repo.MaxVersion(ctx, input.Key, identity)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	cv := &model.ConfigVersion{
		ID:        uuid.New(),
		Key:       input.Key,
		Value:     input.Value,
		Scope:     input.Scope,
		TenantID:  tenantID,
		CompanyID: companyID,
		DomainID:  domainID,
		Version:   max + 1,
		Status:    model.StatusActive,
		CreatedBy: input.ActorID,
		CreatedAt: time.Now().UTC(),
	}
	evt := model.NewOutboxEvent(cv, model.EventConfigCreated, input.CorrelationID)

	if err := s.repo.InsertNewVersion(ctx, cv, evt); err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			return nil, apperrors.AlreadyExists(input.Key)
		}
		return nil, apperrors.Internal(err)
	}

	s.logger.Info("configuration created",
		"key", cv.Key, "scope", string(cv.Scope), "version", cv.Version,
		"correlation_id", input.CorrelationID)

	return s.toResponse(ctx, cv, domainName), nil
}

func (s *Service) Update(ctx context.Context, key string, input UpdateInput) (*ConfigResponse, error) {
	if strings.TrimSpace(input.Value) == "" {
		return nil, apperrors.BadRequest("value is required", nil)
	}
	identity, err := mutationIdentity(input.Scope, input.TenantID, input.CompanyID)
	if err != nil {
		return nil, err
	}

	active, err := s.repo.GetActive(ctx, key, identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("configuration", err)
		}
		return nil, apperrors.Internal(err)
	}

	if input.ExpectedVersion != nil && *input.ExpectedVersion != active.Version {
		return nil, apperrors.VersionConflict(key, *input.ExpectedVersion, active.Version)
	}

	max, err := s.repo.MaxVersion(ctx, key, identity)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	cv := &model.ConfigVersion{
		ID:        uuid.New(),
		Key:       key,
		Value:     input.Value,
		Scope:     active.Scope,
		TenantID:  active.TenantID,
		CompanyID: active.CompanyID,
		DomainID:  active.DomainID,
		Version:   max + 1,
		Status:    model.StatusActive,
		CreatedBy: input.ActorID,
		CreatedAt: time.Now().UTC(),
	}
	evt := model.NewOutboxEvent(cv, model.EventConfigUpdated, input.CorrelationID)

	if err := s.repo.SwapActive(ctx, active.ID, cv, evt); err != nil {
		if errors.Is(err, repository.ErrConcurrentMutation) {
			// Lost the race: report against whatever is active now so the
			// caller can re-read and resubmit.
			expected := active.Version
			if input.ExpectedVersion != nil {
				expected = *input.ExpectedVersion
			}
			actual := active.Version
			if current, readErr := s.repo.GetActive(ctx, key, identity); readErr == nil {
				actual = current.Version
			}
			return nil, apperrors.VersionConflict(key, expected, actual)
		}
		return nil, apperrors.Internal(err)
	}

	s.logger.Info("configuration updated",
		"key", key, "scope", string(cv.Scope), "version", cv.Version,
		"correlation_id", input.CorrelationID)

	return s.toResponse(ctx, cv, ""), nil
}

func (s *Service) Rollback(ctx context.Context, key string, targetVersion int, input RollbackInput) (*ConfigResponse, error) {
	if targetVersion <= 0 {
		return nil, apperrors.BadRequest("target version must be positive", nil)
	}
	identity := impliedIdentity(input.TenantID, input.CompanyID)

	target, err := s.repo.GetByVersion(ctx, key, identity, targetVersion)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("configuration version", err)
		}
		return nil, apperrors.Internal(err)
	}

	max, err := s.repo.MaxVersion(ctx, key, identity)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	// Forward-only: the rollback is a new row at max+1 carrying the
	// target's value, never a revival of the target row itself.
	cv := &model.ConfigVersion{
		ID:        uuid.New(),
		Key:       key,
		Value:     target.Value,
		Scope:     target.Scope,
		TenantID:  target.TenantID,
		CompanyID: target.CompanyID,
		DomainID:  target.DomainID,
		Version:   max + 1,
		Status:    model.StatusActive,
		CreatedBy: input.ActorID,
		CreatedAt: time.Now().UTC(),
	}
	evt := model.NewOutboxEvent(cv, model.EventConfigRolledBack, input.CorrelationID)

	active, err := s.repo.GetActive(ctx, key, identity)
	switch {
	case err == nil:
		err = s.repo.SwapActive(ctx, active.ID, cv, evt)
	case errors.Is(err, repository.ErrNotFound):
		err = s.repo.InsertNewVersion(ctx, cv, evt)
	default:
		return nil, apperrors.Internal(err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.logger.Info("configuration rolled back",
		"key", key, "target_version", targetVersion, "new_version", cv.Version,
		"correlation_id", input.CorrelationID)

	return s.toResponse(ctx, cv, ""), nil
}

func (s *Service) GetEffective(ctx context.Context, key string, q ResolveQuery) (*ConfigResponse, error) {
	if q.Version != nil {
		cv, err := s.repo.GetByVersion(ctx, key, impliedIdentity(q.TenantID, q.CompanyID), *q.Version)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NotFound("configuration", err)
			}
			return nil, apperrors.Internal(err)
		}
		return s.toResponse(ctx, cv, ""), nil
	}

	cv, err := s.resolve(ctx, key, q)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("configuration", err)
		}
		return nil, apperrors.Internal(err)
	}
	return s.toResponse(ctx, cv, ""), nil
}

// resolve applies scope precedence, most specific first. An explicitly
// requested company must not silently widen to a broader tier; an
// explicit tenant cascades to global.
func (s *Service) resolve(ctx context.Context, key string, q ResolveQuery) (*model.ConfigVersion, error) {
	if q.CompanyID != nil {
		return s.repo.GetActiveCompany(ctx, key, *q.CompanyID, q.TenantID)
	}
	if q.TenantID != nil {
		cv, err := s.repo.GetActiveTenant(ctx, key, *q.TenantID)
		if err == nil {
			return cv, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return s.repo.GetActiveGlobal(ctx, key)
}

func (s *Service) History(ctx context.Context, key string, q ResolveQuery) ([]*ConfigResponse, error) {
	versions, err := s.repo.ListVersions(ctx, key, impliedIdentity(q.TenantID, q.CompanyID))
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(versions) == 0 {
		return nil, apperrors.NotFound("configuration", nil)
	}
	out := make([]*ConfigResponse, 0, len(versions))
	for _, cv := range versions {
		out = append(out, s.toResponse(ctx, cv, ""))
	}
	return out, nil
}

// mutationIdentity validates the scope/identifier combination for Update
// and returns the exact identity to operate on.
func mutationIdentity(scope model.Scope, tenantID, companyID *uuid.UUID) (model.ScopeIdentity, error) {
	if !scope.Valid() {
		return model.ScopeIdentity{}, apperrors.InvalidScope(fmt.Sprintf("unknown scope %q", scope))
	}
	switch scope {
	case model.ScopeGlobal:
		if tenantID != nil || companyID != nil {
			return model.ScopeIdentity{}, apperrors.InvalidScope("tenant_id and company_id must be absent for GLOBAL scope")
		}
	case model.ScopeTenant:
		if tenantID == nil {
			return model.ScopeIdentity{}, apperrors.InvalidScope("tenant_id is required for TENANT scope")
		}
		if companyID != nil {
			return model.ScopeIdentity{}, apperrors.InvalidScope("company_id must be absent for TENANT scope")
		}
	case model.ScopeCompany:
		if companyID == nil {
			return model.ScopeIdentity{}, apperrors.InvalidScope("company_id is required for COMPANY scope")
		}
	}
	return model.ScopeIdentity{Scope: scope, TenantID: tenantID, CompanyID: companyID}, nil
}

// impliedIdentity derives the scope tier from which identifiers are
// present: company beats tenant beats global.
func impliedIdentity(tenantID, companyID *uuid.UUID) model.ScopeIdentity {
	switch {
	case companyID != nil:
		return model.ScopeIdentity{Scope: model.ScopeCompany, TenantID: tenantID, CompanyID: companyID}
	case tenantID != nil:
		return model.ScopeIdentity{Scope: model.ScopeTenant, TenantID: tenantID}
	default:
		return model.ScopeIdentity{Scope: model.ScopeGlobal}
	}
}

// toResponse applies scope-appropriate nulling and domain display.
// domainName may be pre-resolved by the caller to save a lookup.
func (s *Service) toResponse(ctx context.Context, cv *model.ConfigVersion, domainName string) *ConfigResponse {
	resp := &ConfigResponse{
		Key:       cv.Key,
		Value:     cv.Value,
		Scope:     cv.Scope,
		Version:   cv.Version,
		Status:    cv.Status,
		CreatedAt: cv.CreatedAt,
	}

	switch cv.Scope {
	case model.ScopeTenant:
		resp.TenantID = cv.TenantID
	case model.ScopeCompany:
		resp.TenantID = cv.TenantID
		resp.CompanyID = cv.CompanyID
	}

	if cv.Scope == model.ScopeGlobal {
		resp.Domain = globalDomainName
	} else if domainName != "" {
		resp.Domain = domainName
	} else if cv.DomainID != nil {
		if domain, err := s.domains.GetByID(ctx, *cv.DomainID); err == nil {
			resp.Domain = domain.Name
		}
	}

	return resp
}
