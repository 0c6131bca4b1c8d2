package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/config-api/internal/model"
)

// Sentinel errors surfaced by implementations so the service layer can
// map storage outcomes to its own taxonomy without knowing the driver.
var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateActive is returned when an insert would violate the
	// single-Active constraint for a (key, scope-identity).
	ErrDuplicateActive = errors.New("repository: active row already exists")
	// ErrConcurrentMutation is returned when a mutation lost a race: the
	// row it meant to deprecate is gone, or its version number was taken.
	ErrConcurrentMutation = errors.New("repository: concurrent mutation detected")
)

// All repository interfaces in one file
type (
	// ConfigRepository owns the durable version chain per (key,
	// scope-identity). The two mutation methods are atomic: the version
	// row and its outbox row commit together or not at all.
	//
	// In every identity-taking lookup a nil TenantID matches rows with
	// any tenant: a company id is minted-unique and identifies its chain
	// alone, and global rows never carry a tenant.
	ConfigRepository interface {
		// GetActive returns the single ACTIVE row for the exact scope
		// identity, or ErrNotFound.
		GetActive(ctx context.Context, key string, id model.ScopeIdentity) (*model.ConfigVersion, error)
		// GetByVersion returns the row at exactly version for the scope
		// identity, regardless of status.
		GetByVersion(ctx context.Context, key string, id model.ScopeIdentity, version int) (*model.ConfigVersion, error)
		// MaxVersion returns the highest version for the scope identity,
		// or 0 when no rows exist.
		MaxVersion(ctx context.Context, key string, id model.ScopeIdentity) (int, error)
		// ListVersions returns the full chain for the scope identity,
		// newest first.
		ListVersions(ctx context.Context, key string, id model.ScopeIdentity) ([]*model.ConfigVersion, error)

		// Resolver queries. Each returns the matching ACTIVE row with the
		// highest version, or ErrNotFound.
		GetActiveGlobal(ctx context.Context, key string) (*model.ConfigVersion, error)
		GetActiveTenant(ctx context.Context, key string, tenantID uuid.UUID) (*model.ConfigVersion, error)
		GetActiveCompany(ctx context.Context, key string, companyID uuid.UUID, tenantID *uuid.UUID) (*model.ConfigVersion, error)

		// InsertNewVersion inserts a fresh ACTIVE row plus its outbox
		// snapshot in one transaction. Returns ErrDuplicateActive when an
		// ACTIVE row already exists for the scope identity.
		InsertNewVersion(ctx context.Context, cv *model.ConfigVersion, evt *model.OutboxEvent) error
		// SwapActive deprecates the row identified by currentID and
		// inserts the replacement plus its outbox snapshot, all in one
		// transaction. Returns ErrConcurrentMutation when currentID is no
		// longer the ACTIVE row.
		SwapActive(ctx context.Context, currentID uuid.UUID, cv *model.ConfigVersion, evt *model.OutboxEvent) error
	}

	// OutboxRepository is the dispatcher's view of the event queue.
	OutboxRepository interface {
		// GetUndispatched claims up to limit undispatched events, oldest
		// first. Implementations must prevent two concurrent workers from
		// claiming the same rows.
		GetUndispatched(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		// MarkDispatched flips the dispatched flag. Calling it on an
		// already-dispatched event is a no-op, not an error.
		MarkDispatched(ctx context.Context, id uuid.UUID) error
		// RecordFailure increments the attempt counter and stores the
		// publish error for operators.
		RecordFailure(ctx context.Context, id uuid.UUID, publishErr string) error
		// CountUndispatched sizes the backlog for alerting.
		CountUndispatched(ctx context.Context) (int64, error)
	}

	// DomainRepository resolves free-text domain labels to stable
	// identities, create-if-absent.
	DomainRepository interface {
		GetOrCreate(ctx context.Context, name string) (*model.Domain, error)
		GetByID(ctx context.Context, id uuid.UUID) (*model.Domain, error)
	}
)
