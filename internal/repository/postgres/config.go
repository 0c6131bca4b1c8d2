package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/config-api/internal/model"
	"github.com/jwalitptl/config-api/internal/repository"
)

type configRepository struct {
	BaseRepository
}

func NewConfigRepository(db *sqlx.DB) repository.ConfigRepository {
	return &configRepository{NewBaseRepository(db)}
}

const configColumns = `id, key, value, scope, tenant_id, company_id, domain_id, version, status, created_by, created_at`

func (r *configRepository) GetActive(ctx context.Context, key string, id model.ScopeIdentity) (*model.ConfigVersion, error) {
	query := `
		SELECT ` + configColumns + `
		FROM config_versions
		WHERE key = $1 AND status = $2 AND scope = $3
		AND ($4::uuid IS NULL OR tenant_id = $4)
		AND company_id IS NOT DISTINCT FROM $5
		ORDER BY version DESC
		LIMIT 1
	`
	var cv model.ConfigVersion
	err := r.db.GetContext(ctx, &cv, query, key, model.StatusActive, id.Scope, id.TenantID, id.CompanyID)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active config: %w", err)
	}
	return &cv, nil
}

func (r *configRepository) GetByVersion(ctx context.Context, key string, id model.ScopeIdentity, version int) (*model.ConfigVersion, error) {
	query := `
		SELECT ` + configColumns + `
		FROM config_versions
		WHERE key = $1 AND version = $2 AND scope = $3
		AND ($4::uuid IS NULL OR tenant_id = $4)
		AND company_id IS NOT DISTINCT FROM $5
	`
	var cv model.ConfigVersion
	err := r.db.GetContext(ctx, &cv, query, key, version, id.Scope, id.TenantID, id.CompanyID)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config version: %w", err)
	}
	return &cv, nil
}

func (r *configRepository) MaxVersion(ctx context.Context, key string, id model.ScopeIdentity) (int, error) {
	query := `
		SELECT COALESCE(MAX(version), 0)
		FROM config_versions
		WHERE key = $1 AND scope = $2
		AND ($3::uuid IS NULL OR tenant_id = $3)
		AND company_id IS NOT DISTINCT FROM $4
	`
	var max int
	if err := r.db.GetContext(ctx, &max, query, key, id.Scope, id.TenantID, id.CompanyID); err != nil {
		return 0, fmt.Errorf("failed to get max version: %w", err)
	}
	return max, nil
}

func (r *configRepository) ListVersions(ctx context.Context, key string, id model.ScopeIdentity) ([]*model.ConfigVersion, error) {
	query := `
		SELECT ` + configColumns + `
		FROM config_versions
		WHERE key = $1 AND scope = $2
		AND ($3::uuid IS NULL OR tenant_id = $3)
		AND company_id IS NOT DISTINCT FROM $4
		ORDER BY version DESC
	`
	var versions []*model.ConfigVersion
	err := r.db.SelectContext(ctx, &versions, query, key, id.Scope, id.TenantID, id.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list config versions: %w", err)
	}
	return versions, nil
}

func (r *configRepository) GetActiveGlobal(ctx context.Context, key string) (*model.ConfigVersion, error) {
	query := `
		SELECT ` + configColumns + `
		FROM config_versions
		WHERE key = $1 AND status = $2 AND scope = $3
		ORDER BY version DESC
		LIMIT 1
	`
	var cv model.ConfigVersion
	err := r.db.GetContext(ctx, &cv, query, key, model.StatusActive, model.ScopeGlobal)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global config: %w", err)
	}
	return &cv, nil
}

func (r *configRepository) GetActiveTenant(ctx context.Context, key string, tenantID uuid.UUID) (*model.ConfigVersion, error) {
	query := `
		SELECT ` + configColumns + `
		FROM config_versions
		WHERE key = $1 AND status = $2 AND scope = $3 AND tenant_id = $4
		ORDER BY version DESC
		LIMIT 1
	`
	var cv model.ConfigVersion
	err := r.db.GetContext(ctx, &cv, query, key, model.StatusActive, model.ScopeTenant, tenantID)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant config: %w", err)
	}
	return &cv, nil
}

func (r *configRepository) GetActiveCompany(ctx context.Context, key string, companyID uuid.UUID, tenantID *uuid.UUID) (*model.ConfigVersion, error) {
	query := `
		SELECT ` + configColumns + `
		FROM config_versions
		WHERE key = $1 AND status = $2 AND scope = $3 AND company_id = $4
		AND ($5::uuid IS NULL OR tenant_id = $5)
		ORDER BY version DESC
		LIMIT 1
	`
	var cv model.ConfigVersion
	err := r.db.GetContext(ctx, &cv, query, key, model.StatusActive, model.ScopeCompany, companyID, tenantID)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company config: %w", err)
	}
	return &cv, nil
}

func (r *configRepository) InsertNewVersion(ctx context.Context, cv *model.ConfigVersion, evt *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertVersionTx(ctx, tx, cv); err != nil {
			return err
		}
		return insertOutboxTx(ctx, tx, evt)
	})
}

func (r *configRepository) SwapActive(ctx context.Context, currentID uuid.UUID, cv *model.ConfigVersion, evt *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE config_versions SET status = $1 WHERE id = $2 AND status = $3`,
			model.StatusDeprecated, currentID, model.StatusActive,
		)
		if err != nil {
			return fmt.Errorf("failed to deprecate config version: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return repository.ErrConcurrentMutation
		}

		if err := insertVersionTx(ctx, tx, cv); err != nil {
			return err
		}
		return insertOutboxTx(ctx, tx, evt)
	})
}

func insertVersionTx(ctx context.Context, tx *sqlx.Tx, cv *model.ConfigVersion) error {
	query := `
		INSERT INTO config_versions (
			id, key, value, scope, tenant_id, company_id, domain_id,
			version, status, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, query,
		cv.ID, cv.Key, cv.Value, cv.Scope, cv.TenantID, cv.CompanyID,
		cv.DomainID, cv.Version, cv.Status, cv.CreatedBy, cv.CreatedAt,
	)
	if err != nil {
		if translated := translateUniqueViolation(err); translated != err {
			return translated
		}
		return fmt.Errorf("failed to insert config version: %w", err)
	}
	return nil
}

func insertOutboxTx(ctx context.Context, tx *sqlx.Tx, evt *model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, key, value, scope, tenant_id, company_id, domain_id,
			version, event_type, correlation_id, occurred_at, dispatched, attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, 0)
	`
	_, err := tx.ExecContext(ctx, query,
		evt.ID, evt.Key, evt.Value, evt.Scope, evt.TenantID, evt.CompanyID,
		evt.DomainID, evt.Version, evt.EventType, evt.CorrelationID, evt.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}
