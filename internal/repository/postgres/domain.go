package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/config-api/internal/model"
	"github.com/jwalitptl/config-api/internal/repository"
)

type domainRepository struct {
	BaseRepository
}

func NewDomainRepository(db *sqlx.DB) repository.DomainRepository {
	return &domainRepository{NewBaseRepository(db)}
}

// GetOrCreate is idempotent by name: a concurrent insert of the same
// name is absorbed by ON CONFLICT and the existing row wins.
func (r *domainRepository) GetOrCreate(ctx context.Context, name string) (*model.Domain, error) {
	var d model.Domain
	err := r.db.GetContext(ctx, &d, `SELECT id, name FROM domains WHERE name = $1`, name)
	if err == nil {
		return &d, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up domain: %w", err)
	}

	d = model.Domain{ID: uuid.New(), Name: name}
	query := `
		INSERT INTO domains (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`
	if err := r.db.GetContext(ctx, &d, query, d.ID, d.Name, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to create domain: %w", err)
	}
	return &d, nil
}

func (r *domainRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Domain, error) {
	var d model.Domain
	err := r.db.GetContext(ctx, &d, `SELECT id, name FROM domains WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return &d, nil
}
