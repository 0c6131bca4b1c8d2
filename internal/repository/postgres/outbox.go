package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/config-api/internal/model"
	"github.com/jwalitptl/config-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{NewBaseRepository(db)}
}

// claimLease is how long a fetched batch stays invisible to other
// pollers. A dispatcher that dies mid-batch forfeits its claim after
// this long; a recorded failure releases it immediately.
const claimLease = 30 * time.Second

// GetUndispatched claims up to limit pending events oldest-first by
// stamping claimed_at, so the claim outlives this statement and spans
// the publish window even with several dispatchers polling. SKIP LOCKED
// keeps two overlapping claim statements off the same rows. A crash
// between publish and mark still republishes after the lease expires;
// consumers dedupe by event id.
func (r *outboxRepository) GetUndispatched(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET claimed_at = NOW()
		WHERE id IN (
			SELECT id
			FROM outbox_events
			WHERE dispatched = false
			AND (claimed_at IS NULL OR claimed_at < NOW() - ($2 * interval '1 second'))
			ORDER BY occurred_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, key, value, scope, tenant_id, company_id, domain_id,
		          version, event_type, correlation_id, occurred_at,
		          dispatched, dispatched_at, attempts, last_error, claimed_at
	`
	var events []*model.OutboxEvent
	err := r.db.SelectContext(ctx, &events, query, limit, claimLease.Seconds())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get undispatched events: %w", err)
	}
	// RETURNING does not preserve the subquery's order.
	sort.Slice(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })
	return events, nil
}

func (r *outboxRepository) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET dispatched = true,
		    dispatched_at = NOW(),
		    attempts = attempts + 1,
		    last_error = NULL
		WHERE id = $1 AND dispatched = false
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark event dispatched: %w", err)
	}
	return nil
}

func (r *outboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, publishErr string) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    last_error = $2,
		    claimed_at = NULL
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, publishErr); err != nil {
		return fmt.Errorf("failed to record publish failure: %w", err)
	}
	return nil
}

func (r *outboxRepository) CountUndispatched(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM outbox_events WHERE dispatched = false`)
	if err != nil {
		return 0, fmt.Errorf("failed to count undispatched events: %w", err)
	}
	return count, nil
}
