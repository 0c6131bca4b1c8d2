package model

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventConfigCreated    EventType = "ConfigCreated"
	EventConfigUpdated    EventType = "ConfigUpdated"
	EventConfigRolledBack EventType = "ConfigRolledBack"
)

// OutboxEvent is a snapshot of the ConfigVersion produced by one
// mutation, written in the same transaction as the version row. It is
// not a live reference: later store changes cannot alter a queued event.
type OutboxEvent struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Key           string     `db:"key" json:"key"`
	Value         string     `db:"value" json:"value"`
	Scope         Scope      `db:"scope" json:"scope"`
	TenantID      *uuid.UUID `db:"tenant_id" json:"tenant_id,omitempty"`
	CompanyID     *uuid.UUID `db:"company_id" json:"company_id,omitempty"`
	DomainID      *uuid.UUID `db:"domain_id" json:"domain_id,omitempty"`
	Version       int        `db:"version" json:"version"`
	EventType     EventType  `db:"event_type" json:"event_type"`
	CorrelationID string     `db:"correlation_id" json:"correlation_id"`
	OccurredAt    time.Time  `db:"occurred_at" json:"occurred_at"`
	Dispatched    bool       `db:"dispatched" json:"dispatched"`
	DispatchedAt  *time.Time `db:"dispatched_at" json:"dispatched_at,omitempty"`
	ClaimedAt     *time.Time `db:"claimed_at" json:"-"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastError     *string    `db:"last_error" json:"last_error,omitempty"`
}

// NewOutboxEvent snapshots a freshly inserted version row.
func NewOutboxEvent(cv *ConfigVersion, eventType EventType, correlationID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		Key:           cv.Key,
		Value:         cv.Value,
		Scope:         cv.Scope,
		TenantID:      cv.TenantID,
		CompanyID:     cv.CompanyID,
		DomainID:      cv.DomainID,
		Version:       cv.Version,
		EventType:     eventType,
		CorrelationID: correlationID,
		OccurredAt:    cv.CreatedAt,
	}
}
