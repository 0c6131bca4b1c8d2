package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope is the precedence tier at which a configuration value applies.
type Scope string

const (
	ScopeGlobal  Scope = "GLOBAL"
	ScopeTenant  Scope = "TENANT"
	ScopeCompany Scope = "COMPANY"
)

// ParseScope accepts any casing ("global", "Tenant", "COMPANY").
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToUpper(strings.TrimSpace(s))) {
	case ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeTenant:
		return ScopeTenant, nil
	case ScopeCompany:
		return ScopeCompany, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeTenant || s == ScopeCompany
}

// Config version lifecycle states.
const (
	StatusActive     = "ACTIVE"
	StatusDeprecated = "DEPRECATED"
)

// ConfigVersion is one immutable version of one logical key within one
// scope instance. Rows are never updated in place except the single
// ACTIVE -> DEPRECATED status flip; every mutation inserts a new row.
type ConfigVersion struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Key       string     `db:"key" json:"key"`
	Value     string     `db:"value" json:"value"`
	Scope     Scope      `db:"scope" json:"scope"`
	TenantID  *uuid.UUID `db:"tenant_id" json:"tenant_id,omitempty"`
	CompanyID *uuid.UUID `db:"company_id" json:"company_id,omitempty"`
	DomainID  *uuid.UUID `db:"domain_id" json:"-"`
	Version   int        `db:"version" json:"version"`
	Status    string     `db:"status" json:"status"`
	CreatedBy *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// ScopeIdentity is the concrete tuple identifying one independent
// override line for a key.
type ScopeIdentity struct {
	Scope     Scope
	TenantID  *uuid.UUID
	CompanyID *uuid.UUID
}

// Identity returns the scope identity of an existing version row.
func (c *ConfigVersion) Identity() ScopeIdentity {
	return ScopeIdentity{Scope: c.Scope, TenantID: c.TenantID, CompanyID: c.CompanyID}
}

// Domain is a free-text namespace label resolved to a stable identity on
// first use. Never updated or deleted.
type Domain struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}
