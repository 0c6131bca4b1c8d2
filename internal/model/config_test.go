package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		input string
		want  Scope
	}{
		{"GLOBAL", ScopeGlobal},
		{"global", ScopeGlobal},
		{"Tenant", ScopeTenant},
		{"TENANT", ScopeTenant},
		{"company", ScopeCompany},
		{" COMPANY ", ScopeCompany},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []string{"", "region", "GLOBAL_X", "tenantcompany"} {
		_, err := ParseScope(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestScopeValid(t *testing.T) {
	assert.True(t, ScopeGlobal.Valid())
	assert.True(t, ScopeTenant.Valid())
	assert.True(t, ScopeCompany.Valid())
	assert.False(t, Scope("").Valid())
	assert.False(t, Scope("global").Valid())
}

func TestNewOutboxEventSnapshots(t *testing.T) {
	tenantID := uuid.New()
	cv := &ConfigVersion{
		ID:       uuid.New(),
		Key:      "k",
		Value:    "v",
		Scope:    ScopeTenant,
		TenantID: &tenantID,
		Version:  3,
		Status:   StatusActive,
	}

	evt := NewOutboxEvent(cv, EventConfigUpdated, "corr-1")
	assert.NotEqual(t, uuid.Nil, evt.ID)
	assert.NotEqual(t, cv.ID, evt.ID)
	assert.Equal(t, "k", evt.Key)
	assert.Equal(t, "v", evt.Value)
	assert.Equal(t, 3, evt.Version)
	assert.Equal(t, EventConfigUpdated, evt.EventType)
	assert.Equal(t, "corr-1", evt.CorrelationID)
	assert.False(t, evt.Dispatched)
	assert.Zero(t, evt.Attempts)

	// The event is a snapshot, not a reference.
	cv.Value = "changed"
	assert.Equal(t, "v", evt.Value)
}
