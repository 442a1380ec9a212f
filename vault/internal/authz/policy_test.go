package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	for _, r := range []string{"card-data", "contacts", "storage", "settings", "export"} {
		entry, ok := p[r]
		require.True(t, ok, r)
		assert.False(t, entry.RequireAuth, r)
	}

	admin, ok := p["admin"]
	require.True(t, ok)
	assert.True(t, admin.RequireAuth)
	for _, op := range []string{"rollback", "restore", "configure"} {
		assert.True(t, admin.Allows(op), op)
	}
	assert.True(t, p["storage"].Allows("read"))
	assert.True(t, p["storage"].Allows("write"))
}

func TestParsePolicy_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "resources: ["},
		{"empty", "resources: {}"},
		{"no operations", "resources:\n  x:\n    require_auth: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParsePolicy_Custom(t *testing.T) {
	p, err := ParsePolicy([]byte("resources:\n  notes:\n    operations: [read]\n    require_auth: true\n"))
	require.NoError(t, err)
	assert.True(t, p["notes"].RequireAuth)
	assert.True(t, p["notes"].Allows("read"))
	assert.False(t, p["notes"].Allows("write"))
}
