// Package kvstore defines the key-value port the vault persists through and
// its memory, Redis and PostgreSQL adapters.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Persisted key namespace.
const (
	KeySecurityFeatures  = "security-features"
	KeyCompatibilityMode = "compatibility-mode"
	KeyAdvancedFeatures  = "advanced-features"
	KeyRollbackState     = "rollback-state"
	KeyRollbackHistory   = "rollback-history"

	// PrefixSecurityCache namespaces derived security data that the rollback
	// machine may discard wholesale.
	PrefixSecurityCache = "security-cache:"
)

// SecurityDataKeys are removed when the vault degrades to compatibility mode.
var SecurityDataKeys = []string{
	"security-health",
	"security-events",
	"security-performance",
	"security-credentials",
}

// Store is a string-valued key-value store. Values are JSON strings.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all keys beginning with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}
