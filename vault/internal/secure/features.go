package secure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/telhawk-systems/cardvault/vault/internal/kvstore"
)

// Toggleable security features. Output sanitization and authorization are
// not toggleable.
const (
	FeatureEncryption   = "encryption"
	FeatureIntegrity    = "integrity"
	FeatureAuditLogging = "audit_logging"
)

// FeatureState is the persisted toggle record.
type FeatureState struct {
	Encryption   bool `json:"encryption"`
	Integrity    bool `json:"integrity"`
	AuditLogging bool `json:"audit_logging"`
}

// AllEnabled is the default state.
func AllEnabled() FeatureState {
	return FeatureState{Encryption: true, Integrity: true, AuditLogging: true}
}

// Features holds the live toggles and persists changes under
// kvstore.KeySecurityFeatures.
type Features struct {
	store kvstore.Store
	mu    sync.RWMutex
	state FeatureState
}

func NewFeatures(store kvstore.Store) *Features {
	return &Features{store: store, state: AllEnabled()}
}

// Load replaces the live state with the persisted record. A missing record
// leaves every feature enabled.
func (f *Features) Load(ctx context.Context) error {
	raw, err := f.store.Get(ctx, kvstore.KeySecurityFeatures)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load security features: %w", err)
	}

	var state FeatureState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return fmt.Errorf("failed to decode security features: %w", err)
	}

	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
	return nil
}

// Snapshot returns the current toggles.
func (f *Features) Snapshot() FeatureState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Enabled reports one toggle. Unknown names report false.
func (f *Features) Enabled(name string) bool {
	s := f.Snapshot()
	switch name {
	case FeatureEncryption:
		return s.Encryption
	case FeatureIntegrity:
		return s.Integrity
	case FeatureAuditLogging:
		return s.AuditLogging
	}
	return false
}

// Set changes one toggle and persists the result.
func (f *Features) Set(ctx context.Context, name string, enabled bool) error {
	f.mu.Lock()
	next := f.state
	switch name {
	case FeatureEncryption:
		next.Encryption = enabled
	case FeatureIntegrity:
		next.Integrity = enabled
	case FeatureAuditLogging:
		next.AuditLogging = enabled
	default:
		f.mu.Unlock()
		return fmt.Errorf("unknown feature %q", name)
	}
	f.state = next
	f.mu.Unlock()

	return f.persist(ctx, next)
}

// DisableAll turns every toggle off. The in-memory state changes even if
// persisting fails, so a degraded vault stays degraded.
func (f *Features) DisableAll(ctx context.Context) error {
	f.mu.Lock()
	f.state = FeatureState{}
	f.mu.Unlock()
	return f.persist(ctx, FeatureState{})
}

// EnableAll turns every toggle on and persists the result.
func (f *Features) EnableAll(ctx context.Context) error {
	f.mu.Lock()
	f.state = AllEnabled()
	f.mu.Unlock()
	return f.persist(ctx, AllEnabled())
}

// Reset deletes the persisted record and reverts to defaults.
func (f *Features) Reset(ctx context.Context) error {
	if err := f.store.Delete(ctx, kvstore.KeySecurityFeatures); err != nil {
		return fmt.Errorf("failed to clear security features: %w", err)
	}
	f.mu.Lock()
	f.state = AllEnabled()
	f.mu.Unlock()
	return nil
}

func (f *Features) persist(ctx context.Context, state FeatureState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode security features: %w", err)
	}
	if err := f.store.Set(ctx, kvstore.KeySecurityFeatures, string(b)); err != nil {
		return fmt.Errorf("failed to persist security features: %w", err)
	}
	return nil
}
