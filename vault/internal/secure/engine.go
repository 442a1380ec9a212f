// Package secure implements the vault's data boundary: output sanitization,
// integrity digests, authenticated encryption at rest, injection-safe logging
// and the security feature toggles.
package secure

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/telhawk-systems/cardvault/vault/internal/audit"
	"github.com/telhawk-systems/cardvault/vault/internal/authz"
	"github.com/telhawk-systems/cardvault/vault/internal/kvstore"
	"github.com/telhawk-systems/cardvault/vault/internal/sanitize"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Errors surfaced to callers. Messages are generic so results never leak
// internal detail.
var (
	ErrAccessDenied    = errors.New("access denied")
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("expired")
	ErrIntegrity       = errors.New("integrity check failed")
	ErrInvalidKey      = errors.New("invalid key")
	ErrOperationFailed = errors.New("operation failed")
)

// Resource and operations checked before every storage access.
const (
	ResourceStorage = "storage"
	OperationRead   = "read"
	OperationWrite  = "write"
)

// Authorizer decides whether the caller in ctx may touch a resource.
type Authorizer interface {
	ValidateAccess(ctx context.Context, resource, operation string, ac authz.AccessContext) authz.Decision
}

// Engine is safe for concurrent use.
type Engine struct {
	store    kvstore.Store
	authz    Authorizer
	aead     cipher.AEAD
	features *Features
	audit    *audit.Logger
	logger   *slog.Logger
	now      func() time.Time

	fallbackMu sync.Mutex
	fallback   io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithAudit attaches the audit logger and binds it to the audit_logging
// feature toggle.
func WithAudit(a *audit.Logger) Option {
	return func(e *Engine) { e.audit = a }
}

// WithFeatures shares an existing toggle set instead of creating one.
func WithFeatures(f *Features) Option {
	return func(e *Engine) { e.features = f }
}

// WithFallback sets where log lines go when the structured logger fails.
func WithFallback(w io.Writer) Option {
	return func(e *Engine) { e.fallback = w }
}

// New builds an engine over store. key must be KeySize bytes.
func New(store kvstore.Store, authorizer Authorizer, key []byte, opts ...Option) (*Engine, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	e := &Engine{
		store:    store,
		authz:    authorizer,
		aead:     aead,
		logger:   slog.Default(),
		now:      time.Now,
		fallback: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.features == nil {
		e.features = NewFeatures(store)
	}
	if e.audit != nil {
		e.audit.SetEnabled(func() bool { return e.features.Enabled(FeatureAuditLogging) })
	}
	return e, nil
}

// Features exposes the toggle surface used by the rollback machine.
func (e *Engine) Features() *Features {
	return e.features
}

// SanitizeOutput escapes data for the given output context.
func (e *Engine) SanitizeOutput(data any, ctx sanitize.Context) string {
	return sanitize.Output(data, ctx)
}

func (e *Engine) authorize(ctx context.Context, operation string) bool {
	d := e.authz.ValidateAccess(ctx, ResourceStorage, operation, authz.AccessFromContext(ctx))
	return d.Authorized
}
