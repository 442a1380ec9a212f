// Package audit records signed, sanitized audit entries and fans them out to
// one or more sinks.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/cardvault/common/audit"
	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/common/middleware"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
	"github.com/telhawk-systems/cardvault/vault/internal/sanitize"
)

// Sink receives finished audit entries. Sinks never read entries back.
type Sink interface {
	Write(ctx context.Context, entry *models.AuditLogEntry) error
}

// Logger builds and dispatches audit entries. A failing sink is logged and
// skipped; audit failures never block the audited operation.
type Logger struct {
	signer  *audit.Signer
	sinks   []Sink
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	enabled func() bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithEnabled installs a switch consulted before every entry.
func WithEnabled(enabled func() bool) Option {
	return func(l *Logger) { l.enabled = enabled }
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

func NewLogger(secretKey string, sinks []Sink, opts ...Option) *Logger {
	l := &Logger{
		signer: audit.NewSigner(secretKey),
		sinks:  sinks,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetEnabled replaces the enable switch after construction. Used to break the
// construction cycle between the logger and the feature toggles.
func (l *Logger) SetEnabled(enabled func() bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Unswitched returns a logger sharing l's signer and sinks that ignores the
// enable switch. Rollback lifecycle entries go through it, since remediation
// itself turns audit logging off.
func (l *Logger) Unswitched() *Logger {
	return &Logger{
		signer: l.signer,
		sinks:  l.sinks,
		logger: l.logger,
		now:    l.now,
	}
}

// Enabled reports whether entries are currently recorded.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	fn := l.enabled
	l.mu.RUnlock()
	return fn == nil || fn()
}

// Log records an action. It returns nil when audit logging is disabled.
func (l *Logger) Log(ctx context.Context, action, severity string, details map[string]any) *models.AuditLogEntry {
	if !l.Enabled() {
		return nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	entry := &models.AuditLogEntry{
		ID:        id.String(),
		Timestamp: l.now().UTC(),
		Action:    sanitize.LogText(action, sanitize.MaxDetailRunes),
		Severity:  severity,
		Details:   sanitize.Details(details),
		Source:    middleware.GetSource(ctx),
	}
	entry.Signature = l.sign(entry)

	for _, sink := range l.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			l.logger.WarnContext(ctx, "audit sink write failed",
				slog.String("action", entry.Action),
				logging.EventID(entry.ID),
				logging.Error(err))
		}
	}
	return entry
}

// Verify checks an entry's signature.
func (l *Logger) Verify(entry *models.AuditLogEntry) bool {
	return l.signer.Verify(entry.ID, entry.Timestamp, entry.Action, signedData(entry), entry.Signature)
}

func (l *Logger) sign(entry *models.AuditLogEntry) string {
	return l.signer.Sign(entry.ID, entry.Timestamp, entry.Action, signedData(entry))
}

// signedData covers severity, source and details. Map keys marshal sorted, so
// the encoding is stable.
func signedData(entry *models.AuditLogEntry) []byte {
	b, _ := json.Marshal(struct {
		Severity string            `json:"severity"`
		Source   string            `json:"source"`
		Details  map[string]string `json:"details"`
	}{entry.Severity, entry.Source, entry.Details})
	return b
}
