// Package authz gates sensitive operations behind a resource/operation
// permission table and a server-side session lifecycle.
package authz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/vault/internal/audit"
	"github.com/telhawk-systems/cardvault/vault/internal/metrics"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

// DefaultSessionTTL is the lifetime of a new session.
const DefaultSessionTTL = 30 * time.Minute

// Deny reasons.
const (
	ReasonUnknownResource         = "unknown resource"
	ReasonOperationNotPermitted   = "operation not permitted"
	ReasonAuthenticationRequired  = "authentication required"
	ReasonInvalidSession          = "invalid session"
	ReasonInsufficientPermissions = "insufficient permissions"
)

// Audit actions.
const (
	ActionAccessCheck      = "access_check"
	ActionSessionCreated   = "session_created"
	ActionSessionDestroyed = "session_destroyed"
	ActionSessionMismatch  = "session_owner_mismatch"
	ActionSessionExpired   = "session_expired"
)

// AccessContext identifies the caller of an operation.
type AccessContext struct {
	SessionID string
	UserID    string
	Source    string
}

// Decision is the outcome of an access check.
type Decision struct {
	Authorized bool   `json:"authorized"`
	Reason     string `json:"reason,omitempty"`
}

type accessKey struct{}

// WithAccess attaches caller identity to ctx.
func WithAccess(ctx context.Context, ac AccessContext) context.Context {
	return context.WithValue(ctx, accessKey{}, ac)
}

// AccessFromContext returns the caller identity carried by ctx.
func AccessFromContext(ctx context.Context) AccessContext {
	ac, _ := ctx.Value(accessKey{}).(AccessContext)
	return ac
}

// Gate is safe for concurrent use.
type Gate struct {
	policy Policy
	audit  *audit.Logger
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*models.Session
}

// Option configures a Gate.
type Option func(*Gate)

func WithPolicy(p Policy) Option {
	return func(g *Gate) { g.policy = p }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func NewGate(auditLogger *audit.Logger, opts ...Option) *Gate {
	g := &Gate{
		audit:    auditLogger,
		logger:   slog.Default(),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		sessions: make(map[string]*models.Session),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.policy == nil {
		g.policy = DefaultPolicy()
	}
	return g
}

// ValidateAccess decides whether the caller may perform operation on resource.
// Every decision is audited.
func (g *Gate) ValidateAccess(ctx context.Context, resource, operation string, ac AccessContext) Decision {
	d := g.decide(ctx, resource, operation, ac)

	severity, result := models.SeverityInfo, metrics.ResultAllowed
	if !d.Authorized {
		severity, result = models.SeverityWarning, metrics.ResultDenied
		g.logger.DebugContext(ctx, "access denied",
			logging.Resource(resource), logging.Operation(operation), logging.Reason(d.Reason))
	}
	metrics.AccessDecisions.WithLabelValues(metricResource(g.policy, resource), result).Inc()
	g.audit.Log(ctx, ActionAccessCheck, severity, map[string]any{
		"resource":   resource,
		"operation":  operation,
		"authorized": d.Authorized,
		"reason":     d.Reason,
		"user_id":    ac.UserID,
		"source":     ac.Source,
	})
	return d
}

func (g *Gate) decide(ctx context.Context, resource, operation string, ac AccessContext) Decision {
	entry, ok := g.policy[resource]
	if !ok {
		return Decision{Reason: ReasonUnknownResource}
	}
	if !entry.Allows(operation) {
		return Decision{Reason: ReasonOperationNotPermitted}
	}

	if ac.SessionID == "" {
		if entry.RequireAuth {
			return Decision{Reason: ReasonAuthenticationRequired}
		}
		return Decision{Authorized: true}
	}

	session, ok := g.validate(ctx, ac.SessionID, ac.UserID)
	if !ok {
		return Decision{Reason: ReasonInvalidSession}
	}
	if entry.RequireAuth && !session.HasPermission(resource, operation) {
		return Decision{Reason: ReasonInsufficientPermissions}
	}
	return Decision{Authorized: true}
}

// CreateSession issues a new session for userID.
func (g *Gate) CreateSession(ctx context.Context, userID string, permissions []string) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}

	now := g.now()
	session := &models.Session{
		ID:          id,
		UserID:      userID,
		Permissions: append([]string(nil), permissions...),
		CreatedAt:   now,
		LastAccess:  now,
		Expires:     now.Add(g.ttl),
	}

	g.mu.Lock()
	g.sessions[id] = session
	metrics.SessionsActive.Set(float64(len(g.sessions)))
	g.mu.Unlock()

	g.audit.Log(ctx, ActionSessionCreated, models.SeverityInfo, map[string]any{
		"user_id":     userID,
		"permissions": len(permissions),
		"expires":     session.Expires.Format(time.RFC3339),
	})
	return id, nil
}

// ValidateSession reports whether sessionID is live and, when userID is
// non-empty, owned by userID. A successful validation refreshes LastAccess.
func (g *Gate) ValidateSession(ctx context.Context, sessionID, userID string) bool {
	_, ok := g.validate(ctx, sessionID, userID)
	return ok
}

// Session returns a copy of a live session.
func (g *Gate) Session(sessionID string) (models.Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok || !s.IsActive(g.now()) {
		return models.Session{}, false
	}
	return *s, true
}

func (g *Gate) validate(ctx context.Context, sessionID, userID string) (*models.Session, bool) {
	if sessionID == "" {
		return nil, false
	}

	g.mu.Lock()
	session, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return nil, false
	}

	now := g.now()
	if !session.IsActive(now) {
		delete(g.sessions, sessionID)
		metrics.SessionsActive.Set(float64(len(g.sessions)))
		g.mu.Unlock()
		g.audit.Log(ctx, ActionSessionExpired, models.SeverityInfo, map[string]any{"user_id": session.UserID})
		return nil, false
	}

	if userID != "" && session.UserID != userID {
		owner := session.UserID
		g.mu.Unlock()
		g.logger.WarnContext(ctx, "session owner mismatch", logging.UserID(userID))
		g.audit.Log(ctx, ActionSessionMismatch, models.SeverityWarning, map[string]any{
			"user_id":       userID,
			"owner_user_id": owner,
		})
		return nil, false
	}

	session.LastAccess = now
	copied := *session
	g.mu.Unlock()
	return &copied, true
}

// DestroySession removes a session. It returns false if none existed.
func (g *Gate) DestroySession(ctx context.Context, sessionID string) bool {
	g.mu.Lock()
	session, ok := g.sessions[sessionID]
	delete(g.sessions, sessionID)
	metrics.SessionsActive.Set(float64(len(g.sessions)))
	g.mu.Unlock()

	if !ok {
		return false
	}
	g.audit.Log(ctx, ActionSessionDestroyed, models.SeverityInfo, map[string]any{"user_id": session.UserID})
	return true
}

// SessionCount returns the number of resident sessions, expired or not.
func (g *Gate) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// metricResource bounds label cardinality to the policy's resource names.
func metricResource(p Policy, resource string) string {
	if _, ok := p[resource]; ok {
		return resource
	}
	return "unknown"
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
