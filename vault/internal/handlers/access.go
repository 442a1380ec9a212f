package handlers

import (
	"context"
	"net/http"

	"github.com/telhawk-systems/cardvault/common/httputil"
	"github.com/telhawk-systems/cardvault/common/middleware"
	"github.com/telhawk-systems/cardvault/vault/internal/authz"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

// SessionHeader carries the session id on admin requests.
const SessionHeader = "X-Session-ID"

// Gate is the slice of the authorization gate the HTTP surface needs.
type Gate interface {
	ValidateAccess(ctx context.Context, resource, operation string, ac authz.AccessContext) authz.Decision
	CreateSession(ctx context.Context, userID string, permissions []string) (string, error)
	DestroySession(ctx context.Context, sessionID string) bool
	Session(sessionID string) (models.Session, bool)
}

// RequireAccess admits a request only if the gate allows resource:operation
// for the session named by SessionHeader. The caller identity is attached to
// the request context for downstream checks.
func RequireAccess(gate Gate, resource, operation string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ac := authz.AccessContext{
				SessionID: r.Header.Get(SessionHeader),
				Source:    middleware.GetSource(r.Context()),
			}
			if s, ok := gate.Session(ac.SessionID); ok {
				ac.UserID = s.UserID
			}

			d := gate.ValidateAccess(r.Context(), resource, operation, ac)
			if !d.Authorized {
				httputil.WriteError(w, deniedStatus(d.Reason), d.Reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(authz.WithAccess(r.Context(), ac)))
		}
	}
}

func deniedStatus(reason string) int {
	switch reason {
	case authz.ReasonAuthenticationRequired, authz.ReasonInvalidSession:
		return http.StatusUnauthorized
	case authz.ReasonUnknownResource:
		return http.StatusNotFound
	}
	return http.StatusForbidden
}
