package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/telhawk-systems/cardvault/common/httputil"
	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/vault/internal/secure"
)

// AdminPermissions are granted to sessions created with the admin credential.
var AdminPermissions = []string{"admin:*", "storage:*", "card-data:*", "contacts:*", "settings:*", "export:*"}

// LoginRequest is the body of POST /api/v1/sessions.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the new session id.
type LoginResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionHandler struct {
	gate         Gate
	adminUser    string
	passwordHash string
	logger       *slog.Logger
}

// NewSessionHandler authenticates the single admin account against an
// Argon2id hash. An empty hash disables login.
func NewSessionHandler(gate Gate, adminUser, passwordHash string, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{gate: gate, adminUser: adminUser, passwordHash: passwordHash, logger: logger}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.passwordHash == "" || req.Username != h.adminUser {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	ok, err := secure.VerifyPassword(req.Password, h.passwordHash)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "admin password hash is unusable", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "operation failed")
		return
	}
	if !ok {
		h.logger.WarnContext(r.Context(), "admin login failed", slog.String("client_ip", httputil.GetClientIP(r)))
		httputil.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	id, err := h.gate.CreateSession(r.Context(), req.Username, AdminPermissions)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "operation failed")
		return
	}
	s, _ := h.gate.Session(id)
	httputil.WriteJSON(w, http.StatusCreated, LoginResponse{SessionID: id, UserID: s.UserID, ExpiresAt: s.Expires})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, SessionHeader+" header required")
		return
	}
	if !h.gate.DestroySession(r.Context(), id) {
		httputil.WriteError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
