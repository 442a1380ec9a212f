package handlers

import (
	"context"
	"net/http"

	"github.com/telhawk-systems/cardvault/common/httputil"
	"github.com/telhawk-systems/cardvault/common/messaging"
	"github.com/telhawk-systems/cardvault/vault/internal/rollback"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Rollback  string                  `json:"rollback_state"`
	Messaging *messaging.HealthStatus `json:"messaging,omitempty"`
}

type HealthHandler struct {
	version string
	status  func(ctx context.Context) rollback.Status
	broker  messaging.Client
}

// NewHealthHandler reports liveness. broker may be nil.
func NewHealthHandler(version string, machine RollbackMachine, broker messaging.Client) *HealthHandler {
	return &HealthHandler{version: version, status: machine.Status, broker: broker}
}

// HealthCheck always answers 200 while the process serves; a degraded vault
// reports status "degraded".
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	st := h.status(r.Context())
	resp := HealthResponse{Status: "ok", Version: h.version, Rollback: string(st.State)}
	if st.InRollback {
		resp.Status = "degraded"
	}
	if h.broker != nil {
		hs := messaging.CheckClientHealth(h.broker)
		resp.Messaging = &hs
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
