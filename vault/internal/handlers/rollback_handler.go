package handlers

import (
	"context"
	"net/http"

	"github.com/telhawk-systems/cardvault/common/httputil"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
	"github.com/telhawk-systems/cardvault/vault/internal/rollback"
)

// RollbackMachine is the rollback surface exposed over HTTP.
type RollbackMachine interface {
	TriggerRollback(ctx context.Context, reason string, details map[string]any) rollback.TriggerResult
	TriggerEmergencyRollback(ctx context.Context) rollback.TriggerResult
	RestoreFromRollback(ctx context.Context, opts rollback.RestoreOptions) rollback.RestoreResult
	Status(ctx context.Context) rollback.Status
	History(ctx context.Context) []models.RollbackEvent
}

// TriggerRequest is the body of POST /api/v1/rollback/trigger.
type TriggerRequest struct {
	Reason  string         `json:"reason"`
	Context map[string]any `json:"context"`
}

type RollbackHandler struct {
	machine RollbackMachine
}

func NewRollbackHandler(machine RollbackMachine) *RollbackHandler {
	return &RollbackHandler{machine: machine}
}

func (h *RollbackHandler) Status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.machine.Status(r.Context()))
}

func (h *RollbackHandler) History(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": h.machine.History(r.Context())})
}

func (h *RollbackHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = models.ReasonManual
	}
	writeTrigger(w, h.machine.TriggerRollback(r.Context(), req.Reason, req.Context))
}

func (h *RollbackHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	writeTrigger(w, h.machine.TriggerEmergencyRollback(r.Context()))
}

func (h *RollbackHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var opts rollback.RestoreOptions
	if err := httputil.DecodeJSON(r, &opts); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res := h.machine.RestoreFromRollback(r.Context(), opts)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, res)
}

func writeTrigger(w http.ResponseWriter, res rollback.TriggerResult) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	httputil.WriteJSON(w, status, res)
}
