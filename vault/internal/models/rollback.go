package models

import "time"

// RollbackState is the lifecycle position of the rollback machine.
type RollbackState string

const (
	RollbackNormal    RollbackState = "normal"
	RollbackInitiated RollbackState = "initiated"
	RollbackActive    RollbackState = "active"
	RollbackFailed    RollbackState = "failed"
)

// CanTransition reports whether from -> to is a legal move.
// Failed -> Initiated is the explicit retry path.
func (s RollbackState) CanTransition(to RollbackState) bool {
	switch s {
	case RollbackNormal, RollbackFailed:
		return to == RollbackInitiated
	case RollbackInitiated:
		return to == RollbackActive || to == RollbackFailed
	case RollbackActive:
		return to == RollbackNormal
	}
	return false
}

// Rollback step names, executed in this order.
const (
	StepDisableSecurityFeatures = "disable_security_features"
	StepRemoveSecurityData      = "remove_security_data"
	StepEnableCompatibilityMode = "enable_compatibility_mode"
	StepClearSecurityCaches     = "clear_security_caches"
)

// Trigger reasons.
const (
	ReasonCriticalError      = "critical_error"
	ReasonUnhandledRejection = "unhandled_rejection"
	ReasonEmergency          = "emergency_rollback"
	ReasonManual             = "manual"
	ReasonRestoration        = "restoration"
)

// StepResult records the outcome of one rollback step.
type StepResult struct {
	Step    string `json:"step"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RollbackEvent is one entry of the rollback history.
type RollbackEvent struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Reason      string         `json:"reason"`
	Context     map[string]any `json:"context,omitempty"`
	State       RollbackState  `json:"state"`
	Steps       []StepResult   `json:"steps"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Succeeded reports whether every step succeeded.
func (e *RollbackEvent) Succeeded() bool {
	for _, s := range e.Steps {
		if !s.Success {
			return false
		}
	}
	return true
}

// RollbackStateRecord is the persisted machine state.
type RollbackStateRecord struct {
	State RollbackState  `json:"state"`
	Event *RollbackEvent `json:"event,omitempty"`
}
