package logging

import "log/slog"

// Common field names for consistent logging across the vault.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldSource    = "source"
	FieldUserID    = "user_id"
	FieldKey       = "key"
	FieldResource  = "resource"
	FieldOperation = "operation"
	FieldReason    = "reason"
	FieldState     = "state"
	FieldStep      = "step"
	FieldEventID   = "event_id"
	FieldError     = "error"
	FieldBackend   = "backend"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// UserID returns a slog attribute for the user ID.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// Key returns a slog attribute for a storage key.
func Key(key string) slog.Attr {
	return slog.String(FieldKey, key)
}

// Resource returns a slog attribute for an authorization resource.
func Resource(resource string) slog.Attr {
	return slog.String(FieldResource, resource)
}

// Operation returns a slog attribute for an authorization operation.
func Operation(op string) slog.Attr {
	return slog.String(FieldOperation, op)
}

// Reason returns a slog attribute for a decision or trigger reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// State returns a slog attribute for a state machine state.
func State(state string) slog.Attr {
	return slog.String(FieldState, state)
}

// Step returns a slog attribute for a remediation step name.
func Step(step string) slog.Attr {
	return slog.String(FieldStep, step)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// Backend returns a slog attribute for a storage backend name.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
