package models

import "time"

// Audit severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AuditLogEntry is a signed, write-only audit record. Details are sanitized
// before the entry is built.
type AuditLogEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	Severity  string            `json:"severity"`
	Details   map[string]string `json:"details,omitempty"`
	Source    string            `json:"source,omitempty"`
	Signature string            `json:"signature"`
}
