package messaging

// Subject constants for the vault message bus.
// Follow the pattern: {domain}.{action}.{resource}
const (
	// Fault signals feeding the rollback machine.
	SubjectFaultsError     = "vault.faults.error"     // Uncaught errors
	SubjectFaultsRejection = "vault.faults.rejection" // Unhandled async rejections
	SubjectFaultsAll       = "vault.faults.>"         // Wildcard for watchers

	// Rollback lifecycle, published by the rollback machine.
	SubjectRollbackNotify   = "vault.rollback.notify"   // User-facing degradation notice
	SubjectRollbackRestored = "vault.rollback.restored" // Security features restored

	// Audit records, published by the NATS audit sink.
	SubjectAuditEntries = "vault.audit.entries"
)

// FaultSubject returns the subject for a fault kind.
// Example: vault.faults.error
func FaultSubject(kind string) string {
	return "vault.faults." + kind
}
