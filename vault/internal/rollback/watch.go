package rollback

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/common/middleware"
	"github.com/telhawk-systems/cardvault/vault/internal/events"
	"github.com/telhawk-systems/cardvault/vault/internal/metrics"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

// criticalMarkers are matched case-insensitively against fault messages.
var criticalMarkers = []string{
	// security components
	"secure", "security", "authz", "authorization", "session", "audit", "rollback",
	// cryptography
	"crypto", "cipher", "encrypt", "decrypt", "aead", "integrity", "hash", "argon2", "hmac", "nonce",
	// storage access
	"kvstore", "storage", "redis", "postgres", "quota", "database",
}

// IsCritical reports whether a fault message names a security component, a
// cryptographic failure or a storage access failure.
func IsCritical(message string) bool {
	msg := strings.ToLower(message)
	for _, marker := range criticalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// HandleFault triggers a rollback for critical faults and ignores the rest.
func (m *Machine) HandleFault(ctx context.Context, f events.Fault) {
	critical := IsCritical(f.Message)
	metrics.FaultsReceived.WithLabelValues(f.Kind, strconv.FormatBool(critical)).Inc()
	if !critical {
		m.logger.DebugContext(ctx, "ignoring non-critical fault", "kind", f.Kind)
		return
	}

	reason := models.ReasonCriticalError
	if f.Kind == events.KindRejection {
		reason = models.ReasonUnhandledRejection
	}
	m.logger.WarnContext(ctx, "critical fault received", logging.Reason(reason))
	m.TriggerRollback(ctx, reason, map[string]any{
		"message": f.Message,
		"kind":    f.Kind,
		"source":  f.Source,
	})
}

// Watch feeds faults from source into the machine until ctx is done.
func (m *Machine) Watch(ctx context.Context, source FaultSource) error {
	sub, err := source.Subscribe(func(_ context.Context, f events.Fault) {
		// The delivery context may be cancelled once the handler returns.
		m.HandleFault(middleware.WithSource(context.WithoutCancel(ctx), "watcher"), f)
	})
	if err != nil {
		return fmt.Errorf("failed to watch faults: %w", err)
	}
	m.logger.InfoContext(ctx, "watching fault signals", "subject", sub.Subject())

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		m.logger.WarnContext(ctx, "failed to unsubscribe from faults", logging.Error(err))
	}
	return nil
}
