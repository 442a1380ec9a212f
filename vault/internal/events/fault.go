// Package events carries fault signals and user-facing notifications over the
// vault message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/common/messaging"
	"github.com/telhawk-systems/cardvault/common/middleware"
	"github.com/telhawk-systems/cardvault/vault/internal/sanitize"
)

// Fault kinds.
const (
	KindError     = "error"
	KindRejection = "rejection"
)

// Fault is an error-like signal raised somewhere in the process.
type Fault struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FaultHandler receives decoded faults.
type FaultHandler func(ctx context.Context, f Fault)

// Bus reports faults onto a messaging client and subscribes to them.
type Bus struct {
	client messaging.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates a fault bus over client. A nil logger uses slog.Default.
func NewBus(client messaging.Client, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{client: client, logger: logger, now: time.Now}
}

// Report publishes a fault of the given kind.
func (b *Bus) Report(ctx context.Context, kind, message string) error {
	f := Fault{
		Kind:      kind,
		Message:   sanitize.LogText(message, sanitize.MaxMessageRunes),
		Source:    middleware.GetSource(ctx),
		Timestamp: b.now().UTC(),
	}
	if err := messaging.PublishJSON(ctx, b.client, messaging.FaultSubject(kind), f); err != nil {
		return fmt.Errorf("failed to report fault: %w", err)
	}
	return nil
}

// ReportError publishes err as an error fault.
func (b *Bus) ReportError(ctx context.Context, err error) error {
	return b.Report(ctx, KindError, err.Error())
}

// ReportPanic publishes a recovered panic value as an error fault.
func (b *Bus) ReportPanic(ctx context.Context, v any) error {
	return b.Report(ctx, KindError, fmt.Sprintf("panic: %v", v))
}

// Subscribe delivers every fault on the bus to handler.
func (b *Bus) Subscribe(handler FaultHandler) (messaging.Subscription, error) {
	sub, err := b.client.Subscribe(messaging.SubjectFaultsAll, func(ctx context.Context, msg *messaging.Message) error {
		var f Fault
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			b.logger.Warn("dropping malformed fault", logging.Error(err))
			return err
		}
		if f.Kind == "" {
			f.Kind = kindFromSubject(msg.Subject)
		}
		handler(ctx, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to faults: %w", err)
	}
	return sub, nil
}

func kindFromSubject(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}
