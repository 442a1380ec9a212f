package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/telhawk-systems/cardvault/common/messaging"
)

// Notification kinds.
const (
	NotifyRollback = "rollback"
	NotifyRestored = "restored"
)

// Actions offered with a rollback notification.
const (
	ActionDismiss = "dismiss"
	ActionRestore = "restore"
)

// Notification is the structured payload handed to whatever renders the
// degradation banner.
type Notification struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
	EventID string   `json:"event_id,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// BusNotifier publishes notifications for remote renderers.
type BusNotifier struct {
	publisher messaging.Publisher
}

func NewBusNotifier(publisher messaging.Publisher) *BusNotifier {
	return &BusNotifier{publisher: publisher}
}

func (n *BusNotifier) Notify(ctx context.Context, note Notification) error {
	subject := messaging.SubjectRollbackNotify
	if note.Kind == NotifyRestored {
		subject = messaging.SubjectRollbackRestored
	}
	if err := messaging.PublishJSON(ctx, n.publisher, subject, note); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.logger.WarnContext(ctx, note.Message,
		slog.String("notification", note.Kind),
		slog.Any("actions", note.Actions),
		slog.String("event_id", note.EventID))
	return nil
}

// MultiNotifier fans a notification out to every notifier and joins their
// errors.
type MultiNotifier []interface {
	Notify(ctx context.Context, note Notification) error
}

func (m MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
