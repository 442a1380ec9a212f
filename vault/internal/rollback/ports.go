package rollback

import (
	"context"

	"github.com/telhawk-systems/cardvault/common/messaging"
	"github.com/telhawk-systems/cardvault/vault/internal/events"
)

// FeatureSwitch is the toggle surface of the secure data engine.
type FeatureSwitch interface {
	// DisableAll turns every toggleable protection off.
	DisableAll(ctx context.Context) error
	// Reset clears the persisted toggles and re-enables the defaults.
	Reset(ctx context.Context) error
}

// FaultSource delivers fault signals.
type FaultSource interface {
	Subscribe(handler events.FaultHandler) (messaging.Subscription, error)
}

// Notifier renders user-facing rollback notices.
type Notifier interface {
	Notify(ctx context.Context, note events.Notification) error
}

// Restarter restarts the process environment.
type Restarter interface {
	Restart(reason string)
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(reason string)

func (f RestarterFunc) Restart(reason string) { f(reason) }
