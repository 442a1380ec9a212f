// Package rollback degrades the vault to a non-encrypted compatibility mode
// when the security subsystem fails, and restores it on request.
package rollback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/vault/internal/audit"
	"github.com/telhawk-systems/cardvault/vault/internal/events"
	"github.com/telhawk-systems/cardvault/vault/internal/kvstore"
	"github.com/telhawk-systems/cardvault/vault/internal/metrics"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

const (
	// HistoryLimit caps the rollback history.
	HistoryLimit = 10
	// DefaultRestartDelay is how long emergency and restore paths wait
	// before restarting.
	DefaultRestartDelay = time.Second

	errNotInRollback = "not in rollback state"
	errInterrupted   = "interrupted"
)

// Audit actions.
const (
	ActionRollbackCompleted = "rollback_completed"
	ActionRollbackFailed    = "rollback_failed"
	ActionRollbackRestored  = "rollback_restored"
	ActionRestoreFailed     = "rollback_restore_failed"
)

var allStates = []string{
	string(models.RollbackNormal),
	string(models.RollbackInitiated),
	string(models.RollbackActive),
	string(models.RollbackFailed),
}

// TriggerResult is the outcome of a trigger.
type TriggerResult struct {
	Success       bool                  `json:"success"`
	AlreadyActive bool                  `json:"alreadyActive,omitempty"`
	Event         *models.RollbackEvent `json:"event,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// RestoreOptions control RestoreFromRollback.
type RestoreOptions struct {
	// Restart schedules an environment restart once protections are restored.
	Restart bool `json:"restart"`
}

// RestoreResult is the outcome of a restore.
type RestoreResult struct {
	Success          bool                  `json:"success"`
	RestartScheduled bool                  `json:"restartScheduled,omitempty"`
	Event            *models.RollbackEvent `json:"event,omitempty"`
	Error            string                `json:"error,omitempty"`
}

// Status reports the machine's current position.
type Status struct {
	State        models.RollbackState  `json:"state"`
	InRollback   bool                  `json:"inRollback"`
	LastEvent    *models.RollbackEvent `json:"lastEvent,omitempty"`
	HistoryCount int                   `json:"historyCount"`
}

// Machine is the rollback state machine. All operations are serialised.
type Machine struct {
	store     kvstore.Store
	features  FeatureSwitch
	notifier  Notifier
	restarter Restarter
	audit     *audit.Logger
	logger    *slog.Logger
	now       func() time.Time
	delay     time.Duration

	mu      sync.Mutex
	state   models.RollbackState
	last    *models.RollbackEvent
	history []models.RollbackEvent

	timerMu sync.Mutex
	timers  []*time.Timer
}

// Option configures a Machine.
type Option func(*Machine)

func WithNotifier(n Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

func WithRestarter(r Restarter) Option {
	return func(m *Machine) { m.restarter = r }
}

// WithRestartDelay sets the delay before a scheduled restart.
func WithRestartDelay(d time.Duration) Option {
	return func(m *Machine) { m.delay = d }
}

// WithAudit records rollback lifecycle entries through a. The audit_logging
// toggle does not apply to them.
func WithAudit(a *audit.Logger) Option {
	return func(m *Machine) {
		if a != nil {
			m.audit = a.Unswitched()
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New creates a machine in the Normal state. Call Load to pick up state
// persisted by a previous process.
func New(store kvstore.Store, features FeatureSwitch, opts ...Option) *Machine {
	m := &Machine{
		store:    store,
		features: features,
		logger:   slog.Default(),
		now:      time.Now,
		delay:    DefaultRestartDelay,
		state:    models.RollbackNormal,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logging.Service("rollback"))
	metrics.SetRollbackState(string(m.state), allStates)
	return m
}

// Load restores the persisted state and history. A run that was interrupted
// mid-remediation is loaded as Failed.
func (m *Machine) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rec models.RollbackStateRecord
	found, err := m.loadJSON(ctx, kvstore.KeyRollbackState, &rec)
	if err != nil {
		return err
	}
	var history []models.RollbackEvent
	if _, err := m.loadJSON(ctx, kvstore.KeyRollbackHistory, &history); err != nil {
		return err
	}
	if len(history) > HistoryLimit {
		history = history[:HistoryLimit]
	}
	m.history = history

	if !found || rec.State == "" {
		return nil
	}
	m.state, m.last = rec.State, rec.Event
	if m.state == models.RollbackInitiated {
		m.logger.WarnContext(ctx, "previous rollback was interrupted")
		m.state = models.RollbackFailed
		if m.last != nil {
			m.last.State = models.RollbackFailed
			m.last.Error = errInterrupted
		}
		m.persistState(ctx)
	}
	metrics.SetRollbackState(string(m.state), allStates)
	m.logger.InfoContext(ctx, "rollback state loaded", logging.State(string(m.state)))
	return nil
}

// TriggerRollback degrades the vault to compatibility mode. It is a no-op
// when a rollback is already active.
func (m *Machine) TriggerRollback(ctx context.Context, reason string, details map[string]any) TriggerResult {
	// Once started, steps and state writes run to completion.
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == models.RollbackActive {
		m.logger.InfoContext(ctx, "rollback already active", logging.Reason(reason))
		return TriggerResult{Success: true, AlreadyActive: true}
	}
	if !m.state.CanTransition(models.RollbackInitiated) {
		return TriggerResult{Error: fmt.Sprintf("cannot trigger rollback from %s state", m.state)}
	}

	event := &models.RollbackEvent{
		ID:        newEventID(),
		Timestamp: m.now().UTC(),
		Reason:    reason,
		Context:   details,
		State:     models.RollbackInitiated,
	}
	m.setState(ctx, models.RollbackInitiated, event)
	m.logger.WarnContext(ctx, "rollback initiated", logging.Reason(reason), logging.EventID(event.ID))

	event.Steps = m.runSteps(ctx, m.remediation(reason))
	completed := m.now().UTC()
	event.CompletedAt = &completed

	if !event.Succeeded() {
		event.State = models.RollbackFailed
		event.Error = "rollback steps failed: " + strings.Join(failedSteps(event.Steps), ", ")
		m.setState(ctx, models.RollbackFailed, event)
		metrics.RollbackTriggers.WithLabelValues(reason, metrics.ResultFailure).Inc()
		m.logAudit(ctx, ActionRollbackFailed, models.SeverityCritical, event)
		m.logger.ErrorContext(ctx, "rollback failed", logging.Reason(reason), logging.EventID(event.ID))
		return TriggerResult{Event: copyEvent(event), Error: event.Error}
	}

	event.State = models.RollbackActive
	m.setState(ctx, models.RollbackActive, event)
	m.appendHistory(ctx, *event)
	metrics.RollbackTriggers.WithLabelValues(reason, metrics.ResultSuccess).Inc()
	m.logAudit(ctx, ActionRollbackCompleted, models.SeverityCritical, event)
	m.notify(ctx, events.Notification{
		Kind:    events.NotifyRollback,
		Message: "Security features have been disabled after a failure. The vault is running in compatibility mode.",
		Actions: []string{events.ActionDismiss, events.ActionRestore},
		EventID: event.ID,
		Reason:  reason,
	})
	m.logger.WarnContext(ctx, "rollback active", logging.Reason(reason), logging.EventID(event.ID))
	return TriggerResult{Success: true, Event: copyEvent(event)}
}

// TriggerEmergencyRollback runs an emergency rollback and schedules a restart
// whatever the outcome.
func (m *Machine) TriggerEmergencyRollback(ctx context.Context) TriggerResult {
	res := m.TriggerRollback(ctx, models.ReasonEmergency, map[string]any{
		"emergency":     true,
		"userInitiated": true,
	})
	m.scheduleRestart(ctx, models.ReasonEmergency)
	return res
}

// RestoreFromRollback re-enables protections. It is only valid while a
// rollback is active.
func (m *Machine) RestoreFromRollback(ctx context.Context, opts RestoreOptions) RestoreResult {
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.RollbackActive {
		return RestoreResult{Error: errNotInRollback}
	}

	event := &models.RollbackEvent{
		ID:        newEventID(),
		Timestamp: m.now().UTC(),
		Reason:    models.ReasonRestoration,
		Context:   map[string]any{"restart": opts.Restart},
	}
	event.Steps = m.runSteps(ctx, m.restoration())
	completed := m.now().UTC()
	event.CompletedAt = &completed

	if !event.Succeeded() {
		// The vault stays degraded so the restore can be retried.
		event.State = models.RollbackActive
		event.Error = "restore steps failed: " + strings.Join(failedSteps(event.Steps), ", ")
		m.logAudit(ctx, ActionRestoreFailed, models.SeverityWarning, event)
		return RestoreResult{Event: copyEvent(event), Error: event.Error}
	}

	event.State = models.RollbackNormal
	m.setState(ctx, models.RollbackNormal, event)
	m.appendHistory(ctx, *event)
	m.logAudit(ctx, ActionRollbackRestored, models.SeverityInfo, event)
	m.notify(ctx, events.Notification{
		Kind:    events.NotifyRestored,
		Message: "Security features have been restored.",
		Actions: []string{events.ActionDismiss},
		EventID: event.ID,
		Reason:  models.ReasonRestoration,
	})
	m.logger.InfoContext(ctx, "security features restored", logging.EventID(event.ID))

	res := RestoreResult{Success: true, Event: copyEvent(event)}
	if opts.Restart {
		res.RestartScheduled = m.scheduleRestart(ctx, models.ReasonRestoration)
	}
	return res
}

// Status returns the current state and last event.
func (m *Machine) Status(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:        m.state,
		InRollback:   m.state == models.RollbackActive,
		LastEvent:    copyEvent(m.last),
		HistoryCount: len(m.history),
	}
}

// History returns up to HistoryLimit events, newest first.
func (m *Machine) History(ctx context.Context) []models.RollbackEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RollbackEvent, len(m.history))
	copy(out, m.history)
	return out
}

// Close stops pending restarts.
func (m *Machine) Close() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
}

func (m *Machine) setState(ctx context.Context, state models.RollbackState, event *models.RollbackEvent) {
	m.state = state
	m.last = event
	metrics.SetRollbackState(string(state), allStates)
	m.persistState(ctx)
}

func (m *Machine) persistState(ctx context.Context) {
	rec := models.RollbackStateRecord{State: m.state, Event: m.last}
	if err := m.storeJSON(ctx, kvstore.KeyRollbackState, rec); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist rollback state", logging.Error(err))
	}
}

func (m *Machine) appendHistory(ctx context.Context, event models.RollbackEvent) {
	history := make([]models.RollbackEvent, 0, HistoryLimit)
	history = append(history, event)
	history = append(history, m.history...)
	if len(history) > HistoryLimit {
		history = history[:HistoryLimit]
	}
	m.history = history
	if err := m.storeJSON(ctx, kvstore.KeyRollbackHistory, history); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist rollback history", logging.Error(err))
	}
}

func (m *Machine) loadJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Machine) storeJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return m.store.Set(ctx, key, string(b))
}

func (m *Machine) notify(ctx context.Context, note events.Notification) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, note); err != nil {
		m.logger.WarnContext(ctx, "failed to send rollback notification", logging.Error(err))
	}
}

func (m *Machine) logAudit(ctx context.Context, action, severity string, event *models.RollbackEvent) {
	if m.audit == nil {
		return
	}
	details := map[string]any{
		"event_id": event.ID,
		"reason":   event.Reason,
		"state":    string(event.State),
	}
	if event.Error != "" {
		details["error"] = event.Error
	}
	m.audit.Log(ctx, action, severity, details)
}

// scheduleRestart reports whether a restart was scheduled.
func (m *Machine) scheduleRestart(ctx context.Context, reason string) bool {
	if m.restarter == nil {
		m.logger.WarnContext(ctx, "restart requested but no restarter configured", logging.Reason(reason))
		return false
	}
	m.logger.WarnContext(ctx, "restart scheduled", logging.Reason(reason), slog.Duration("delay", m.delay))

	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	m.timers = append(m.timers, time.AfterFunc(m.delay, func() {
		m.restarter.Restart(reason)
	}))
	return true
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

func failedSteps(steps []models.StepResult) []string {
	var names []string
	for _, s := range steps {
		if !s.Success {
			names = append(names, s.Step)
		}
	}
	return names
}

func copyEvent(e *models.RollbackEvent) *models.RollbackEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Steps = append([]models.StepResult(nil), e.Steps...)
	return &c
}
