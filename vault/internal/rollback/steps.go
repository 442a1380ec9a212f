package rollback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/vault/internal/kvstore"
	"github.com/telhawk-systems/cardvault/vault/internal/metrics"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

// Restore steps.
const (
	StepResetSecurityFeatures = "reset_security_features"
	StepClearCompatibility    = "clear_compatibility_mode"
)

type step struct {
	name string
	run  func(ctx context.Context) error
}

// compatibilityRecord is stored under kvstore.KeyCompatibilityMode.
type compatibilityRecord struct {
	Enabled bool      `json:"enabled"`
	Since   time.Time `json:"since"`
	Reason  string    `json:"reason"`
}

type advancedFeaturesRecord struct {
	Enabled bool `json:"enabled"`
}

// remediation returns the ordered degrade steps. Every step is idempotent.
func (m *Machine) remediation(reason string) []step {
	return []step{
		{models.StepDisableSecurityFeatures, m.features.DisableAll},
		{models.StepRemoveSecurityData, m.removeSecurityData},
		{models.StepEnableCompatibilityMode, func(ctx context.Context) error {
			return m.enableCompatibilityMode(ctx, reason)
		}},
		{models.StepClearSecurityCaches, m.clearSecurityCaches},
	}
}

func (m *Machine) restoration() []step {
	return []step{
		{StepResetSecurityFeatures, m.features.Reset},
		{StepClearCompatibility, m.clearCompatibilityMode},
	}
}

// runSteps runs every step regardless of earlier failures and records each
// outcome. Applied steps are never undone.
func (m *Machine) runSteps(ctx context.Context, steps []step) []models.StepResult {
	results := make([]models.StepResult, 0, len(steps))
	for _, s := range steps {
		start := time.Now()
		err := safeRun(ctx, s.run)
		metrics.RollbackStepDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())

		res := models.StepResult{Step: s.name, Success: err == nil}
		if err != nil {
			res.Error = err.Error()
			m.logger.ErrorContext(ctx, "rollback step failed", logging.Step(s.name), logging.Error(err))
		}
		results = append(results, res)
	}
	return results
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (m *Machine) removeSecurityData(ctx context.Context) error {
	var errs []error
	for _, key := range kvstore.SecurityDataKeys {
		if err := m.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Machine) enableCompatibilityMode(ctx context.Context, reason string) error {
	compat, err := json.Marshal(compatibilityRecord{Enabled: true, Since: m.now().UTC(), Reason: reason})
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, kvstore.KeyCompatibilityMode, string(compat)); err != nil {
		return fmt.Errorf("set compatibility mode: %w", err)
	}
	advanced, _ := json.Marshal(advancedFeaturesRecord{Enabled: false})
	if err := m.store.Set(ctx, kvstore.KeyAdvancedFeatures, string(advanced)); err != nil {
		return fmt.Errorf("set advanced features: %w", err)
	}
	return nil
}

func (m *Machine) clearSecurityCaches(ctx context.Context) error {
	keys, err := m.store.List(ctx, kvstore.PrefixSecurityCache)
	if err != nil {
		return fmt.Errorf("list security caches: %w", err)
	}
	var errs []error
	for _, key := range keys {
		if err := m.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Machine) clearCompatibilityMode(ctx context.Context) error {
	var errs []error
	for _, key := range []string{kvstore.KeyCompatibilityMode, kvstore.KeyAdvancedFeatures} {
		if err := m.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
