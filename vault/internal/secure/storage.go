package secure

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/vault/internal/kvstore"
	"github.com/telhawk-systems/cardvault/vault/internal/metrics"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

// StorageOptions control how a value is protected at rest.
type StorageOptions struct {
	Encrypt bool
	// Expiry is the record lifetime; zero means no expiry.
	Expiry    time.Duration
	Integrity bool
}

// StorageResult is the outcome of SecureStorage.
type StorageResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RetrieveOptions control how a stored record is read back.
type RetrieveOptions struct {
	Decrypt         bool
	VerifyIntegrity bool
}

// RetrieveResult is the outcome of SecureRetrieve. Data holds the decoded
// value; an encrypted record read without Decrypt yields its base64
// ciphertext.
type RetrieveResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	raw json.RawMessage
}

// Unmarshal decodes the retrieved value into v.
func (r RetrieveResult) Unmarshal(v any) error {
	if !r.Success {
		return errors.New(r.Error)
	}
	return json.Unmarshal(r.raw, v)
}

func storageFailure(err error) StorageResult {
	return StorageResult{Error: err.Error()}
}

func retrieveFailure(err error) RetrieveResult {
	return RetrieveResult{Error: err.Error()}
}

// SecureStorage authorizes a storage write, then persists value under key
// with the requested protections.
func (e *Engine) SecureStorage(ctx context.Context, key string, value any, opts StorageOptions) StorageResult {
	start := e.now()
	res := e.secureStorage(ctx, key, value, opts)
	observe("store", res.Success, start, e.now())
	return res
}

func (e *Engine) secureStorage(ctx context.Context, key string, value any, opts StorageOptions) StorageResult {
	if !e.authorize(ctx, OperationWrite) {
		e.logger.WarnContext(ctx, "storage write denied", logging.Key(key))
		return storageFailure(ErrAccessDenied)
	}
	if key == "" {
		return storageFailure(ErrInvalidKey)
	}

	plain, err := json.Marshal(value)
	if err != nil {
		e.logFailure(ctx, "encode value", key, err)
		return storageFailure(ErrOperationFailed)
	}

	features := e.features.Snapshot()
	now := e.now()
	record := models.SecureRecord{
		Metadata: models.RecordMetadata{
			Timestamp:    now.UTC(),
			Encrypted:    opts.Encrypt && features.Encryption,
			HasIntegrity: opts.Integrity && features.Integrity,
		},
	}
	if opts.Expiry > 0 {
		expiry := now.Add(opts.Expiry).UTC()
		record.Metadata.Expiry = &expiry
	}
	if record.Metadata.HasIntegrity {
		hash, err := recordHash(plain)
		if err != nil {
			e.logFailure(ctx, "hash value", key, err)
			return storageFailure(ErrOperationFailed)
		}
		record.Metadata.Hash = hash
	}

	record.Value = plain
	if record.Metadata.Encrypted {
		ct, err := e.encrypt(plain)
		if err != nil {
			e.logFailure(ctx, "encrypt value", key, err)
			return storageFailure(ErrOperationFailed)
		}
		record.Value, _ = json.Marshal(ct)
	}

	b, err := json.Marshal(record)
	if err != nil {
		e.logFailure(ctx, "encode record", key, err)
		return storageFailure(ErrOperationFailed)
	}
	if err := e.store.Set(ctx, key, string(b)); err != nil {
		e.logFailure(ctx, "persist record", key, err)
		return storageFailure(ErrOperationFailed)
	}

	e.logger.DebugContext(ctx, "record stored",
		logging.Key(key),
		slog.Bool("encrypted", record.Metadata.Encrypted),
		slog.Bool("integrity", record.Metadata.HasIntegrity))
	return StorageResult{Success: true}
}

// SecureRetrieve authorizes a storage read, then loads, expires, decrypts and
// verifies the record under key.
func (e *Engine) SecureRetrieve(ctx context.Context, key string, opts RetrieveOptions) RetrieveResult {
	start := e.now()
	res := e.secureRetrieve(ctx, key, opts)
	observe("retrieve", res.Success, start, e.now())
	return res
}

func (e *Engine) secureRetrieve(ctx context.Context, key string, opts RetrieveOptions) RetrieveResult {
	if !e.authorize(ctx, OperationRead) {
		e.logger.WarnContext(ctx, "storage read denied", logging.Key(key))
		return retrieveFailure(ErrAccessDenied)
	}

	raw, err := e.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return retrieveFailure(ErrNotFound)
	}
	if err != nil {
		e.logFailure(ctx, "load record", key, err)
		return retrieveFailure(ErrOperationFailed)
	}

	var record models.SecureRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		e.logFailure(ctx, "decode record", key, err)
		return retrieveFailure(ErrOperationFailed)
	}

	if record.IsExpired(e.now()) {
		if err := e.store.Delete(ctx, key); err != nil {
			e.logFailure(ctx, "evict expired record", key, err)
		}
		return retrieveFailure(ErrExpired)
	}

	plain := []byte(record.Value)
	decrypted := !record.Metadata.Encrypted
	if record.Metadata.Encrypted && opts.Decrypt {
		var ct string
		if err := json.Unmarshal(record.Value, &ct); err != nil {
			e.logFailure(ctx, "decode ciphertext", key, err)
			return retrieveFailure(ErrOperationFailed)
		}
		plain, err = e.decrypt(ct)
		if err != nil {
			e.logFailure(ctx, "decrypt record", key, err)
			return retrieveFailure(ErrOperationFailed)
		}
		decrypted = true
	}

	if opts.VerifyIntegrity && record.Metadata.HasIntegrity {
		// Ciphertext cannot be checked against a plaintext digest.
		if !decrypted {
			e.integrityFailure(ctx, key, "encrypted record read without decryption")
			return retrieveFailure(ErrIntegrity)
		}
		actual, err := recordHash(plain)
		if err != nil || subtle.ConstantTimeCompare([]byte(actual), []byte(record.Metadata.Hash)) != 1 {
			e.integrityFailure(ctx, key, "hash mismatch")
			return retrieveFailure(ErrIntegrity)
		}
	}

	var data any
	if err := json.Unmarshal(plain, &data); err != nil {
		e.logFailure(ctx, "decode value", key, err)
		return retrieveFailure(ErrOperationFailed)
	}
	return RetrieveResult{Success: true, Data: data, raw: plain}
}

func (e *Engine) integrityFailure(ctx context.Context, key, reason string) {
	metrics.IntegrityFailures.Inc()
	e.SecureLog(ctx, LevelSecurity, "integrity check failed", map[string]any{
		"key":    key,
		"reason": reason,
	})
}

// logFailure records the internal cause of a generic failure. The cause is
// sanitized before it reaches the log stream.
func (e *Engine) logFailure(ctx context.Context, op, key string, err error) {
	e.SecureLog(ctx, LevelError, fmt.Sprintf("secure storage: %s failed", op), map[string]any{
		"key":   key,
		"error": err.Error(),
	})
}

func observe(operation string, success bool, start, end time.Time) {
	result := metrics.ResultSuccess
	if !success {
		result = metrics.ResultFailure
	}
	metrics.SecureOperations.WithLabelValues(operation, result).Inc()
	metrics.SecureOperationDuration.WithLabelValues(operation).Observe(end.Sub(start).Seconds())
}
