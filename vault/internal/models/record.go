package models

import (
	"encoding/json"
	"time"
)

// SecureRecord is the envelope persisted under a caller's key.
type SecureRecord struct {
	Value    json.RawMessage `json:"value"`
	Metadata RecordMetadata  `json:"metadata"`
}

// RecordMetadata describes how Value was produced.
type RecordMetadata struct {
	Timestamp    time.Time  `json:"timestamp"`
	Encrypted    bool       `json:"encrypted"`
	HasIntegrity bool       `json:"hasIntegrity"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	// Hash is the SHA-256 hex digest of the plaintext canonical form.
	Hash string `json:"hash,omitempty"`
}

// IsExpired reports whether the record has an expiry strictly before now.
func (r *SecureRecord) IsExpired(now time.Time) bool {
	return r.Metadata.Expiry != nil && now.After(*r.Metadata.Expiry)
}
