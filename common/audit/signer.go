// Package audit provides tamper-evidence for audit records.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Signer computes HMAC-SHA256 signatures over audit records.
type Signer struct {
	secretKey []byte
}

func NewSigner(secretKey string) *Signer {
	return &Signer{
		secretKey: []byte(secretKey),
	}
}

// Sign returns the hex signature of an audit record. Fields are separated by
// a NUL byte so that shifting bytes between adjacent fields changes the MAC.
func (s *Signer) Sign(entryID string, timestamp time.Time, action string, data []byte) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(entryID))
	h.Write([]byte{0})
	h.Write([]byte(timestamp.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Signer) Verify(entryID string, timestamp time.Time, action string, data []byte, signature string) bool {
	expected := s.Sign(entryID, timestamp, action, data)
	return hmac.Equal([]byte(expected), []byte(signature))
}
