package secure

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// IntegrityResult reports a digest and, when an expected hash was given,
// whether it matched.
type IntegrityResult struct {
	Valid      bool   `json:"valid"`
	ActualHash string `json:"actualHash,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ValidateDataIntegrity computes the SHA-256 digest of data's canonical form.
// Strings and byte slices digest their raw bytes; anything else is JSON
// encoded and canonicalised per RFC 8785. With an empty expectedHash the call
// only computes the digest and reports Valid.
func (e *Engine) ValidateDataIntegrity(data any, expectedHash string) IntegrityResult {
	return validateIntegrity(data, expectedHash)
}

func validateIntegrity(data any, expectedHash string) (res IntegrityResult) {
	defer func() {
		if r := recover(); r != nil {
			res = IntegrityResult{Error: "integrity computation failed"}
		}
	}()

	canonical, err := canonicalBytes(data)
	if err != nil {
		return IntegrityResult{Error: "integrity computation failed"}
	}
	sum := sha256.Sum256(canonical)
	actual := hex.EncodeToString(sum[:])

	if expectedHash == "" {
		return IntegrityResult{Valid: true, ActualHash: actual}
	}
	return IntegrityResult{
		Valid:      subtle.ConstantTimeCompare([]byte(actual), []byte(expectedHash)) == 1,
		ActualHash: actual,
	}
}

func canonicalBytes(data any) ([]byte, error) {
	switch v := data.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return jcs.Transform(v)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return jcs.Transform(raw)
}

// recordHash digests a stored plaintext. The JSON is decoded first so the
// digest matches ValidateDataIntegrity on the value the caller stored.
func recordHash(plain []byte) (string, error) {
	value, err := decodeValue(plain)
	if err != nil {
		return "", err
	}
	res := validateIntegrity(value, "")
	if res.Error != "" {
		return "", fmt.Errorf("%s", res.Error)
	}
	return res.ActualHash, nil
}

func decodeValue(plain []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}
