// Package fingerprint computes deterministic digests over stage request
// payloads. Digests are used as cache keys: equal payloads must hash
// identically across processes and runs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash returns the SHA-256 hex digest of the canonical JSON serialization
// of v. encoding/json sorts map keys, so semantically identical payloads
// built in different key orders produce the same digest. Slice order is
// significant and preserved.
func Hash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashText digests optional free text such as an example format or squad
// context block. Empty text hashes to the literal "none" so that absence is
// distinguishable from any real content.
func HashText(s string) string {
	if s == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
