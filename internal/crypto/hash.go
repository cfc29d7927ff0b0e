package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DigestAny hashes the JSON encoding of any message
func DigestAny(msg any) ([]byte, error) {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message for digest: %w", err)
	}
	digest := sha256.Sum256(msgBytes)
	return digest[:], nil
}

// ScheduleDigest fingerprints a spend schedule so two runs with the same seed can
// be compared
func ScheduleDigest(schedule any) (string, error) {
	digest, err := DigestAny(schedule)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest), nil
}
