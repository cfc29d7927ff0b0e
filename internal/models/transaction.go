package models

import (
	"fmt"
	"strings"
)

// TransactionDigest identifies an issued transaction and its output states.
// It is produced by the issuance phase and never mutated afterwards.
type TransactionDigest struct {
	TxID       string   `json:"txId"`
	Outputs    []string `json:"outputs"`
	Signatures []string `json:"signatures"`
}

// SpendRequest pairs an issued transaction with whether the spend is expected to conflict
type SpendRequest struct {
	Tx          TransactionDigest `json:"tx"`
	Conflicting bool              `json:"isConflicting"`
}

// String returns a compact representation used in logs
func (r SpendRequest) String() string {
	return fmt.Sprintf("(%s, conflicting=%t)", r.Tx.TxID, r.Conflicting)
}

// SpendResult is the payload of a completed spend flow: every state consumed by
// the spend transaction and whether the notary let it through.
type SpendResult struct {
	StateIDsAndStatus map[string]bool `json:"stateIdsAndStatus"`
}

// ConflictPosition governs where duplicate spends are placed in a node schedule
type ConflictPosition int

const (
	// ConflictEnd appends duplicates after all initial spends, so they usually hit
	// an already spent state.
	ConflictEnd ConflictPosition = iota
	// ConflictInterleaved places each duplicate right after its original, so both
	// race for the same unspent state.
	ConflictInterleaved
)

func (p ConflictPosition) String() string {
	switch p {
	case ConflictEnd:
		return "end"
	case ConflictInterleaved:
		return "interleaved"
	default:
		return fmt.Sprintf("ConflictPosition(%d)", int(p))
	}
}

// ParseConflictPosition parses "end" or "interleaved", ignoring case
func ParseConflictPosition(s string) (ConflictPosition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "end":
		return ConflictEnd, nil
	case "interleaved":
		return ConflictInterleaved, nil
	default:
		return ConflictEnd, fmt.Errorf("invalid conflict position %q: must be one of end, interleaved", s)
	}
}
