package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OperationHandle identifies one in-flight remote flow
type OperationHandle string

// OutcomeStatus is the state of a remote flow as reported by the node
type OutcomeStatus int

const (
	StatusNotStarted OutcomeStatus = iota
	StatusRunning
	StatusFailed
	StatusCompleted
)

var statusNames = map[OutcomeStatus]string{
	StatusNotStarted: "NONE",
	StatusRunning:    "RUNNING",
	StatusFailed:     "FAILED",
	StatusCompleted:  "COMPLETED",
}

func (s OutcomeStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OutcomeStatus(%d)", int(s))
}

// IsTerminal reports whether no further polling can change the status
func (s OutcomeStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusCompleted
}

// ParseOutcomeStatus maps the wire name of a status
func ParseOutcomeStatus(s string) (OutcomeStatus, error) {
	for status, name := range statusNames {
		if strings.EqualFold(name, s) {
			return status, nil
		}
	}
	return StatusNotStarted, fmt.Errorf("unknown flow status %q", s)
}

// ExceptionDigest is the failure detail reported for a failed flow
type ExceptionDigest struct {
	ExceptionType string `json:"exceptionType"`
	Message       string `json:"message"`
}

func (d *ExceptionDigest) String() string {
	if d == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s: %s", d.ExceptionType, d.Message)
}

// Outcome is the last known state of a remote flow.
// ResultPayload is set only for StatusCompleted, Failure only for StatusFailed.
type Outcome struct {
	Status        OutcomeStatus
	ResultPayload json.RawMessage
	Failure       *ExceptionDigest
}

// Decode unmarshals the result payload of a completed outcome into v
func (o Outcome) Decode(v any) error {
	if o.Status != StatusCompleted {
		return fmt.Errorf("cannot decode result of flow with status %s", o.Status)
	}
	if len(o.ResultPayload) == 0 {
		return fmt.Errorf("completed flow has an empty result payload")
	}
	return json.Unmarshal(o.ResultPayload, v)
}
