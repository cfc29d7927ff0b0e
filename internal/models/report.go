package models

import "time"

// NodeReport is the outcome of one node in a run. Result is nil when the node
// was excluded from aggregation, in which case Excluded holds the reason.
type NodeReport struct {
	Node     Node                `json:"node"`
	Result   *NodeResultSnapshot `json:"result,omitempty"`
	Excluded string              `json:"excluded,omitempty"`
}

// Totals aggregates the results of all completed nodes
type Totals struct {
	RequestsSent          int64   `json:"requests_sent"`
	SuccessfulSpends      int64   `json:"successful_spends"`
	DoubleSpendViolations int64   `json:"double_spend_violations"`
	FailedSpends          int64   `json:"failed_spends"`
	AverageThroughput     float64 `json:"average_throughput"`
	CompletedNodes        int     `json:"completed_nodes"`
}

// Report is the final verdict of a scenario run
type Report struct {
	RunID            string       `json:"run_id"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
	Notary           string       `json:"notary,omitempty"`
	DoubleSpendRatio float64      `json:"double_spend_ratio"`
	ConflictPosition string       `json:"conflict_position"`
	Seed             int64        `json:"seed"`
	ScheduleDigest   string       `json:"schedule_digest"`
	Nodes            []NodeReport `json:"nodes"`
	Totals           Totals       `json:"totals"`
	ExitCode         int          `json:"exit_code"`
}
