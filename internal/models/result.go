package models

import (
	"fmt"
	"sync/atomic"
)

// NodeResult holds the counters of one node task.
// Producer, consumer and the progress monitor touch it concurrently, so every
// counter is atomic.
type NodeResult struct {
	requestsSent          atomic.Int64
	successfulSpends      atomic.Int64
	doubleSpendViolations atomic.Int64
	failedSpends          atomic.Int64
	throughput            atomic.Uint64 // hundredths of flows per second
}

// NodeResultSnapshot is an immutable copy of a NodeResult
type NodeResultSnapshot struct {
	RequestsSent          int64   `json:"requests_sent"`
	SuccessfulSpends      int64   `json:"successful_spends"`
	DoubleSpendViolations int64   `json:"double_spend_violations"`
	FailedSpends          int64   `json:"failed_spends"`
	ThroughputPerSecond   float64 `json:"throughput_per_second"`
}

func (r *NodeResult) IncSent()        { r.requestsSent.Add(1) }
func (r *NodeResult) IncSuccessful()  { r.successfulSpends.Add(1) }
func (r *NodeResult) IncDoubleSpend() { r.doubleSpendViolations.Add(1) }
func (r *NodeResult) IncFailed()      { r.failedSpends.Add(1) }

// RevokeSuccessful takes back up to n successful spend credits.
// The counter never goes below zero. It returns the number actually revoked.
func (r *NodeResult) RevokeSuccessful(n int64) int64 {
	for {
		current := r.successfulSpends.Load()
		take := min(n, current)
		if take <= 0 {
			return 0
		}
		if r.successfulSpends.CompareAndSwap(current, current-take) {
			return take
		}
	}
}

// SetThroughput stores the throughput, which must already be rounded to two decimals
func (r *NodeResult) SetThroughput(perSecond float64) {
	r.throughput.Store(uint64(perSecond*100 + 0.5))
}

func (r *NodeResult) Sent() int64 { return r.requestsSent.Load() }

// Responses is the number of spend outcomes processed so far
func (r *NodeResult) Responses() int64 {
	return r.successfulSpends.Load() + r.doubleSpendViolations.Load() + r.failedSpends.Load()
}

// Snapshot copies the current counter values
func (r *NodeResult) Snapshot() NodeResultSnapshot {
	return NodeResultSnapshot{
		RequestsSent:          r.requestsSent.Load(),
		SuccessfulSpends:      r.successfulSpends.Load(),
		DoubleSpendViolations: r.doubleSpendViolations.Load(),
		FailedSpends:          r.failedSpends.Load(),
		ThroughputPerSecond:   float64(r.throughput.Load()) / 100,
	}
}

func (s NodeResultSnapshot) String() string {
	return fmt.Sprintf("Num sent: %d, Num ok: %d, Num double spends: %d, Num failed spends: %d, Flows per second: %.2f",
		s.RequestsSent, s.SuccessfulSpends, s.DoubleSpendViolations, s.FailedSpends, s.ThroughputPerSecond)
}

// Clean reports whether the node saw neither double spends nor failed spends
func (s NodeResultSnapshot) Clean() bool {
	return s.DoubleSpendViolations == 0 && s.FailedSpends == 0
}
