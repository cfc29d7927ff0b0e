package driver

import (
	"github.com/mavleo96/notary-doublespend/internal/models"
	"github.com/mavleo96/notary-doublespend/internal/utils"
)

// Process exit codes
const (
	ExitClean      = 0
	ExitViolations = 1
	ExitFatal      = 2
)

// Aggregate sums the results of the nodes that completed and derives the exit
// code. An excluded node makes the run unclean.
func Aggregate(nodes []models.NodeReport) (models.Totals, int) {
	var totals models.Totals
	var throughputs []float64
	exitCode := ExitClean

	for _, n := range nodes {
		if n.Result == nil {
			exitCode = ExitViolations
			continue
		}
		totals.CompletedNodes++
		totals.RequestsSent += n.Result.RequestsSent
		totals.SuccessfulSpends += n.Result.SuccessfulSpends
		totals.DoubleSpendViolations += n.Result.DoubleSpendViolations
		totals.FailedSpends += n.Result.FailedSpends
		throughputs = append(throughputs, n.Result.ThroughputPerSecond)
		if !n.Result.Clean() {
			exitCode = ExitViolations
		}
	}
	totals.AverageThroughput = utils.RoundHalfUp(utils.Mean(throughputs), 2)
	return totals, exitCode
}
