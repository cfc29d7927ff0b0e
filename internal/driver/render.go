package driver

import (
	"fmt"
	"strings"

	"github.com/mavleo96/notary-doublespend/internal/models"
)

// SummaryLine formats the totals the way the final log line prints them
func SummaryLine(t models.Totals) string {
	return fmt.Sprintf("Notarisation complete. Total transactions: %d, Number successful: %d, "+
		"Number of double spends: %d, Number of failed spends: %d, Average flows per second: %.2f",
		t.RequestsSent, t.SuccessfulSpends, t.DoubleSpendViolations, t.FailedSpends, t.AverageThroughput)
}

// RenderReport renders a human readable summary of a run
func RenderReport(r *models.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s\n", r.RunID)
	fmt.Fprintf(&sb, "Started: %s, finished: %s\n", r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"), r.FinishedAt.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&sb, "Double spend ratio %.2f (%s mode), rng seed %d\n", r.DoubleSpendRatio, r.ConflictPosition, r.Seed)
	if r.Notary != "" {
		fmt.Fprintf(&sb, "Notary: %s\n", r.Notary)
	}
	fmt.Fprintf(&sb, "Schedule digest: %s\n", r.ScheduleDigest)
	sb.WriteString("\n")
	for _, n := range r.Nodes {
		if n.Result == nil {
			fmt.Fprintf(&sb, "  %s %s: excluded (%s)\n", n.Node.ID, n.Node.Address, n.Excluded)
			continue
		}
		fmt.Fprintf(&sb, "  %s %s: %s\n", n.Node.ID, n.Node.Address, n.Result)
	}
	sb.WriteString("\n")
	sb.WriteString(SummaryLine(r.Totals))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Completed nodes: %d/%d, exit code: %d\n", r.Totals.CompletedNodes, len(r.Nodes), r.ExitCode)
	return sb.String()
}
