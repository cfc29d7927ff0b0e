package database

import (
	"cmp"
	"slices"
)

func sortSummaries(summaries []ReportSummary) {
	slices.SortStableFunc(summaries, func(a, b ReportSummary) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID, b.RunID)
	})
}
