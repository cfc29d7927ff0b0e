package driver

import (
	"math/rand"

	"github.com/mavleo96/notary-doublespend/internal/models"
)

// BuildSchedule turns the transactions issued on each node into that node's spend
// schedule. One draw per transaction from a single seeded stream, in node order,
// decides whether the transaction gets a duplicate spend. Both spends of a
// duplicated transaction are flagged conflicting.
func BuildSchedule(issued [][]models.TransactionDigest, ratio float64, position models.ConflictPosition, seed int64) [][]models.SpendRequest {
	rng := rand.New(rand.NewSource(seed))

	schedule := make([][]models.SpendRequest, len(issued))
	for i, txns := range issued {
		requests := make([]models.SpendRequest, 0, len(txns))
		var duplicates []models.SpendRequest
		for _, tx := range txns {
			if rng.Float64() >= ratio {
				requests = append(requests, models.SpendRequest{Tx: tx})
				continue
			}
			req := models.SpendRequest{Tx: tx, Conflicting: true}
			requests = append(requests, req)
			if position == models.ConflictInterleaved {
				requests = append(requests, req)
			} else {
				duplicates = append(duplicates, req)
			}
		}
		schedule[i] = append(requests, duplicates...)
	}
	return schedule
}

// countConflicting returns the number of requests flagged conflicting
func countConflicting(requests []models.SpendRequest) int {
	n := 0
	for _, r := range requests {
		if r.Conflicting {
			n++
		}
	}
	return n
}
