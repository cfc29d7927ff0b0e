package notarisation

import (
	"slices"

	"github.com/mavleo96/notary-doublespend/internal/utils"
)

// Observation classifies one completed spend outcome
type Observation int

const (
	ObservedSuccess Observation = iota
	ObservedDoubleSpend
)

func (o Observation) String() string {
	if o == ObservedDoubleSpend {
		return "double spend"
	}
	return "ok"
}

// UnspentTx is a transaction that still owns states nobody was seen spending
type UnspentTx struct {
	TxID    string
	States  []string
	Credits int64
}

// Ledger is the per node view of which states were observed spent.
// It is owned by the consumer and is not safe for concurrent use.
type Ledger struct {
	spent   map[string]bool
	owner   map[string]string
	credits map[string]int64
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		spent:   make(map[string]bool),
		owner:   make(map[string]string),
		credits: make(map[string]int64),
	}
}

// Apply reconciles the states reported by one completed spend of txID.
// A state already marked spent and reported spent again makes the whole
// observation a double spend. A state reported unspent never clears an earlier
// spent mark. An observation that does not spend anything is credited
// speculatively so the credit can be taken back if its states stay unspent.
func (l *Ledger) Apply(txID string, states map[string]bool) Observation {
	violation := false
	spentAny := false
	for _, id := range utils.SortedKeys(states) {
		observedSpent := states[id]
		if _, known := l.owner[id]; !known {
			l.owner[id] = txID
		}
		switch {
		case l.spent[id] && observedSpent:
			violation = true
		case l.spent[id]:
			// spent by an earlier observation
		case observedSpent:
			l.spent[id] = true
			spentAny = true
		default:
			l.spent[id] = false
		}
	}

	if violation {
		return ObservedDoubleSpend
	}
	if !spentAny {
		l.credits[txID]++
	}
	return ObservedSuccess
}

// stateStatus reports whether the state was observed spent, and whether it was observed at all
func (l *Ledger) stateStatus(stateID string) (spent bool, known bool) {
	spent, known = l.spent[stateID]
	return spent, known
}

// Unspent groups the states still marked unspent by owning transaction, in
// transaction id order
func (l *Ledger) Unspent() []UnspentTx {
	byTx := make(map[string][]string)
	for _, id := range utils.SortedKeys(l.spent) {
		if spent, _ := l.stateStatus(id); spent {
			continue
		}
		txID := l.owner[id]
		byTx[txID] = append(byTx[txID], id)
	}

	out := make([]UnspentTx, 0, len(byTx))
	for _, txID := range utils.SortedKeys(byTx) {
		out = append(out, UnspentTx{
			TxID:    txID,
			States:  slices.Clone(byTx[txID]),
			Credits: l.credits[txID],
		})
	}
	return out
}
