package domain

// Balance is derived from the unspent notes on demand, never stored.
type Balance struct {
	// Total is the sum of all unspent notes.
	Total uint64
	// Verified is the sum of the unspent notes with enough confirmations.
	Verified uint64
	// Pending is Total minus Verified.
	Pending           uint64
	ChainTipHeight    uint64
	LastScannedHeight uint64
}

// ComputeBalance sums the values of the given unspent notes, partitioned by
// confirmation depth relative to tip.
func ComputeBalance(notes []Note, tip, confirmations uint64) Balance {
	var total, verified uint64
	for _, n := range notes {
		if n.Spent {
			continue
		}
		total += n.Value
		if tip >= confirmations && n.ConfirmedHeight <= tip-confirmations {
			verified += n.Value
		}
	}
	return Balance{
		Total:          total,
		Verified:       verified,
		Pending:        total - verified,
		ChainTipHeight: tip,
	}
}
