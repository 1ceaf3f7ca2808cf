package domain

// SyncCheckpoint is the single progress record of an account. It is only
// advanced after the notes of the scanned blocks are persisted.
type SyncCheckpoint struct {
	LastScannedHeight      uint64
	ChainTipHeight         uint64
	LastValidatedBlockHash []byte
}

// IsZero returns whether no block has ever been scanned.
func (c SyncCheckpoint) IsZero() bool {
	return c.LastScannedHeight == 0 && len(c.LastValidatedBlockHash) == 0
}
