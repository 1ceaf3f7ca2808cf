package ports

import (
	"context"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
)

// BlockSource is the remote endpoint serving compact blocks. Every method
// must return as soon as ctx is canceled.
type BlockSource interface {
	// GetLatestHeight returns the height of the chain tip.
	GetLatestHeight(ctx context.Context) (uint64, error)
	// GetBlockRange returns the blocks in [start, end] in height order.
	GetBlockRange(ctx context.Context, start, end uint64) ([]domain.CompactBlock, error)
	// SubmitTransaction broadcasts the raw tx.
	SubmitTransaction(ctx context.Context, raw []byte) (*SubmitResult, error)
	Close() error
}

// SubmitResult is the answer of the remote endpoint to a broadcast.
type SubmitResult struct {
	ErrorCode    int32
	ErrorMessage string
}

// Accepted ...
func (r SubmitResult) Accepted() bool {
	return r.ErrorCode == 0
}
