package domain

import "context"

// ChainCache is the durable per-account store of compact blocks, notes,
// progress checkpoint and pending transactions. Writes are expected from a
// single goroutine, reads may happen concurrently and only see committed
// state.
type ChainCache interface {
	// PutBlocks appends the given contiguous blocks. It returns a
	// *ChainDiscontinuityError if they do not link to the cached ones.
	PutBlocks(ctx context.Context, blocks []CompactBlock) error
	// GetBlocks returns the cached blocks in [from, to] in height order.
	GetBlocks(ctx context.Context, from, to uint64) ([]CompactBlock, error)
	// GetBlock returns ErrBlockNotFound if no block is cached at height.
	GetBlock(ctx context.Context, height uint64) (*CompactBlock, error)
	// LatestBlockHeight returns 0 for an empty cache.
	LatestBlockHeight(ctx context.Context) (uint64, error)
	// Rewind drops every block and note above toHeight, restores notes
	// spent above it, and moves the checkpoint back to toHeight.
	Rewind(ctx context.Context, toHeight uint64) error
	// Reset drops everything stored. No record is decoded, so it also
	// recovers a corrupted store.
	Reset(ctx context.Context) error

	GetCheckpoint(ctx context.Context) (*SyncCheckpoint, error)
	PutCheckpoint(ctx context.Context, checkpoint SyncCheckpoint) error
	// ApplyScan persists the note events, the given mined pending txs and
	// then the checkpoint, atomically.
	ApplyScan(
		ctx context.Context, events []NoteEvent, checkpoint SyncCheckpoint,
		mined ...PendingTransaction,
	) error

	UnspentNullifiers(ctx context.Context) (NullifierSet, error)
	ListNotes(ctx context.Context, unspentOnly bool) ([]Note, error)
	// GetBalance reads notes and checkpoint from the same snapshot.
	GetBalance(ctx context.Context, confirmations uint64) (*Balance, error)

	AddPendingTransaction(ctx context.Context, tx PendingTransaction) error
	UpdatePendingTransaction(ctx context.Context, tx PendingTransaction) error
	ListPendingTransactions(ctx context.Context) ([]PendingTransaction, error)

	Close() error
}
