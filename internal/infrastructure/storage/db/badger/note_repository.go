package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const checkpointKey = "checkpoint"

func (c *chainCache) GetCheckpoint(
	ctx context.Context,
) (*domain.SyncCheckpoint, error) {
	var cp *domain.SyncCheckpoint
	err := c.store.Badger().View(func(txn *badger.Txn) error {
		var err error
		cp, err = c.getCheckpoint(txn)
		return err
	})
	return cp, err
}

func (c *chainCache) PutCheckpoint(
	ctx context.Context, checkpoint domain.SyncCheckpoint,
) error {
	return c.store.Badger().Update(func(txn *badger.Txn) error {
		return c.store.TxUpsert(txn, checkpointKey, &checkpoint)
	})
}

// ApplyScan stores the events and the checkpoint in the same transaction,
// hence the checkpoint can never get ahead of the notes.
func (c *chainCache) ApplyScan(
	ctx context.Context, events []domain.NoteEvent,
	checkpoint domain.SyncCheckpoint, mined ...domain.PendingTransaction,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.store.Badger().Update(func(txn *badger.Txn) error {
		for _, e := range events {
			switch e.Type {
			case domain.NoteCreated:
				note := e.Note
				if err := c.store.TxUpsert(txn, note.Nullifier, &note); err != nil {
					return err
				}
			case domain.NoteSpent:
				var note domain.Note
				if err := c.store.TxGet(txn, e.Nullifier, &note); err != nil {
					if errors.Is(err, badgerhold.ErrNotFound) {
						continue
					}
					return err
				}
				note.Spent = true
				note.SpentHeight = e.Height
				note.SpentTxHash = e.TxHash
				if err := c.store.TxUpdate(txn, note.Nullifier, &note); err != nil {
					return err
				}
			}
		}

		for _, tx := range mined {
			tx := tx
			if err := c.store.TxUpdate(txn, tx.TxID, &tx); err != nil {
				if errors.Is(err, badgerhold.ErrNotFound) {
					return domain.ErrPendingTxNotFound
				}
				return err
			}
		}

		return c.store.TxUpsert(txn, checkpointKey, &checkpoint)
	})
}

// Rewind drops blocks and notes above toHeight, restores notes spent above
// it, moves mined pending txs back to submitted and resets the checkpoint.
func (c *chainCache) Rewind(ctx context.Context, toHeight uint64) error {
	return c.store.Badger().Update(func(txn *badger.Txn) error {
		if _, err := deleteBlocksAbove(txn, toHeight); err != nil {
			return err
		}

		var created []domain.Note
		if err := c.store.TxFind(
			txn, &created, badgerhold.Where("ConfirmedHeight").Gt(toHeight),
		); err != nil {
			return err
		}
		for _, n := range created {
			if err := c.store.TxDelete(txn, n.Nullifier, domain.Note{}); err != nil {
				return err
			}
		}

		var spent []domain.Note
		if err := c.store.TxFind(
			txn, &spent,
			badgerhold.Where("Spent").Eq(true).And("SpentHeight").Gt(toHeight),
		); err != nil {
			return err
		}
		for _, n := range spent {
			n.Spent = false
			n.SpentHeight = 0
			n.SpentTxHash = nil
			if err := c.store.TxUpdate(txn, n.Nullifier, &n); err != nil {
				return err
			}
		}

		var mined []domain.PendingTransaction
		if err := c.store.TxFind(
			txn, &mined,
			badgerhold.Where("Status").Eq(domain.TxMined).
				And("MinedHeight").Gt(toHeight),
		); err != nil {
			return err
		}
		for _, tx := range mined {
			tx.Status = domain.TxSubmitted
			tx.MinedHeight = 0
			if err := c.store.TxUpdate(txn, tx.TxID, &tx); err != nil {
				return err
			}
		}

		cp, err := c.getCheckpoint(txn)
		if err != nil {
			return err
		}
		if cp.LastScannedHeight > toHeight {
			cp.LastScannedHeight = toHeight
		}
		cp.LastValidatedBlockHash = nil
		block, err := getBlock(txn, cp.LastScannedHeight)
		if err != nil && !errors.Is(err, domain.ErrBlockNotFound) {
			return err
		}
		if block != nil {
			cp.LastValidatedBlockHash = block.Hash
		}
		return c.store.TxUpsert(txn, checkpointKey, cp)
	})
}

func (c *chainCache) UnspentNullifiers(
	ctx context.Context,
) (domain.NullifierSet, error) {
	notes, err := c.ListNotes(ctx, true)
	if err != nil {
		return nil, err
	}

	set := domain.NewNullifierSet()
	for _, n := range notes {
		set.Add(n.Nullifier)
	}
	return set, nil
}

func (c *chainCache) ListNotes(
	ctx context.Context, unspentOnly bool,
) ([]domain.Note, error) {
	var notes []domain.Note
	err := c.store.Badger().View(func(txn *badger.Txn) error {
		var err error
		notes, err = c.findNotes(txn, unspentOnly)
		return err
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// GetBalance reads checkpoint and notes in the same read transaction, so
// the result is always consistent with a committed block.
func (c *chainCache) GetBalance(
	ctx context.Context, confirmations uint64,
) (*domain.Balance, error) {
	var balance domain.Balance
	err := c.store.Badger().View(func(txn *badger.Txn) error {
		cp, err := c.getCheckpoint(txn)
		if err != nil {
			return err
		}
		notes, err := c.findNotes(txn, true)
		if err != nil {
			return err
		}

		balance = domain.ComputeBalance(notes, cp.ChainTipHeight, confirmations)
		balance.LastScannedHeight = cp.LastScannedHeight
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (c *chainCache) getCheckpoint(
	txn *badger.Txn,
) (*domain.SyncCheckpoint, error) {
	var cp domain.SyncCheckpoint
	if err := c.store.TxGet(txn, checkpointKey, &cp); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return &domain.SyncCheckpoint{}, nil
		}
		return nil, err
	}
	return &cp, nil
}

func (c *chainCache) findNotes(
	txn *badger.Txn, unspentOnly bool,
) ([]domain.Note, error) {
	var query *badgerhold.Query
	if unspentOnly {
		query = badgerhold.Where("Spent").Eq(false)
	}

	notes := make([]domain.Note, 0)
	if err := c.store.TxFind(txn, &notes, query); err != nil {
		return nil, err
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Position < notes[j].Position
	})
	return notes, nil
}
