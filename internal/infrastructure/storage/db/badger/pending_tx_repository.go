package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

func (c *chainCache) AddPendingTransaction(
	ctx context.Context, tx domain.PendingTransaction,
) error {
	if err := c.store.Insert(tx.TxID, &tx); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrPendingTxAlreadyExists
		}
		return err
	}
	return nil
}

func (c *chainCache) UpdatePendingTransaction(
	ctx context.Context, tx domain.PendingTransaction,
) error {
	if err := c.store.Update(tx.TxID, &tx); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.ErrPendingTxNotFound
		}
		return err
	}
	return nil
}

func (c *chainCache) ListPendingTransactions(
	ctx context.Context,
) ([]domain.PendingTransaction, error) {
	txs := make([]domain.PendingTransaction, 0)
	if err := c.store.Find(&txs, nil); err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt < txs[j].CreatedAt
	})
	return txs, nil
}
