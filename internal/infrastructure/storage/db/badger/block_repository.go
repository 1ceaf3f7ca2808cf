package dbbadger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"

	"github.com/dgraph-io/badger/v3"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

var blockKeyPrefix = []byte("blk/")

func blockKey(height uint64) []byte {
	key := make([]byte, len(blockKeyPrefix)+8)
	copy(key, blockKeyPrefix)
	binary.BigEndian.PutUint64(key[len(blockKeyPrefix):], height)
	return key
}

func heightFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(blockKeyPrefix):])
}

func (c *chainCache) PutBlocks(
	ctx context.Context, blocks []domain.CompactBlock,
) error {
	if len(blocks) <= 0 {
		return nil
	}
	if err := domain.CheckContinuity(blocks); err != nil {
		return err
	}

	return c.store.Badger().Update(func(txn *badger.Txn) error {
		first := blocks[0]
		if first.Height > 0 {
			prev, err := getBlock(txn, first.Height-1)
			if err != nil && !errors.Is(err, domain.ErrBlockNotFound) {
				return err
			}
			if prev != nil && !bytes.Equal(prev.Hash, first.PrevHash) {
				return &domain.ChainDiscontinuityError{
					Height:   first.Height,
					Expected: prev.Hash,
					Got:      first.PrevHash,
				}
			}
		}

		for _, b := range blocks {
			if err := ctx.Err(); err != nil {
				return err
			}

			existing, err := getBlock(txn, b.Height)
			if err != nil && !errors.Is(err, domain.ErrBlockNotFound) {
				return err
			}
			if existing != nil {
				if bytes.Equal(existing.Hash, b.Hash) {
					continue
				}
				return &domain.ChainDiscontinuityError{
					Height:   b.Height,
					Expected: existing.Hash,
					Got:      b.Hash,
				}
			}

			raw, err := badgerhold.DefaultEncode(&b)
			if err != nil {
				return err
			}
			if err := txn.Set(blockKey(b.Height), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *chainCache) GetBlocks(
	ctx context.Context, from, to uint64,
) ([]domain.CompactBlock, error) {
	blocks := make([]domain.CompactBlock, 0)
	if to < from {
		return blocks, nil
	}

	err := c.store.Badger().View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   100,
			Prefix:         blockKeyPrefix,
		})
		defer it.Close()

		for it.Seek(blockKey(from)); it.ValidForPrefix(blockKeyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			if heightFromKey(item.Key()) > to {
				break
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			b, err := decodeBlock(raw)
			if err != nil {
				return err
			}
			blocks = append(blocks, *b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *chainCache) GetBlock(
	ctx context.Context, height uint64,
) (*domain.CompactBlock, error) {
	var block *domain.CompactBlock
	err := c.store.Badger().View(func(txn *badger.Txn) error {
		b, err := getBlock(txn, height)
		block = b
		return err
	})
	return block, err
}

func (c *chainCache) LatestBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.store.Badger().View(func(txn *badger.Txn) error {
		height = latestBlockHeight(txn)
		return nil
	})
	return height, err
}

func latestBlockHeight(txn *badger.Txn) uint64 {
	it := txn.NewIterator(badger.IteratorOptions{
		Reverse: true,
		Prefix:  blockKeyPrefix,
	})
	defer it.Close()

	it.Seek(blockKey(^uint64(0)))
	if !it.ValidForPrefix(blockKeyPrefix) {
		return 0
	}
	return heightFromKey(it.Item().Key())
}

func getBlock(txn *badger.Txn, height uint64) (*domain.CompactBlock, error) {
	item, err := txn.Get(blockKey(height))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrBlockNotFound
		}
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeBlock(raw)
}

// deleteBlocksAbove removes every cached block with height > height.
func deleteBlocksAbove(txn *badger.Txn, height uint64) (int, error) {
	keys := make([][]byte, 0)

	it := txn.NewIterator(badger.IteratorOptions{Prefix: blockKeyPrefix})
	for it.Seek(blockKey(height + 1)); it.ValidForPrefix(blockKeyPrefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

func decodeBlock(raw []byte) (*domain.CompactBlock, error) {
	b := &domain.CompactBlock{}
	if err := decode(raw, b); err != nil {
		return nil, err
	}
	return b, nil
}
