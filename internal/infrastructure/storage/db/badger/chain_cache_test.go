package dbbadger_test

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	dbbadger "github.com/shielded-wallet/zsyncd/internal/infrastructure/storage/db/badger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestPutGetBlocks(t *testing.T) {
	cache := newTestCache(t)
	blocks := makeChain(100, 6, nil, "a")

	require.NoError(t, cache.PutBlocks(ctx, blocks))

	got, err := cache.GetBlocks(ctx, 100, 105)
	require.NoError(t, err)
	require.Len(t, got, len(blocks))
	for i := range blocks {
		require.Equal(t, blocks[i], got[i])
	}

	got, err = cache.GetBlocks(ctx, 102, 103)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(102), got[0].Height)

	got, err = cache.GetBlocks(ctx, 200, 300)
	require.NoError(t, err)
	require.Empty(t, got)

	height, err := cache.LatestBlockHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(105), height)

	block, err := cache.GetBlock(ctx, 104)
	require.NoError(t, err)
	require.Equal(t, blocks[4], *block)

	_, err = cache.GetBlock(ctx, 99)
	require.ErrorIs(t, err, domain.ErrBlockNotFound)

	// same blocks again are a no-op
	require.NoError(t, cache.PutBlocks(ctx, blocks[2:]))
}

func TestPutBlocksDiscontinuity(t *testing.T) {
	cache := newTestCache(t)
	chain := makeChain(1, 3, nil, "a")
	require.NoError(t, cache.PutBlocks(ctx, chain))

	t.Run("conflicting block at same height", func(t *testing.T) {
		fork := makeChain(3, 1, chain[1].Hash, "b")
		err := cache.PutBlocks(ctx, fork)
		requireDiscontinuityAt(t, err, 3)
	})

	t.Run("previous hash mismatch", func(t *testing.T) {
		next := makeChain(4, 1, []byte("unknown"), "a")
		err := cache.PutBlocks(ctx, next)
		requireDiscontinuityAt(t, err, 4)
	})

	t.Run("gap in input", func(t *testing.T) {
		next := makeChain(4, 3, chain[2].Hash, "a")
		err := cache.PutBlocks(ctx, []domain.CompactBlock{next[0], next[2]})
		requireDiscontinuityAt(t, err, 6)
	})

	height, err := cache.LatestBlockHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)
}

func TestApplyScanAndBalance(t *testing.T) {
	cache := newTestCache(t)

	cp, err := cache.GetCheckpoint(ctx)
	require.NoError(t, err)
	require.True(t, cp.IsZero())

	events := []domain.NoteEvent{
		createdEvent("nf1", 100, 10),
		createdEvent("nf2", 101, 20),
		createdEvent("nf3", 105, 40),
	}
	require.NoError(t, cache.ApplyScan(ctx, events, domain.SyncCheckpoint{
		LastScannedHeight: 105, ChainTipHeight: 110,
	}))

	// scanning again must not duplicate notes
	require.NoError(t, cache.ApplyScan(ctx, events, domain.SyncCheckpoint{
		LastScannedHeight: 105, ChainTipHeight: 110,
	}))

	require.NoError(t, cache.ApplyScan(ctx, []domain.NoteEvent{
		{Type: domain.NoteSpent, Nullifier: "nf1", Height: 106, TxHash: []byte{6}},
		{Type: domain.NoteSpent, Nullifier: "unknown", Height: 106},
	}, domain.SyncCheckpoint{LastScannedHeight: 106, ChainTipHeight: 110}))

	notes, err := cache.ListNotes(ctx, false)
	require.NoError(t, err)
	require.Len(t, notes, 3)

	unspent, err := cache.ListNotes(ctx, true)
	require.NoError(t, err)
	require.Len(t, unspent, 2)

	nullifiers, err := cache.UnspentNullifiers(ctx)
	require.NoError(t, err)
	require.True(t, nullifiers.Has("nf2"))
	require.False(t, nullifiers.Has("nf1"))

	balance, err := cache.GetBalance(ctx, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(60), balance.Total)
	require.Equal(t, uint64(20), balance.Verified)
	require.Equal(t, uint64(106), balance.LastScannedHeight)
	require.Equal(t, uint64(110), balance.ChainTipHeight)

	cp, err = cache.GetCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(106), cp.LastScannedHeight)
}

func TestApplyScanCanceled(t *testing.T) {
	cache := newTestCache(t)
	canceled, cancel := context.WithCancel(ctx)
	cancel()

	err := cache.ApplyScan(canceled, []domain.NoteEvent{createdEvent("nf", 1, 1)},
		domain.SyncCheckpoint{LastScannedHeight: 1})
	require.ErrorIs(t, err, context.Canceled)

	notes, err := cache.ListNotes(ctx, false)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestRewind(t *testing.T) {
	cache := newTestCache(t)
	chain := makeChain(1, 3, nil, "a")
	require.NoError(t, cache.PutBlocks(ctx, chain))

	require.NoError(t, cache.ApplyScan(ctx, []domain.NoteEvent{
		createdEvent("nfA", 1, 5),
		createdEvent("nfB", 2, 7),
	}, domain.SyncCheckpoint{LastScannedHeight: 2, ChainTipHeight: 3}))
	require.NoError(t, cache.ApplyScan(ctx, []domain.NoteEvent{
		createdEvent("nfC", 3, 11),
		{Type: domain.NoteSpent, Nullifier: "nfA", Height: 3},
	}, domain.SyncCheckpoint{
		LastScannedHeight: 3, ChainTipHeight: 3, LastValidatedBlockHash: chain[2].Hash,
	}))

	tx, err := domain.NewPendingTransaction([]byte{1, 2, 3}, 1)
	require.NoError(t, err)
	tx.Submitted(2)
	tx.Mined(3)
	require.NoError(t, cache.AddPendingTransaction(ctx, *tx))

	// C' at height 3 conflicts with C
	fork := makeChain(3, 1, chain[1].Hash, "b")
	err = cache.PutBlocks(ctx, fork)
	requireDiscontinuityAt(t, err, 3)

	require.NoError(t, cache.Rewind(ctx, 2))

	height, err := cache.LatestBlockHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), height)

	cp, err := cache.GetCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), cp.LastScannedHeight)
	require.Equal(t, chain[1].Hash, cp.LastValidatedBlockHash)

	notes, err := cache.ListNotes(ctx, false)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	for _, n := range notes {
		require.False(t, n.Spent)
		require.NotEqual(t, "nfC", n.Nullifier)
	}

	txs, err := cache.ListPendingTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, domain.TxSubmitted, txs[0].Status)

	// now the fork links
	require.NoError(t, cache.PutBlocks(ctx, fork))
	got, err := cache.GetBlocks(ctx, 1, 3)
	require.NoError(t, err)
	require.Equal(t, fork[0].Hash, got[2].Hash)
}

func TestPendingTransactions(t *testing.T) {
	cache := newTestCache(t)

	first, err := domain.NewPendingTransaction([]byte{1}, 10)
	require.NoError(t, err)
	second, err := domain.NewPendingTransaction([]byte{2}, 5)
	require.NoError(t, err)

	require.NoError(t, cache.AddPendingTransaction(ctx, *first))
	require.NoError(t, cache.AddPendingTransaction(ctx, *second))
	require.ErrorIs(
		t, cache.AddPendingTransaction(ctx, *first),
		domain.ErrPendingTxAlreadyExists,
	)

	first.Submitted(100)
	require.NoError(t, cache.UpdatePendingTransaction(ctx, *first))

	unknown, err := domain.NewPendingTransaction([]byte{3}, 0)
	require.NoError(t, err)
	require.ErrorIs(
		t, cache.UpdatePendingTransaction(ctx, *unknown),
		domain.ErrPendingTxNotFound,
	)

	txs, err := cache.ListPendingTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, second.TxID, txs[0].TxID)
	require.Equal(t, domain.TxSubmitted, txs[1].Status)
	require.Equal(t, uint64(100), txs[1].SubmittedHeight)
}

func TestChainCacheOnDisk(t *testing.T) {
	dir := t.TempDir()
	logger := dbbadger.NewLogger(logrus.New())

	cache, err := dbbadger.NewChainCache(dir, "fingerprint-0", logger)
	require.NoError(t, err)

	blocks := makeChain(1, 2, nil, "a")
	require.NoError(t, cache.PutBlocks(ctx, blocks))
	require.NoError(t, cache.ApplyScan(ctx, []domain.NoteEvent{
		createdEvent("nf", 2, 42),
	}, domain.SyncCheckpoint{LastScannedHeight: 2, ChainTipHeight: 2}))
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())

	cache, err = dbbadger.NewChainCache(dir, "fingerprint-0", logger)
	require.NoError(t, err)
	defer cache.Close()

	cp, err := cache.GetCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), cp.LastScannedHeight)

	balance, err := cache.GetBalance(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(42), balance.Total)

	got, err := cache.GetBlocks(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, blocks, got)
}

func newTestCache(t *testing.T) domain.ChainCache {
	cache, err := dbbadger.NewChainCache("", "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func makeChain(
	from uint64, count int, prevHash []byte, branch string,
) []domain.CompactBlock {
	blocks := make([]domain.CompactBlock, 0, count)
	prev := prevHash
	for i := 0; i < count; i++ {
		height := from + uint64(i)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], height)
		hash := sha256.Sum256(append([]byte(branch), buf[:]...))

		blocks = append(blocks, domain.CompactBlock{
			ProtoVersion: 1,
			Height:       height,
			Hash:         hash[:],
			PrevHash:     prev,
			Time:         uint32(1600000000 + height),
			Vtx: []domain.CompactTx{
				{
					Index: 1,
					Hash:  hash[:],
					Outputs: []domain.CompactOutput{
						{Cmu: hash[:], EphemeralKey: hash[:], Ciphertext: hash[:]},
					},
				},
			},
		})
		prev = hash[:]
	}
	return blocks
}

func createdEvent(nf string, height, value uint64) domain.NoteEvent {
	return domain.NoteEvent{
		Type: domain.NoteCreated,
		Note: domain.Note{
			Nullifier:       nf,
			RecipientKeyID:  "fingerprint",
			NoteCommitment:  []byte(nf),
			Value:           value,
			Position:        height << 32,
			TxHash:          []byte{byte(height)},
			ConfirmedHeight: height,
		},
		Nullifier: nf,
		Height:    height,
	}
}

func requireDiscontinuityAt(t *testing.T, err error, height uint64) {
	t.Helper()
	require.ErrorIs(t, err, domain.ErrChainDiscontinuity)
	var discErr *domain.ChainDiscontinuityError
	require.True(t, errors.As(err, &discErr))
	require.Equal(t, height, discErr.Height)
}
