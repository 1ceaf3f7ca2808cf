package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestCheckContinuity(t *testing.T) {
	a := domain.CompactBlock{Height: 1, Hash: []byte{1}}
	b := domain.CompactBlock{Height: 2, Hash: []byte{2}, PrevHash: []byte{1}}
	c := domain.CompactBlock{Height: 3, Hash: []byte{3}, PrevHash: []byte{2}}
	forked := domain.CompactBlock{Height: 3, Hash: []byte{4}, PrevHash: []byte{9}}

	require.NoError(t, domain.CheckContinuity([]domain.CompactBlock{a, b, c}))

	err := domain.CheckContinuity([]domain.CompactBlock{a, b, forked})
	require.ErrorIs(t, err, domain.ErrChainDiscontinuity)

	var discErr *domain.ChainDiscontinuityError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &discErr))
	require.Equal(t, uint64(3), discErr.Height)

	err = domain.CheckContinuity([]domain.CompactBlock{a, c})
	require.ErrorIs(t, err, domain.ErrChainDiscontinuity)
}

func TestComputeBalance(t *testing.T) {
	notes := []domain.Note{
		{Value: 10, ConfirmedHeight: 100},
		{Value: 20, ConfirmedHeight: 108},
		{Value: 40, ConfirmedHeight: 110},
		{Value: 80, ConfirmedHeight: 90, Spent: true},
	}

	tests := []struct {
		tip, confirmations     uint64
		total, verified, pendg uint64
	}{
		{110, 0, 70, 70, 0},
		{110, 2, 70, 30, 40},
		{110, 10, 70, 10, 60},
		{110, 11, 70, 0, 70},
		{5, 10, 70, 0, 70},
	}
	for _, tt := range tests {
		b := domain.ComputeBalance(notes, tt.tip, tt.confirmations)
		require.Equal(t, tt.total, b.Total)
		require.Equal(t, tt.verified, b.Verified)
		require.Equal(t, tt.pendg, b.Pending)
	}
}

func TestPendingTransactionLifecycle(t *testing.T) {
	_, err := domain.NewPendingTransaction(nil, 0)
	require.ErrorIs(t, err, domain.ErrEmptyTransaction)

	tx, err := domain.NewPendingTransaction([]byte{0xde, 0xad}, 1)
	require.NoError(t, err)
	require.Equal(t, domain.TxUnsubmitted, tx.Status)
	require.Len(t, tx.TxID, 64)

	require.False(t, tx.Expire(1000, 20))

	tx.SubmissionFailed(errors.New("boom"))
	require.Equal(t, domain.TxUnsubmitted, tx.Status)
	require.Equal(t, "boom", tx.LastError)

	tx.Submitted(100)
	require.Equal(t, domain.TxSubmitted, tx.Status)
	require.Equal(t, 2, tx.Attempts)
	require.False(t, tx.Expire(120, 20))
	require.True(t, tx.Expire(121, 20))
	require.Equal(t, domain.TxExpired, tx.Status)
	require.True(t, tx.IsFinal())
}
