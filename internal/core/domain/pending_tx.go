package domain

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TxStatus ...
type TxStatus int

const (
	// TxUnsubmitted txs are resent by the synchronizer at the next cycle.
	TxUnsubmitted TxStatus = iota
	// TxSubmitted txs have been accepted by the remote endpoint.
	TxSubmitted
	// TxMined txs have been found in a scanned block.
	TxMined
	// TxExpired txs have not been mined before their expiry height.
	TxExpired
)

func (s TxStatus) String() string {
	switch s {
	case TxUnsubmitted:
		return "unsubmitted"
	case TxSubmitted:
		return "submitted"
	case TxMined:
		return "mined"
	case TxExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// PendingTransaction is a transaction created by the wallet and tracked
// until it is either mined or expired.
type PendingTransaction struct {
	TxID            string
	RawBytes        []byte
	SubmittedHeight uint64
	MinedHeight     uint64
	Status          TxStatus
	Attempts        int
	LastError       string
	CreatedAt       int64
}

// NewPendingTransaction returns an unsubmitted tx whose id is the double
// sha256 of the raw bytes.
func NewPendingTransaction(raw []byte, createdAt int64) (*PendingTransaction, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyTransaction
	}
	return &PendingTransaction{
		TxID:      TxIDFromRaw(raw),
		RawBytes:  raw,
		Status:    TxUnsubmitted,
		CreatedAt: createdAt,
	}, nil
}

// TxIDFromRaw returns the hex encoded double sha256 of the given tx bytes,
// in the same byte order compact txs carry it.
func TxIDFromRaw(raw []byte) string {
	hash := chainhash.DoubleHashH(raw)
	return hex.EncodeToString(hash[:])
}

// IsFinal returns whether the tx will never change status again unless the
// chain is rewound.
func (tx PendingTransaction) IsFinal() bool {
	return tx.Status == TxMined || tx.Status == TxExpired
}

// Submitted moves the tx to submitted at the given chain height.
func (tx *PendingTransaction) Submitted(height uint64) {
	tx.Status = TxSubmitted
	tx.SubmittedHeight = height
	tx.Attempts++
	tx.LastError = ""
}

// SubmissionFailed records the error and leaves the tx unsubmitted.
func (tx *PendingTransaction) SubmissionFailed(err error) {
	tx.Status = TxUnsubmitted
	tx.Attempts++
	tx.LastError = err.Error()
}

// Mined ...
func (tx *PendingTransaction) Mined(height uint64) {
	tx.Status = TxMined
	tx.MinedHeight = height
}

// Expire marks the tx expired if the tip is past its expiry height.
func (tx *PendingTransaction) Expire(tip, expiryDelta uint64) bool {
	if tx.Status != TxSubmitted {
		return false
	}
	if tip <= tx.SubmittedHeight+expiryDelta {
		return false
	}
	tx.Status = TxExpired
	return true
}
