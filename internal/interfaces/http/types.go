package httpinterface

import (
	"encoding/hex"
	"time"

	"github.com/shielded-wallet/zsyncd/internal/core/application/adapter"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type accountInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	State       string `json:"state"`
}

type deletedInfo struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type statusInfo struct {
	State             string `json:"state"`
	LastScannedHeight uint64 `json:"lastScannedHeight"`
	ChainTipHeight    uint64 `json:"chainTipHeight"`
	Error             string `json:"error,omitempty"`
}

func newStatusInfo(st domain.SyncStatus) statusInfo {
	info := statusInfo{
		State:             st.State.String(),
		LastScannedHeight: st.LastScannedHeight,
		ChainTipHeight:    st.ChainTipHeight,
	}
	if st.Err != nil {
		info.Error = st.Err.Error()
	}
	return info
}

type balanceInfo struct {
	Balance           string `json:"balance"`
	VerifiedBalance   string `json:"verifiedBalance"`
	State             string `json:"state"`
	Stale             bool   `json:"stale"`
	Error             string `json:"error,omitempty"`
	LastScannedHeight uint64 `json:"lastScannedHeight"`
	ChainTipHeight    uint64 `json:"chainTipHeight"`
}

func newBalanceInfo(b *adapter.BalanceInfo) balanceInfo {
	return balanceInfo{
		Balance:           b.Balance.StringFixed(adapter.Decimals),
		VerifiedBalance:   b.VerifiedBalance.StringFixed(adapter.Decimals),
		State:             b.State.String(),
		Stale:             b.Stale,
		Error:             b.Error,
		LastScannedHeight: b.LastScannedHeight,
		ChainTipHeight:    b.ChainTipHeight,
	}
}

type addressInfo struct {
	AccountIndex uint32 `json:"accountIndex"`
	Address      string `json:"address"`
}

type submitRequest struct {
	// Raw is the hex encoded signed transaction.
	Raw string `json:"raw"`
}

type txInfo struct {
	TxID            string    `json:"txid"`
	Status          string    `json:"status"`
	SubmittedHeight uint64    `json:"submittedHeight,omitempty"`
	MinedHeight     uint64    `json:"minedHeight,omitempty"`
	Attempts        int       `json:"attempts"`
	LastError       string    `json:"lastError,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newTxInfo(tx domain.PendingTransaction) txInfo {
	return txInfo{
		TxID:            tx.TxID,
		Status:          tx.Status.String(),
		SubmittedHeight: tx.SubmittedHeight,
		MinedHeight:     tx.MinedHeight,
		Attempts:        tx.Attempts,
		LastError:       tx.LastError,
		CreatedAt:       time.Unix(tx.CreatedAt, 0).UTC(),
	}
}

// streamMessage is what is written on the websocket for every status
// update or sync event of an account.
type streamMessage struct {
	Type   string      `json:"type"`
	Status *statusInfo `json:"status,omitempty"`
	Event  *eventInfo  `json:"event,omitempty"`
}

type eventInfo struct {
	Type         string `json:"type"`
	Height       uint64 `json:"height,omitempty"`
	Value        uint64 `json:"value,omitempty"`
	Nullifier    string `json:"nullifier,omitempty"`
	TxID         string `json:"txid,omitempty"`
	RewindHeight uint64 `json:"rewindHeight,omitempty"`
}

func newEventInfo(e domain.SyncEvent) *eventInfo {
	return &eventInfo{
		Type:         e.Type.String(),
		Height:       e.Height,
		Value:        e.Value,
		Nullifier:    e.Nullifier,
		TxID:         e.TxID,
		RewindHeight: e.RewindHeight,
	}
}

func decodeRawTx(str string) ([]byte, error) {
	return hex.DecodeString(str)
}
