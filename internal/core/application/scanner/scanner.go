// Package scanner turns compact blocks into note events for the keys of one
// account.
package scanner

import (
	"encoding/hex"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
)

// Scan returns, in block order, the notes created for keys and the
// nullifiers of known notes revealed by the block. It has no side effects:
// scanning the same block with the same keys and known set always gives the
// same events.
// known holds the nullifiers of the unspent notes found in previous blocks
// and is not modified.
// An error is returned only for a note whose location in the chain can not
// be encoded as a position.
func Scan(
	block domain.CompactBlock, keys *wallet.KeyBundle, known domain.NullifierSet,
) ([]domain.NoteEvent, error) {
	events := make([]domain.NoteEvent, 0)
	createdHere := domain.NewNullifierSet()

	for _, tx := range block.Vtx {
		for _, spend := range tx.Spends {
			nf := hex.EncodeToString(spend.Nf)
			if !known.Has(nf) && !createdHere.Has(nf) {
				continue
			}
			events = append(events, domain.NoteEvent{
				Type:      domain.NoteSpent,
				Nullifier: nf,
				Height:    block.Height,
				TxHash:    tx.Hash,
			})
		}

		for i, out := range tx.Outputs {
			pt, ok := wallet.TrialDecrypt(keys, wallet.EncryptedNote{
				Cmu:          out.Cmu,
				EphemeralKey: out.EphemeralKey,
				Ciphertext:   out.Ciphertext,
			})
			if !ok {
				continue
			}

			position, err := wallet.NotePosition(block.Height, tx.Index, uint64(i))
			if err != nil {
				return nil, err
			}
			nf := hex.EncodeToString(keys.Nullifier(out.Cmu, position))
			createdHere.Add(nf)

			events = append(events, domain.NoteEvent{
				Type: domain.NoteCreated,
				Note: domain.Note{
					Nullifier:       nf,
					RecipientKeyID:  keys.Fingerprint,
					NoteCommitment:  out.Cmu,
					Value:           pt.Value,
					Position:        position,
					TxHash:          tx.Hash,
					ConfirmedHeight: block.Height,
				},
				Nullifier: nf,
				Height:    block.Height,
				TxHash:    tx.Hash,
			})
		}
	}

	return events, nil
}

// TxIDs returns the hex encoded hashes of all txs in the block.
func TxIDs(block domain.CompactBlock) []string {
	ids := make([]string, 0, len(block.Vtx))
	for _, tx := range block.Vtx {
		ids = append(ids, hex.EncodeToString(tx.Hash))
	}
	return ids
}
