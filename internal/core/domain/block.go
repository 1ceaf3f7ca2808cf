package domain

import (
	"bytes"
	"encoding/hex"
)

// CompactBlock is the condensed form of a block that carries only what is
// needed to detect and spend shielded notes.
type CompactBlock struct {
	ProtoVersion uint32
	Height       uint64
	Hash         []byte
	PrevHash     []byte
	Time         uint32
	Header       []byte
	Vtx          []CompactTx
	// Raw is the block as served by the endpoint, fields not modeled here
	// included. Empty for blocks built locally.
	Raw []byte
}

// CompactTx ...
type CompactTx struct {
	// Index is the position of the tx in the block.
	Index   uint64
	Hash    []byte
	Fee     uint32
	Spends  []CompactSpend
	Outputs []CompactOutput
}

// CompactSpend reveals the nullifier of the note being spent.
type CompactSpend struct {
	Nf []byte
}

// CompactOutput is a shielded output stripped down to the note commitment,
// the ephemeral key and the first 52 bytes of the encrypted note.
type CompactOutput struct {
	Cmu          []byte
	EphemeralKey []byte
	Ciphertext   []byte
}

// HashHex ...
func (b CompactBlock) HashHex() string {
	return hex.EncodeToString(b.Hash)
}

// Follows returns whether b can be appended on top of prev.
func (b CompactBlock) Follows(prev CompactBlock) bool {
	return b.Height == prev.Height+1 && bytes.Equal(b.PrevHash, prev.Hash)
}

// CheckContinuity makes sure the given blocks form a chain, with no gaps and
// each block linked to the previous one.
func CheckContinuity(blocks []CompactBlock) error {
	for i := 1; i < len(blocks); i++ {
		prev, b := blocks[i-1], blocks[i]
		if !b.Follows(prev) {
			return &ChainDiscontinuityError{
				Height:   b.Height,
				Expected: prev.Hash,
				Got:      b.PrevHash,
			}
		}
	}
	return nil
}
