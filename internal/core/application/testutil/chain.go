// Package testutil provides chain fixtures and an in-memory block source
// for the application tests.
package testutil

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
)

// Chain is a sequence of linked compact blocks.
type Chain struct {
	Blocks []domain.CompactBlock
	branch string
}

// NewChain returns count empty linked blocks starting at height start.
func NewChain(start uint64, count int) *Chain {
	c := &Chain{branch: "main"}
	prev := blockHash("genesis", start-1)
	for i := 0; i < count; i++ {
		b := newBlock(c.branch, start+uint64(i), prev)
		c.Blocks = append(c.Blocks, b)
		prev = b.Hash
	}
	return c
}

// Tip returns the height of the last block.
func (c *Chain) Tip() uint64 {
	return c.Blocks[len(c.Blocks)-1].Height
}

// Block returns the block at the given height for editing, nil if missing.
func (c *Chain) Block(height uint64) *domain.CompactBlock {
	for i := range c.Blocks {
		if c.Blocks[i].Height == height {
			return &c.Blocks[i]
		}
	}
	return nil
}

// AddTx appends tx to the block at height, fixing its index.
func (c *Chain) AddTx(height uint64, tx domain.CompactTx) {
	b := c.Block(height)
	if b == nil {
		panic(fmt.Sprintf("no block at height %d", height))
	}
	tx.Index = uint64(len(b.Vtx))
	b.Vtx = append(b.Vtx, tx)
}

// Extend appends n empty blocks.
func (c *Chain) Extend(n int) {
	prev := c.Blocks[len(c.Blocks)-1]
	for i := 0; i < n; i++ {
		b := newBlock(c.branch, prev.Height+1, prev.Hash)
		c.Blocks = append(c.Blocks, b)
		prev = b
	}
}

// Fork returns a copy of the chain where every block from height on has a
// different hash. Txs are kept unless dropTxs is set.
func (c *Chain) Fork(height uint64, branch string, dropTxs bool) *Chain {
	fork := &Chain{branch: branch}
	var prev []byte
	for _, b := range c.Blocks {
		if b.Height < height {
			fork.Blocks = append(fork.Blocks, b)
			prev = b.Hash
			continue
		}
		nb := newBlock(branch, b.Height, prev)
		if !dropTxs {
			nb.Vtx = b.Vtx
		}
		fork.Blocks = append(fork.Blocks, nb)
		prev = nb.Hash
	}
	return fork
}

// PaymentTx returns a tx with one output paying addr for every value.
func PaymentTx(addr wallet.PaymentAddress, values ...uint64) domain.CompactTx {
	tx := domain.CompactTx{}
	h := sha256.New()
	for _, v := range values {
		note, err := wallet.EncryptNote(addr, v, nil)
		if err != nil {
			panic(err)
		}
		h.Write(note.Cmu)
		tx.Outputs = append(tx.Outputs, domain.CompactOutput{
			Cmu:          note.Cmu,
			EphemeralKey: note.EphemeralKey,
			Ciphertext:   note.Ciphertext,
		})
	}
	tx.Hash = h.Sum(nil)
	return tx
}

// SpendTx returns a tx revealing the given nullifiers.
func SpendTx(nullifiers ...[]byte) domain.CompactTx {
	tx := domain.CompactTx{}
	h := sha256.New()
	for _, nf := range nullifiers {
		h.Write(nf)
		tx.Spends = append(tx.Spends, domain.CompactSpend{Nf: nf})
	}
	tx.Hash = h.Sum(nil)
	return tx
}

// RawTx returns a tx with the given hash and no shielded parts.
func RawTx(hash []byte) domain.CompactTx {
	return domain.CompactTx{Hash: hash}
}

func newBlock(branch string, height uint64, prev []byte) domain.CompactBlock {
	return domain.CompactBlock{
		ProtoVersion: 1,
		Height:       height,
		Hash:         blockHash(branch, height),
		PrevHash:     prev,
		Time:         uint32(1600000000 + height*75),
	}
}

func blockHash(branch string, height uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	hash := sha256.Sum256(append([]byte(branch), buf[:]...))
	return hash[:]
}
