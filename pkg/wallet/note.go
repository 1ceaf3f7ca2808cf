package wallet

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/curve25519"
)

const (
	// NoteLeadByte is the first plaintext byte of every note this wallet
	// can decrypt.
	NoteLeadByte byte = 0x02
	// CompactNoteSize is the size of the note plaintext carried by compact
	// block outputs.
	CompactNoteSize = 1 + DiversifierSize + 8 + 32

	MaxPositionHeight = 1<<32 - 1
	// MaxPositionIndex bounds both the tx index in a block and the output
	// index in a tx.
	MaxPositionIndex = 1<<16 - 1
)

var zeroNonce = make([]byte, chacha20.NonceSize)

// EncryptedNote is a shielded output as it appears on chain: the note
// commitment, the sender's ephemeral public key and the ciphertext.
type EncryptedNote struct {
	Cmu          []byte
	EphemeralKey []byte
	Ciphertext   []byte
}

// NotePlaintext is the content of a successfully decrypted note.
type NotePlaintext struct {
	Diversifier [DiversifierSize]byte
	Value       uint64
	Rseed       [32]byte
}

// EncryptNote creates a note of the given value paying the given address.
// rnd defaults to crypto/rand when nil.
func EncryptNote(
	addr PaymentAddress, value uint64, rnd io.Reader,
) (*EncryptedNote, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	var rseed [32]byte
	if _, err := io.ReadFull(rnd, rseed[:]); err != nil {
		return nil, err
	}

	expanded := prfExpand(rseed[:], expandEsk)
	esk := expanded[:32]
	defer zero(expanded[:])

	epk, err := curve25519.X25519(esk, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(esk, addr.TransmissionKey[:])
	if err != nil {
		return nil, err
	}
	key := noteKey(shared, epk)

	plaintext := make([]byte, 0, CompactNoteSize)
	plaintext = append(plaintext, NoteLeadByte)
	plaintext = append(plaintext, addr.Diversifier[:]...)
	plaintext = append(plaintext, uint64LE(value)...)
	plaintext = append(plaintext, rseed[:]...)

	c, err := chacha20.NewUnauthenticatedCipher(key[:], zeroNonce)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(plaintext))
	c.XORKeyStream(ciphertext, plaintext)

	cmu := noteCommitment(
		addr.Diversifier[:], addr.TransmissionKey[:], value, rseed[:],
	)
	return &EncryptedNote{
		Cmu:          cmu[:],
		EphemeralKey: epk,
		Ciphertext:   ciphertext,
	}, nil
}

// TrialDecrypt attempts to open the note with the incoming viewing key of
// the given account. It bails out after the first byte for notes addressed
// to somebody else, and accepts a note only if its recomputed commitment
// matches the on-chain one.
func TrialDecrypt(keys *KeyBundle, note EncryptedNote) (*NotePlaintext, bool) {
	if len(note.Ciphertext) < CompactNoteSize || len(note.EphemeralKey) != 32 {
		return nil, false
	}

	shared, err := curve25519.X25519(keys.ivk[:], note.EphemeralKey)
	if err != nil {
		return nil, false
	}
	key := noteKey(shared, note.EphemeralKey)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], zeroNonce)
	if err != nil {
		return nil, false
	}

	var lead [1]byte
	c.XORKeyStream(lead[:], note.Ciphertext[:1])
	if lead[0] != NoteLeadByte {
		return nil, false
	}

	rest := make([]byte, CompactNoteSize-1)
	c.XORKeyStream(rest, note.Ciphertext[1:CompactNoteSize])

	pt := &NotePlaintext{}
	copy(pt.Diversifier[:], rest[:DiversifierSize])
	pt.Value = binary.LittleEndian.Uint64(rest[DiversifierSize : DiversifierSize+8])
	copy(pt.Rseed[:], rest[DiversifierSize+8:])

	if pt.Diversifier != keys.diversifier {
		return nil, false
	}
	cmu := noteCommitment(pt.Diversifier[:], keys.pkd[:], pt.Value, pt.Rseed[:])
	if subtle.ConstantTimeCompare(cmu[:], note.Cmu) != 1 {
		return nil, false
	}
	return pt, true
}

// Nullifier returns the value revealed on chain when the note with the
// given commitment and position is spent.
func (k *KeyBundle) Nullifier(cmu []byte, position uint64) []byte {
	nf := keyedHash256(string(k.nk[:]), cmu, uint64LE(position))
	return nf[:]
}

// NotePosition packs the location of an output in the chain into a single
// number, unique per output: 32 bits of height, 16 of tx index and 16 of
// output index. Locations that do not fit are rejected.
func NotePosition(height, txIndex, outputIndex uint64) (uint64, error) {
	if height > MaxPositionHeight ||
		txIndex > MaxPositionIndex || outputIndex > MaxPositionIndex {
		return 0, fmt.Errorf(
			"%w: height %d, tx %d, output %d",
			ErrPositionOutOfRange, height, txIndex, outputIndex,
		)
	}
	return height<<32 | txIndex<<16 | outputIndex, nil
}

func noteKey(shared, epk []byte) [32]byte {
	return keyedHash256(kdfPersonalization, shared, epk)
}

func noteCommitment(d, pkd []byte, value uint64, rseed []byte) [32]byte {
	expanded := prfExpand(rseed, expandRcm)
	return keyedHash256(commitPersonalization, d, pkd, uint64LE(value), expanded[:32])
}
