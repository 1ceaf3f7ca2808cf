package domain

import "encoding/hex"

// Note is a shielded output owned by the wallet. Notes are never deleted
// when spent, only flagged, so that a rewind can restore them.
type Note struct {
	// Nullifier is the hex encoded nullifier, unique per note.
	Nullifier string
	// RecipientKeyID is the fingerprint of the account the note belongs to.
	RecipientKeyID  string
	NoteCommitment  []byte
	Value           uint64
	Position        uint64
	TxHash          []byte
	ConfirmedHeight uint64
	Spent           bool
	SpentHeight     uint64
	SpentTxHash     []byte
}

// TxID ...
func (n Note) TxID() string {
	return hex.EncodeToString(n.TxHash)
}

// NoteEventType ...
type NoteEventType int

const (
	// NoteCreated is emitted for every output the wallet can decrypt.
	NoteCreated NoteEventType = iota
	// NoteSpent is emitted for every revealed nullifier of a wallet note.
	NoteSpent
)

func (t NoteEventType) String() string {
	switch t {
	case NoteCreated:
		return "created"
	case NoteSpent:
		return "spent"
	default:
		return "unknown"
	}
}

// NoteEvent is the result of scanning a block. Created events carry the new
// note, spent events only its nullifier.
type NoteEvent struct {
	Type      NoteEventType
	Note      Note
	Nullifier string
	Height    uint64
	TxHash    []byte
}

// NullifierSet is the set of hex encoded nullifiers of unspent notes.
type NullifierSet map[string]struct{}

// NewNullifierSet ...
func NewNullifierSet(nullifiers ...string) NullifierSet {
	set := make(NullifierSet, len(nullifiers))
	for _, nf := range nullifiers {
		set.Add(nf)
	}
	return set
}

// Add ...
func (s NullifierSet) Add(nf string) {
	s[nf] = struct{}{}
}

// Has ...
func (s NullifierSet) Has(nf string) bool {
	_, ok := s[nf]
	return ok
}
