package wallet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressCodec(t *testing.T) {
	kb, err := Derive(testMnemonic, "", 0, &MainNet)
	require.NoError(t, err)

	addr, err := DecodeAddress(kb.Address(), &MainNet)
	require.NoError(t, err)
	require.Equal(t, kb.PaymentAddress().TransmissionKey, addr.TransmissionKey)
	require.Equal(t, kb.PaymentAddress().Diversifier, addr.Diversifier)

	_, err = DecodeAddress(kb.Address(), &TestNet)
	require.ErrorIs(t, err, ErrInvalidAddress)
	_, err = DecodeAddress("zs1notanaddress", &MainNet)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestTrialDecrypt(t *testing.T) {
	mine, err := Derive(testMnemonic, "", 0, &MainNet)
	require.NoError(t, err)
	other, err := Derive(testMnemonic, "", 1, &MainNet)
	require.NoError(t, err)

	note, err := EncryptNote(mine.PaymentAddress(), 150000, nil)
	require.NoError(t, err)
	require.Len(t, note.Ciphertext, CompactNoteSize)

	t.Run("own note", func(t *testing.T) {
		pt, ok := TrialDecrypt(mine, *note)
		require.True(t, ok)
		require.Equal(t, uint64(150000), pt.Value)
		require.Equal(t, mine.PaymentAddress().Diversifier, pt.Diversifier)
	})

	t.Run("note of another account", func(t *testing.T) {
		pt, ok := TrialDecrypt(other, *note)
		require.False(t, ok)
		require.Nil(t, pt)
	})

	t.Run("tampered commitment", func(t *testing.T) {
		tampered := *note
		tampered.Cmu = bytes.Repeat([]byte{1}, 32)
		_, ok := TrialDecrypt(mine, tampered)
		require.False(t, ok)
	})

	t.Run("short ciphertext", func(t *testing.T) {
		short := *note
		short.Ciphertext = note.Ciphertext[:10]
		_, ok := TrialDecrypt(mine, short)
		require.False(t, ok)
	})
}

func TestEncryptNoteDeterministicWithSameRandomness(t *testing.T) {
	kb, err := Derive(testMnemonic, "", 0, &MainNet)
	require.NoError(t, err)

	rnd := bytes.Repeat([]byte{7}, 32)
	first, err := EncryptNote(kb.PaymentAddress(), 1, bytes.NewReader(rnd))
	require.NoError(t, err)
	second, err := EncryptNote(kb.PaymentAddress(), 1, bytes.NewReader(rnd))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestNullifier(t *testing.T) {
	kb, err := Derive(testMnemonic, "", 0, &MainNet)
	require.NoError(t, err)
	other, err := Derive(testMnemonic, "", 1, &MainNet)
	require.NoError(t, err)

	cmu := bytes.Repeat([]byte{9}, 32)
	pos, err := NotePosition(500000, 2, 1)
	require.NoError(t, err)

	nf := kb.Nullifier(cmu, pos)
	require.Len(t, nf, 32)
	require.Equal(t, nf, kb.Nullifier(cmu, pos))
	require.NotEqual(t, nf, kb.Nullifier(cmu, pos+1))
	require.NotEqual(t, nf, other.Nullifier(cmu, pos))
}

func TestNotePosition(t *testing.T) {
	tests := []struct {
		name               string
		height, tx, output uint64
		want               uint64
		err                error
	}{
		{"first output", 1, 0, 0, 1 << 32, nil},
		{"packed fields", 1, 2, 3, 1<<32 | 2<<16 | 3, nil},
		{"indexes past 12 bits", 7, 4096, 4097, 7<<32 | 4096<<16 | 4097, nil},
		{
			"largest location", MaxPositionHeight, MaxPositionIndex, MaxPositionIndex,
			1<<64 - 1, nil,
		},
		{"height too large", MaxPositionHeight + 1, 0, 0, 0, ErrPositionOutOfRange},
		{"tx index too large", 1, MaxPositionIndex + 1, 0, 0, ErrPositionOutOfRange},
		{"output index too large", 1, 0, MaxPositionIndex + 1, 0, ErrPositionOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NotePosition(tt.height, tt.tx, tt.output)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("unique per output", func(t *testing.T) {
		a, err := NotePosition(10, 0, 4096)
		require.NoError(t, err)
		b, err := NotePosition(10, 1, 0)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})
}
