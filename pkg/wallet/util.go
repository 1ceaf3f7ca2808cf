package wallet

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
)

const (
	// MaxHardenedValue is the max value for hardened indexes of BIP32
	// derivation paths
	MaxHardenedValue = math.MaxUint32 - hdkeychain.HardenedKeyStart

	expandPersonalization  = "Zcash_ExpandSeed"
	kdfPersonalization     = "Zcash_SaplingKDF"
	commitPersonalization  = "Zcash_NoteCommit"
	divPersonalization     = "Zcash_Diversify_"
	fingerprintPersonalize = "Zcash_FVFPHash__"
)

// domain separators for the keys expanded from a spending key
const (
	expandAsk byte = iota
	expandNsk
	expandOvk
	expandIvk
	expandRcm
	expandEsk
)

func generateMnemonic(entropySize int) ([]string, error) {
	entropy, err := bip39.NewEntropy(entropySize)
	if err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Split(mnemonic, " "), nil
}

func generateSeedFromMnemonic(mnemonic []string, passphrase string) []byte {
	m := strings.Join(mnemonic, " ")
	return bip39.NewSeed(m, passphrase)
}

// isMnemonicValid checks both the words and the checksum.
func isMnemonicValid(mnemonic []string) bool {
	m := strings.Join(mnemonic, " ")
	if _, err := bip39.EntropyFromMnemonic(m); err != nil {
		return false
	}
	return true
}

// prfExpand returns BLAKE2b-512(key=personalization, sk || t).
func prfExpand(sk []byte, t byte) [64]byte {
	h, _ := blake2b.New512([]byte(expandPersonalization))
	h.Write(sk)
	h.Write([]byte{t})
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

func keyedHash256(key string, chunks ...[]byte) [32]byte {
	h, _ := blake2b.New256([]byte(key))
	for _, c := range chunks {
		h.Write(c)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func uint64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func encodeBech32(hrp string, payload []byte) (string, error) {
	data, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, data)
}

func decodeBech32(str string) (string, []byte, error) {
	hrp, data, err := bech32.DecodeNoLimit(str)
	if err != nil {
		return "", nil, err
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, payload, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
