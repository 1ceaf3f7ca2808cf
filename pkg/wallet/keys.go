package wallet

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

const (
	// DiversifierSize is the byte length of an address diversifier.
	DiversifierSize = 11
)

// KeyBundle is the set of keys of one wallet account. Only SpendingKey
// grants spending authority, everything else is view-only material.
type KeyBundle struct {
	AccountIndex   uint32
	DerivationPath string
	// SpendingKey is the bech32 encoding of chain code and spending key.
	SpendingKey string
	// ViewingKey is the bech32 encoding of ivk, ovk and nk.
	ViewingKey string
	// Fingerprint identifies the account without revealing any key.
	Fingerprint string

	network     *Network
	nk          [32]byte
	ovk         [32]byte
	ivk         [32]byte
	pkd         [32]byte
	diversifier [DiversifierSize]byte
}

func newKeyBundle(
	network *Network, account uint32, path DerivationPath, sk, chainCode []byte,
) (*KeyBundle, error) {
	kb := &KeyBundle{
		AccountIndex:   account,
		DerivationPath: path.String(),
		network:        network,
	}

	nsk := prfExpand(sk, expandNsk)
	ovk := prfExpand(sk, expandOvk)
	ivk := prfExpand(sk, expandIvk)
	defer zero(nsk[:])

	kb.nk = keyedHash256(expandPersonalization, nsk[:32])
	copy(kb.ovk[:], ovk[:32])
	copy(kb.ivk[:], ivk[:32])

	pkd, err := curve25519.X25519(kb.ivk[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kb.pkd[:], pkd)

	index := make([]byte, DiversifierSize)
	d := keyedHash256(divPersonalization, kb.ovk[:], index)
	copy(kb.diversifier[:], d[:DiversifierSize])

	spendingKey, err := encodeBech32(
		network.SpendingKeyHRP, append(append([]byte{}, chainCode...), sk...),
	)
	if err != nil {
		return nil, err
	}
	viewingKey, err := encodeBech32(network.ViewingKeyHRP, kb.fullViewingKey())
	if err != nil {
		return nil, err
	}
	kb.SpendingKey = spendingKey
	kb.ViewingKey = viewingKey

	fp := keyedHash256(fingerprintPersonalize, kb.fullViewingKey())
	kb.Fingerprint = hex.EncodeToString(fp[:8])

	return kb, nil
}

func (k *KeyBundle) fullViewingKey() []byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, k.ivk[:]...)
	buf = append(buf, k.ovk[:]...)
	return append(buf, k.nk[:]...)
}

// Network returns the params of the network the keys belong to.
func (k *KeyBundle) Network() *Network {
	return k.network
}

// PaymentAddress returns the default shielded address of the account.
func (k *KeyBundle) PaymentAddress() PaymentAddress {
	return PaymentAddress{
		Diversifier:     k.diversifier,
		TransmissionKey: k.pkd,
		Network:         k.network,
	}
}

// Address returns the encoded default shielded address of the account.
func (k *KeyBundle) Address() string {
	addr, _ := k.PaymentAddress().Encode()
	return addr
}

// String never prints key material.
func (k *KeyBundle) String() string {
	return fmt.Sprintf(
		"KeyBundle{account: %d, path: %s, fingerprint: %s}",
		k.AccountIndex, k.DerivationPath, k.Fingerprint,
	)
}

// GoString is the same as String so that %#v does not leak keys either.
func (k *KeyBundle) GoString() string {
	return k.String()
}

// StorageKey identifies the account among the ones of any wallet.
func (k *KeyBundle) StorageKey() string {
	return fmt.Sprintf("%s-%d", k.Fingerprint, k.AccountIndex)
}
