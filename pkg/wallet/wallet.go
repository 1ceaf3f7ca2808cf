package wallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic is null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullMasterKey ...
	ErrNullMasterKey = errors.New("master key is null, wallet has been closed")

	// ErrInvalidMnemonic is returned when words or checksum of a mnemonic
	// are not valid.
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and can optionally start with 'm/' for absolute paths",
	)
	// ErrInvalidAccount ...
	ErrInvalidAccount = fmt.Errorf(
		"account index must be in range [0, %d]", MaxHardenedValue,
	)
	// ErrPositionOutOfRange is returned for an output location that does not
	// fit a note position.
	ErrPositionOutOfRange = errors.New("note position out of range")
	// ErrInvalidAddress ...
	ErrInvalidAddress = errors.New("address is not a valid shielded payment address")
	// ErrInvalidCiphertext ...
	ErrInvalidCiphertext = errors.New("note ciphertext is too short")
)

// Wallet holds the master node of a BIP-32 tree. The seed it was derived
// from is never retained.
type Wallet struct {
	network *Network

	lock      sync.Mutex
	masterKey *hdkeychain.ExtendedKey
	bundles   map[uint32]*KeyBundle
}

// NewWalletFromMnemonicOpts is the struct given to NewWalletFromMnemonic
type NewWalletFromMnemonicOpts struct {
	Mnemonic   []string
	Passphrase string
	Network    *Network
}

func (o NewWalletFromMnemonicOpts) validate() error {
	if o.Network == nil {
		return ErrNullNetwork
	}
	return ValidateMnemonic(o.Mnemonic)
}

// NewWalletFromMnemonic validates the mnemonic, derives the BIP-39 seed and
// the master node. The seed bytes are zeroed before returning.
func NewWalletFromMnemonic(opts NewWalletFromMnemonicOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	seed := generateSeedFromMnemonic(opts.Mnemonic, opts.Passphrase)
	defer zero(seed)

	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		network:   opts.Network,
		masterKey: masterKey,
		bundles:   make(map[uint32]*KeyBundle),
	}, nil
}

// Network returns the params of the wallet's network.
func (w *Wallet) Network() *Network {
	return w.network
}

// DeriveKeyBundle returns the keys of the given account, deriving them on
// first use.
func (w *Wallet) DeriveKeyBundle(account uint32) (*KeyBundle, error) {
	if account > MaxHardenedValue {
		return nil, ErrInvalidAccount
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if w.masterKey == nil {
		return nil, ErrNullMasterKey
	}
	if kb, ok := w.bundles[account]; ok {
		return kb, nil
	}

	path := AccountDerivationPath(w.network, account)
	node := w.masterKey
	for _, step := range path {
		child, err := node.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("failed to derive path %s: %w", path, err)
		}
		node = child
	}

	prvkey, err := node.ECPrivKey()
	if err != nil {
		return nil, err
	}
	sk := prvkey.Serialize()
	defer zero(sk)

	kb, err := newKeyBundle(w.network, account, path, sk, node.ChainCode())
	if err != nil {
		return nil, err
	}
	w.bundles[account] = kb
	return kb, nil
}

// Close wipes the master node. Any later derivation fails with
// ErrNullMasterKey.
func (w *Wallet) Close() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.masterKey != nil {
		w.masterKey.Zero()
		w.masterKey = nil
	}
	w.bundles = make(map[uint32]*KeyBundle)
}

// Derive turns a mnemonic into the key bundle of the given account in one
// shot.
func Derive(
	mnemonic []string, passphrase string, account uint32, network *Network,
) (*KeyBundle, error) {
	w, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic:   mnemonic,
		Passphrase: passphrase,
		Network:    network,
	})
	if err != nil {
		return nil, err
	}
	defer w.Close()

	return w.DeriveKeyBundle(account)
}
