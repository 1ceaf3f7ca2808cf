package wallet

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSeedHex = "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"
	testRootKey = "xprv9s21ZrQH143K3GJpoapnV8SFfukcVBSfeCficPSGfubmSFDxo1kuHnLisriDvSnRRuL2Qrg5ggqHKNVpxR86QEC8w35uxmGoggxtQTPvfUu"
)

var testMnemonic = strings.Split(
	"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
	" ",
)

func TestNewMnemonic(t *testing.T) {
	for _, size := range []int{0, 128, 160, 192, 224, 256} {
		mnemonic, err := NewMnemonic(NewMnemonicOpts{EntropySize: size})
		require.NoError(t, err)
		require.NoError(t, ValidateMnemonic(mnemonic))

		expectedLen := 24
		if size > 0 {
			expectedLen = size / 32 * 3
		}
		require.Len(t, mnemonic, expectedLen)
	}
}

func TestFailingNewMnemonic(t *testing.T) {
	tests := []int{-1, 127, 257, 130}
	for _, tt := range tests {
		opts := NewMnemonicOpts{
			EntropySize: tt,
		}
		_, err := NewMnemonic(opts)
		require.ErrorIs(t, err, ErrInvalidEntropySize)
	}
}

func TestSeedFromMnemonic(t *testing.T) {
	seed := generateSeedFromMnemonic(testMnemonic, "")
	require.Equal(t, testSeedHex, hex.EncodeToString(seed))

	w, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: testMnemonic,
		Network:  &MainNet,
	})
	require.NoError(t, err)
	require.Equal(t, testRootKey, w.masterKey.String())
}

func TestDeriveKeyBundle(t *testing.T) {
	kb, err := Derive(testMnemonic, "", 0, &MainNet)
	require.NoError(t, err)

	seed, _ := hex.DecodeString(testSeedHex)
	node, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	for _, step := range []uint32{
		hdkeychain.HardenedKeyStart + 32,
		hdkeychain.HardenedKeyStart + 133,
		hdkeychain.HardenedKeyStart,
	} {
		node, err = node.Derive(step)
		require.NoError(t, err)
	}
	prvkey, err := node.ECPrivKey()
	require.NoError(t, err)
	data, err := bech32.ConvertBits(
		append(node.ChainCode(), prvkey.Serialize()...), 8, 5, true,
	)
	require.NoError(t, err)
	expectedSpendingKey, err := bech32.Encode("secret-extended-key-main", data)
	require.NoError(t, err)

	require.Equal(t, expectedSpendingKey, kb.SpendingKey)
	require.Equal(t, "m/32'/133'/0'", kb.DerivationPath)
	require.Equal(t, uint32(0), kb.AccountIndex)
	require.True(t, strings.HasPrefix(kb.ViewingKey, "zxviews1"))
	require.True(t, strings.HasPrefix(kb.Address(), "zs1"))
	require.Len(t, kb.Fingerprint, 16)

	again, err := Derive(testMnemonic, "", 0, &MainNet)
	require.NoError(t, err)
	require.Equal(t, kb.SpendingKey, again.SpendingKey)
	require.Equal(t, kb.ViewingKey, again.ViewingKey)
	require.Equal(t, kb.Address(), again.Address())
}

func TestDeriveKeyBundleAccounts(t *testing.T) {
	w, err := NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: testMnemonic,
		Network:  &TestNet,
	})
	require.NoError(t, err)

	first, err := w.DeriveKeyBundle(0)
	require.NoError(t, err)
	second, err := w.DeriveKeyBundle(1)
	require.NoError(t, err)

	require.NotEqual(t, first.SpendingKey, second.SpendingKey)
	require.NotEqual(t, first.Fingerprint, second.Fingerprint)
	require.Equal(t, "m/32'/1'/1'", second.DerivationPath)
	require.True(t, strings.HasPrefix(first.SpendingKey, "secret-extended-key-test1"))
	require.True(t, strings.HasPrefix(first.Address(), "ztestsapling1"))

	mainnet, err := Derive(testMnemonic, "", 0, &MainNet)
	require.NoError(t, err)
	require.NotEqual(t, mainnet.Fingerprint, first.Fingerprint)

	withPassphrase, err := Derive(testMnemonic, "TREZOR", 0, &TestNet)
	require.NoError(t, err)
	require.NotEqual(t, withPassphrase.SpendingKey, first.SpendingKey)

	_, err = w.DeriveKeyBundle(MaxHardenedValue + 1)
	require.ErrorIs(t, err, ErrInvalidAccount)

	w.Close()
	_, err = w.DeriveKeyBundle(2)
	require.ErrorIs(t, err, ErrNullMasterKey)
}

func TestFailingNewWalletFromMnemonic(t *testing.T) {
	tests := []struct {
		name string
		opts NewWalletFromMnemonicOpts
		err  error
	}{
		{
			name: "null mnemonic",
			opts: NewWalletFromMnemonicOpts{Network: &MainNet},
			err:  ErrNullMnemonic,
		},
		{
			name: "bad checksum",
			opts: NewWalletFromMnemonicOpts{
				Mnemonic: strings.Split(strings.Repeat("abandon ", 11)+"abandon", " "),
				Network:  &MainNet,
			},
			err: ErrInvalidMnemonic,
		},
		{
			name: "unknown word",
			opts: NewWalletFromMnemonicOpts{
				Mnemonic: strings.Split(strings.Repeat("abandon ", 11)+"zcashy", " "),
				Network:  &MainNet,
			},
			err: ErrInvalidMnemonic,
		},
		{
			name: "null network",
			opts: NewWalletFromMnemonicOpts{Mnemonic: testMnemonic},
			err:  ErrNullNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWalletFromMnemonic(tt.opts)
			assert.Nil(t, w)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestKeyBundleDoesNotLeakKeys(t *testing.T) {
	kb, err := Derive(testMnemonic, "", 0, &MainNet)
	require.NoError(t, err)

	require.NotContains(t, kb.String(), kb.SpendingKey)
	require.Contains(t, kb.String(), kb.Fingerprint)
}

func TestNetworkByName(t *testing.T) {
	n, err := NetworkByName("mainnet")
	require.NoError(t, err)
	require.Equal(t, uint32(133), n.CoinType)

	n, err = NetworkByName("testnet")
	require.NoError(t, err)
	require.Equal(t, uint64(280000), n.SaplingActivationHeight)

	_, err = NetworkByName("regtest")
	require.Error(t, err)
}
