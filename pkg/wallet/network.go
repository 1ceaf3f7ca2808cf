package wallet

import "fmt"

// Network holds the parameters that make keys and addresses of a wallet
// specific to one chain.
type Network struct {
	Name string
	// CoinType is the SLIP-44 coin type used as second level of the
	// derivation path.
	CoinType uint32
	// AddressHRP is the human readable part of shielded payment addresses.
	AddressHRP string
	// ViewingKeyHRP is the human readable part of encoded viewing keys.
	ViewingKeyHRP string
	// SpendingKeyHRP is the human readable part of encoded spending keys.
	SpendingKeyHRP string
	// SaplingActivationHeight is the lowest height a shielded note can be
	// found at, and therefore the lowest possible wallet birthday.
	SaplingActivationHeight uint64
}

var (
	// MainNet ...
	MainNet = Network{
		Name:                    "mainnet",
		CoinType:                133,
		AddressHRP:              "zs",
		ViewingKeyHRP:           "zxviews",
		SpendingKeyHRP:          "secret-extended-key-main",
		SaplingActivationHeight: 419200,
	}
	// TestNet ...
	TestNet = Network{
		Name:                    "testnet",
		CoinType:                1,
		AddressHRP:              "ztestsapling",
		ViewingKeyHRP:           "zxviewtestsapling",
		SpendingKeyHRP:          "secret-extended-key-test",
		SaplingActivationHeight: 280000,
	}
)

// NetworkByName returns the params of the network with the given name.
func NetworkByName(name string) (*Network, error) {
	switch name {
	case MainNet.Name:
		return &MainNet, nil
	case TestNet.Name:
		return &TestNet, nil
	default:
		return nil, fmt.Errorf(
			"unknown network %q, must be either %q or %q",
			name, MainNet.Name, TestNet.Name,
		)
	}
}
