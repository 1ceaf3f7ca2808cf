package domain

// AccountKind tells how the keys of an account were created.
type AccountKind int

const (
	// AccountMnemonic accounts derive their keys from a seed phrase.
	AccountMnemonic AccountKind = iota
	// AccountPrivateKey accounts are imported from a raw key.
	AccountPrivateKey
	// AccountAddress accounts are watch-only.
	AccountAddress
)

func (k AccountKind) String() string {
	switch k {
	case AccountMnemonic:
		return "mnemonic"
	case AccountPrivateKey:
		return "private-key"
	case AccountAddress:
		return "address"
	default:
		return "unknown"
	}
}

// AccountType ...
type AccountType struct {
	Kind AccountKind
	// Words and Salt are set for mnemonic accounts only.
	Words []string
	Salt  string
	// Key is set for private key and address accounts.
	Key string
}

// Account is a wallet account as known by the rest of the application.
type Account struct {
	ID   string
	Name string
	Type AccountType
	// BirthdayHeight is the chain height at account creation, 0 if unknown.
	BirthdayHeight uint64
}

// NewMnemonicAccount ...
func NewMnemonicAccount(id, name string, words []string, salt string) Account {
	return Account{
		ID:   id,
		Name: name,
		Type: AccountType{
			Kind:  AccountMnemonic,
			Words: words,
			Salt:  salt,
		},
	}
}
