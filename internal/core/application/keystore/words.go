package keystore

import (
	"encoding/binary"
	"strings"

	"github.com/shielded-wallet/zsyncd/internal/core/ports"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
)

const (
	wordsKey    = "words"
	birthdayKey = "words_birthday"
)

// WordsManager stores the seed words of the wallet along with the chain
// height at which they were created, used as wallet birthday.
type WordsManager struct {
	store ports.SecretStore
}

// NewWordsManager ...
func NewWordsManager(store ports.SecretStore) (*WordsManager, error) {
	if store == nil {
		return nil, ErrNullSecretStore
	}
	return &WordsManager{store}, nil
}

// Words returns the stored words, nil if none.
func (m *WordsManager) Words() ([]string, error) {
	stored, err := m.store.Get(wordsKey)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}
	return strings.Fields(string(stored)), nil
}

// Save validates and stores the words. A zero birthday means the creation
// height is unknown.
func (m *WordsManager) Save(words []string, birthday uint64) error {
	if err := wallet.ValidateMnemonic(words); err != nil {
		return err
	}
	if err := m.store.Set(wordsKey, []byte(strings.Join(words, " "))); err != nil {
		return err
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, birthday)
	return m.store.Set(birthdayKey, buf)
}

// Birthday returns the stored creation height, 0 if unknown.
func (m *WordsManager) Birthday() (uint64, error) {
	stored, err := m.store.Get(birthdayKey)
	if err != nil {
		return 0, err
	}
	if len(stored) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(stored), nil
}

// Clear removes words and birthday.
func (m *WordsManager) Clear() error {
	if err := m.store.Delete(wordsKey); err != nil {
		return err
	}
	return m.store.Delete(birthdayKey)
}
