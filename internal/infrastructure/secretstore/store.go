// Package secretstore implements ports.SecretStore on top of a
// password-encrypted securestore.
package secretstore

import (
	"errors"

	"github.com/shielded-wallet/zsyncd/pkg/securestore"
	boltsecurestore "github.com/shielded-wallet/zsyncd/pkg/securestore/bolt"
)

const filename = "secrets.db"

var secretsBucket = []byte("secrets")

// Store is a ports.SecretStore whose values are encrypted at rest. It must
// be unlocked with the password before any read or write.
type Store struct {
	store securestore.SecureStorage
}

// NewStore opens, or creates, the secret store in the given directory.
func NewStore(datadir string) (*Store, error) {
	store, err := boltsecurestore.NewSecureStorage(datadir, filename)
	if err != nil {
		return nil, err
	}
	return &Store{store}, nil
}

// NewStoreFromSecureStorage wraps an already opened secure storage.
func NewStoreFromSecureStorage(store securestore.SecureStorage) *Store {
	return &Store{store}
}

func (s *Store) IsLocked() bool {
	return s.store.IsLocked()
}

// Unlock unlocks the store, creating it with the given password at first
// use.
func (s *Store) Unlock(password string) error {
	pwd := []byte(password)
	if err := s.store.CreateUnlock(&pwd); err != nil {
		return err
	}
	return s.store.CreateBucket(secretsBucket)
}

func (s *Store) Lock() {
	s.store.Lock()
}

func (s *Store) ChangePassword(oldPwd, newPwd string) error {
	return s.store.ChangePassword([]byte(oldPwd), []byte(newPwd))
}

func (s *Store) Close() error {
	return s.store.Close()
}

func (s *Store) Get(key string) ([]byte, error) {
	value, err := s.store.GetFromBucket(secretsBucket, []byte(key))
	if err != nil {
		if errors.Is(err, boltsecurestore.ErrDataNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (s *Store) Set(key string, value []byte) error {
	return s.store.AddToBucket(secretsBucket, []byte(key), value)
}

func (s *Store) Delete(key string) error {
	return s.store.RemoveFromBucket(secretsBucket, []byte(key))
}
