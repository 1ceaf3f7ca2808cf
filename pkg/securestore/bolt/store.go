// Package boltsecurestore implements securestore.SecureStorage on a bbolt
// file. Values are sealed with a snacl key, itself stored sealed with the
// password under the root bucket.
package boltsecurestore

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/btcsuite/btcwallet/snacl"
	"github.com/shielded-wallet/zsyncd/pkg/securestore"
	bolt "go.etcd.io/bbolt"
)

const openTimeout = time.Second

var (
	rootBucket = []byte("root")
	// sealedKeyID is reserved in every bucket.
	sealedKeyID = []byte("enckey")
)

type store struct {
	db *bolt.DB

	keyLock sync.RWMutex
	key     *snacl.SecretKey
}

// NewSecureStorage opens, or creates, the db file datadir/filename.
func NewSecureStorage(datadir, filename string) (securestore.SecureStorage, error) {
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return nil, err
	}

	db, err := bolt.Open(
		filepath.Join(datadir, filename), 0600, &bolt.Options{Timeout: openTimeout},
	)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) IsLocked() bool {
	s.keyLock.RLock()
	defer s.keyLock.RUnlock()
	return s.key == nil
}

func (s *store) Lock() {
	s.keyLock.Lock()
	defer s.keyLock.Unlock()
	s.wipeKey()
}

func (s *store) Close() error {
	s.keyLock.Lock()
	defer s.keyLock.Unlock()
	s.wipeKey()
	return s.db.Close()
}

func (s *store) CreateUnlock(password *[]byte) error {
	if password == nil {
		if s.IsLocked() {
			return ErrPasswordRequired
		}
		return nil
	}

	s.keyLock.Lock()
	defer s.keyLock.Unlock()
	if s.key != nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := rootOf(tx)
		if err != nil {
			return err
		}

		if sealed := root.Get(sealedKeyID); len(sealed) > 0 {
			key, err := openKey(sealed, *password)
			if err != nil {
				return err
			}
			s.key = key
			return nil
		}

		key, err := snacl.NewSecretKey(
			password, snacl.DefaultN, snacl.DefaultR, snacl.DefaultP,
		)
		if err != nil {
			return err
		}
		if err := root.Put(sealedKeyID, key.Marshal()); err != nil {
			return err
		}
		s.key = key
		return nil
	})
}

// ChangePassword runs in a single bolt transaction, a failure leaves every
// value sealed with the old key.
func (s *store) ChangePassword(oldPw, newPw []byte) error {
	if oldPw == nil || newPw == nil {
		return ErrPasswordRequired
	}
	if s.IsLocked() {
		return ErrStoreLocked
	}

	newKey, err := snacl.NewSecretKey(
		&newPw, snacl.DefaultN, snacl.DefaultR, snacl.DefaultP,
	)
	if err != nil {
		return err
	}

	s.keyLock.Lock()
	defer s.keyLock.Unlock()
	if s.key == nil {
		return ErrStoreLocked
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := rootOf(tx)
		if err != nil {
			return err
		}
		sealed := root.Get(sealedKeyID)
		if len(sealed) == 0 {
			return ErrEncKeyNotFound
		}
		oldKey, err := openKey(sealed, oldPw)
		if err != nil {
			return err
		}

		if err := reseal(root, oldKey, newKey); err != nil {
			return err
		}
		if err := root.Put(sealedKeyID, newKey.Marshal()); err != nil {
			return err
		}

		s.wipeKey()
		s.key = newKey
		return nil
	})
}

func (s *store) CreateBucket(name []byte) error {
	switch {
	case len(name) == 0:
		return ErrMissingBucketKey
	case bytes.Equal(name, sealedKeyID):
		return ErrForbiddenBucketKey
	}
	if s.IsLocked() {
		return ErrStoreLocked
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := rootOf(tx)
		if err != nil {
			return err
		}
		_, err = root.CreateBucketIfNotExists(name)
		return err
	})
}

// AddToBucket writes to the root bucket when bucket is empty.
func (s *store) AddToBucket(bucket, key, value []byte) error {
	if err := checkDataKey(key); err != nil {
		return err
	}
	if len(value) == 0 {
		return ErrMissingData
	}

	return s.withKey(func(secret *snacl.SecretKey) error {
		return s.db.Update(func(tx *bolt.Tx) error {
			b, err := bucketOf(tx, bucket)
			if err != nil {
				return err
			}
			sealed, err := secret.Encrypt(value)
			if err != nil {
				return err
			}
			return b.Put(key, sealed)
		})
	})
}

// GetFromBucket reads from the root bucket when bucket is empty.
func (s *store) GetFromBucket(bucket, key []byte) ([]byte, error) {
	if err := checkDataKey(key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.withKey(func(secret *snacl.SecretKey) error {
		return s.db.View(func(tx *bolt.Tx) error {
			b, err := bucketOf(tx, bucket)
			if err != nil {
				return err
			}
			sealed := b.Get(key)
			if len(sealed) == 0 {
				return ErrDataNotFound
			}
			value, err = secret.Decrypt(sealed)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// RemoveFromBucket is a no-op for a missing key.
func (s *store) RemoveFromBucket(bucket, key []byte) error {
	if err := checkDataKey(key); err != nil {
		return err
	}

	return s.withKey(func(*snacl.SecretKey) error {
		return s.db.Update(func(tx *bolt.Tx) error {
			b, err := bucketOf(tx, bucket)
			if err != nil {
				return err
			}
			return b.Delete(key)
		})
	})
}

// withKey runs fn with the unlocked key, held for reading.
func (s *store) withKey(fn func(*snacl.SecretKey) error) error {
	s.keyLock.RLock()
	defer s.keyLock.RUnlock()
	if s.key == nil {
		return ErrStoreLocked
	}
	return fn(s.key)
}

// wipeKey must be called with keyLock held.
func (s *store) wipeKey() {
	if s.key != nil {
		s.key.Zero()
		s.key = nil
	}
}

func checkDataKey(key []byte) error {
	if len(key) == 0 {
		return ErrMissingDataKey
	}
	if bytes.Equal(key, sealedKeyID) {
		return ErrForbiddenDataKey
	}
	return nil
}

func openKey(sealed, password []byte) (*snacl.SecretKey, error) {
	key := &snacl.SecretKey{}
	if err := key.Unmarshal(sealed); err != nil {
		return nil, err
	}
	if err := key.DeriveKey(&password); err != nil {
		return nil, ErrInvalidPassword
	}
	return key, nil
}

func rootOf(tx *bolt.Tx) (*bolt.Bucket, error) {
	root := tx.Bucket(rootBucket)
	if root == nil {
		return nil, ErrRootKeyBucketNotFound
	}
	return root, nil
}

func bucketOf(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	root, err := rootOf(tx)
	if err != nil || len(name) == 0 {
		return root, err
	}
	b := root.Bucket(name)
	if b == nil {
		return nil, ErrBucketNotFound
	}
	return b, nil
}

// reseal decrypts every value of b and its nested buckets with oldKey and
// seals it with newKey.
func reseal(b *bolt.Bucket, oldKey, newKey *snacl.SecretKey) error {
	values := make(map[string][]byte)
	var nested [][]byte

	if err := b.ForEach(func(k, v []byte) error {
		switch {
		case bytes.Equal(k, sealedKeyID):
			return nil
		case v == nil:
			nested = append(nested, append([]byte{}, k...))
			return nil
		}
		plain, err := oldKey.Decrypt(v)
		if err != nil {
			return err
		}
		values[string(k)], err = newKey.Encrypt(plain)
		return err
	}); err != nil {
		return err
	}

	for k, v := range values {
		if err := b.Put([]byte(k), v); err != nil {
			return err
		}
	}
	for _, name := range nested {
		if err := reseal(b.Bucket(name), oldKey, newKey); err != nil {
			return err
		}
	}
	return nil
}
