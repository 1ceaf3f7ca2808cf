// Package securestore defines a key/value store whose values are encrypted
// at rest with a key derived from a password.
package securestore

// SecureStorage keeps encrypted values grouped in named buckets. Reads and
// writes fail while the store is locked.
type SecureStorage interface {
	// CreateUnlock derives the encryption key from the password. At first
	// use a new key is generated and stored, sealed with the password.
	CreateUnlock(password *[]byte) error
	IsLocked() bool
	// Lock wipes the encryption key from memory.
	Lock()
	// ChangePassword seals the values again with a key derived from newPw.
	ChangePassword(oldPw, newPw []byte) error
	Close() error

	// CreateBucket is a no-op for an existing bucket.
	CreateBucket(bucket []byte) error
	// AddToBucket overwrites any value stored under key.
	AddToBucket(bucket, key, value []byte) error
	GetFromBucket(bucket, key []byte) ([]byte, error)
	RemoveFromBucket(bucket, key []byte) error
}
