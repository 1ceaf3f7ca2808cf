package ports

// SecretStore is an opaque key/value store for secrets like pin and seed
// words. Get returns a nil value and no error for missing keys.
type SecretStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
