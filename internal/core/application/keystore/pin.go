// Package keystore keeps the user secrets, pin and seed words, in a
// ports.SecretStore.
package keystore

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/shielded-wallet/zsyncd/internal/core/ports"
	"golang.org/x/crypto/scrypt"
)

const (
	pinKey = "pin"

	pinSaltLen = 16
	pinHashLen = 32
	scryptN    = 1 << 14
	scryptR    = 8
	scryptP    = 1
)

var (
	ErrNullSecretStore = errors.New("secret store must not be null")
	ErrEmptyPin        = errors.New("pin must not be empty")
	ErrMalformedPin    = errors.New("stored pin is malformed")
)

// PinManager stores a salted hash of the user pin, never the pin itself.
type PinManager struct {
	store ports.SecretStore
}

// NewPinManager ...
func NewPinManager(store ports.SecretStore) (*PinManager, error) {
	if store == nil {
		return nil, ErrNullSecretStore
	}
	return &PinManager{store}, nil
}

// IsPinned returns whether a pin has been set.
func (m *PinManager) IsPinned() (bool, error) {
	stored, err := m.store.Get(pinKey)
	if err != nil {
		return false, err
	}
	return stored != nil, nil
}

// Store replaces the current pin. A nil pin removes it.
func (m *PinManager) Store(pin *string) error {
	if pin == nil {
		return m.store.Delete(pinKey)
	}
	if *pin == "" {
		return ErrEmptyPin
	}

	salt := make([]byte, pinSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	hash, err := hashPin(*pin, salt)
	if err != nil {
		return err
	}
	return m.store.Set(pinKey, append(salt, hash...))
}

// Validate returns whether the given pin matches the stored one. It is
// always false if no pin is set.
func (m *PinManager) Validate(pin string) (bool, error) {
	stored, err := m.store.Get(pinKey)
	if err != nil {
		return false, err
	}
	if stored == nil {
		return false, nil
	}
	if len(stored) != pinSaltLen+pinHashLen {
		return false, ErrMalformedPin
	}

	salt, expected := stored[:pinSaltLen], stored[pinSaltLen:]
	hash, err := hashPin(pin, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(hash, expected) == 1, nil
}

func hashPin(pin string, salt []byte) ([]byte, error) {
	hash, err := scrypt.Key([]byte(pin), salt, scryptN, scryptR, scryptP, pinHashLen)
	if err != nil {
		return nil, fmt.Errorf("failed to hash pin: %s", err)
	}
	return hash, nil
}
