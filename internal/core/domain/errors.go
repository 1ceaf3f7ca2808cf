package domain

import (
	"errors"
	"fmt"

	"github.com/shielded-wallet/zsyncd/pkg/wallet"
)

var (
	// ErrInvalidMnemonic is fatal, the user must enter the seed again.
	ErrInvalidMnemonic = wallet.ErrInvalidMnemonic
	// ErrUnsupportedAccountType is returned when building an adapter for an
	// account whose keys can not be derived from a seed.
	ErrUnsupportedAccountType = errors.New("unsupported account type")
	// ErrChainDiscontinuity is recovered by rewinding the chain cache.
	ErrChainDiscontinuity = errors.New("chain discontinuity")
	// ErrNetworkFailure wraps any error returned by the remote endpoint.
	ErrNetworkFailure = errors.New("network failure")
	// ErrStorageCorruption means the account must be fully resynced.
	ErrStorageCorruption = errors.New("storage corruption")
	// ErrAlreadyRunning is returned when starting a running synchronizer.
	ErrAlreadyRunning = errors.New("synchronizer is already running")

	// ErrBlockNotFound ...
	ErrBlockNotFound = errors.New("block not found")
	// ErrPendingTxNotFound ...
	ErrPendingTxNotFound = errors.New("pending transaction not found")
	// ErrPendingTxAlreadyExists ...
	ErrPendingTxAlreadyExists = errors.New("pending transaction already exists")
	// ErrEmptyTransaction ...
	ErrEmptyTransaction = errors.New("raw transaction must not be empty")
)

// ChainDiscontinuityError tells at which height the chain stops being
// continuous. It matches ErrChainDiscontinuity with errors.Is.
type ChainDiscontinuityError struct {
	Height   uint64
	Expected []byte
	Got      []byte
}

func (e *ChainDiscontinuityError) Error() string {
	return fmt.Sprintf(
		"%s at height %d: expected hash %x, got %x",
		ErrChainDiscontinuity, e.Height, e.Expected, e.Got,
	)
}

func (e *ChainDiscontinuityError) Is(target error) bool {
	return target == ErrChainDiscontinuity
}
