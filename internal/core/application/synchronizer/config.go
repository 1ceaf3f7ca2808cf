package synchronizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/shielded-wallet/zsyncd/internal/core/ports"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultBatchSize            = 100
	DefaultPollInterval         = 30 * time.Second
	DefaultConfirmations        = 10
	DefaultRewindMargin         = 10
	DefaultRetryInitialInterval = time.Second
	DefaultRetryMaxInterval     = 5 * time.Minute
	DefaultMaxReorgs            = 5
	DefaultTxExpiryDelta        = 40

	// maxSubmitAttempts is the number of failed broadcasts after which an
	// unsubmitted tx is given up and reported as expired.
	maxSubmitAttempts = 10
)

var (
	ErrNullStore     = errors.New("chain cache must not be null")
	ErrNullSource    = errors.New("block source must not be null")
	ErrNullKeyBundle = errors.New("key bundle must not be null")
	ErrInvalidConfig = errors.New("invalid synchronizer config")
)

// Config tunes the sync loop. Zero values are replaced with defaults.
type Config struct {
	// BatchSize is the max number of blocks fetched and cached at once.
	BatchSize uint64
	// PollInterval is how often the tip is polled once synced.
	PollInterval time.Duration
	// Confirmations required for a note to count in the verified balance.
	// Nil means DefaultConfirmations, zero counts every mined note.
	Confirmations *uint64
	// RewindMargin is the number of extra blocks dropped below a
	// discontinuity.
	RewindMargin uint64
	// BirthdayHeight is the first height scanned. Defaults to the sapling
	// activation height of the network.
	BirthdayHeight       uint64
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// MaxReorgs is the max number of consecutive rewinds without progress.
	MaxReorgs int
	// TxExpiryDelta is the number of blocks a submitted tx has to get mined.
	TxExpiryDelta uint64
}

// Uint64 returns a pointer to v, for the optional fields of Config.
func Uint64(v uint64) *uint64 {
	return &v
}

func (c *Config) setDefaults(network *wallet.Network) {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Confirmations == nil {
		c.Confirmations = Uint64(DefaultConfirmations)
	}
	if c.RetryInitialInterval == 0 {
		c.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if c.RetryMaxInterval == 0 {
		c.RetryMaxInterval = DefaultRetryMaxInterval
	}
	if c.MaxReorgs == 0 {
		c.MaxReorgs = DefaultMaxReorgs
	}
	if c.TxExpiryDelta == 0 {
		c.TxExpiryDelta = DefaultTxExpiryDelta
	}
	if c.BirthdayHeight == 0 && network != nil {
		c.BirthdayHeight = network.SaplingActivationHeight
	}
}

func (c Config) validate() error {
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll interval must not be negative", ErrInvalidConfig)
	}
	if c.RetryInitialInterval < 0 || c.RetryMaxInterval < 0 {
		return fmt.Errorf("%w: retry intervals must not be negative", ErrInvalidConfig)
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		return fmt.Errorf(
			"%w: retry max interval must be greater than initial one",
			ErrInvalidConfig,
		)
	}
	if c.MaxReorgs < 0 {
		return fmt.Errorf("%w: max reorgs must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Opts groups the collaborators of a synchronizer.
type Opts struct {
	Store  domain.ChainCache
	Source ports.BlockSource
	Keys   *wallet.KeyBundle
	Config Config
	// Logger defaults to the standard logrus logger.
	Logger log.FieldLogger
	// Registerer is optional, metrics are not exported if nil.
	Registerer prometheus.Registerer
}

func (o *Opts) validate() error {
	if o.Store == nil {
		return ErrNullStore
	}
	if o.Source == nil {
		return ErrNullSource
	}
	if o.Keys == nil {
		return ErrNullKeyBundle
	}
	o.Config.setDefaults(o.Keys.Network())
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	return o.Config.validate()
}
