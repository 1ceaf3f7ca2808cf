package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	gcInterval     = 30 * time.Minute
	gcDiscardRatio = 0.5
	dbSubdir       = "db"
)

// ErrNullStorageKey ...
var ErrNullStorageKey = errors.New("storage key must not be null")

// chainCache implements domain.ChainCache. Blocks are stored under
// height-ordered raw keys, everything else goes through badgerhold queries.
// Both use the same codec.
type chainCache struct {
	store *badgerhold.Store

	closeOnce sync.Once
	quit      chan struct{}
}

// NewChainCache opens (or creates if not exists) the chain cache of an
// account in <baseDbDir>/db/<storageKey>. An empty baseDbDir gives an
// in-memory store.
func NewChainCache(
	baseDbDir, storageKey string, logger badger.Logger,
) (domain.ChainCache, error) {
	dbDir := chainCacheDir(baseDbDir, storageKey)
	store, err := createDb(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening chain cache db: %w", err)
	}

	cache := &chainCache{
		store: store,
		quit:  make(chan struct{}),
	}
	if len(dbDir) > 0 {
		go cache.runValueLogGC()
	}
	return cache, nil
}

// RemoveChainCache deletes from disk the chain cache of an account. The
// cache must be closed.
func RemoveChainCache(baseDbDir, storageKey string) error {
	dbDir := chainCacheDir(baseDbDir, storageKey)
	if len(dbDir) <= 0 {
		return nil
	}
	if len(storageKey) <= 0 {
		return ErrNullStorageKey
	}
	if err := os.RemoveAll(dbDir); err != nil {
		return fmt.Errorf("removing chain cache db: %w", err)
	}
	return nil
}

func chainCacheDir(baseDbDir, storageKey string) string {
	if len(baseDbDir) <= 0 {
		return ""
	}
	return filepath.Join(baseDbDir, dbSubdir, storageKey)
}

func (c *chainCache) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.Badger().DropAll()
}

func (c *chainCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.quit)
		err = c.store.Close()
	})
	return err
}

func (c *chainCache) runValueLogGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			if err := c.store.Badger().RunValueLogGC(gcDiscardRatio); err != nil &&
				err != badger.ErrNoRewrite {
				log.WithError(err).Warn("chain cache value log gc failed")
			}
		}
	}
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
		opts.SyncWrites = true
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          decode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}

// decode marks any stored record that can not be decoded as corrupted.
func decode(data []byte, value interface{}) error {
	if err := badgerhold.DefaultDecode(data, value); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStorageCorruption, err)
	}
	return nil
}

// NewLogger adapts a logrus logger to badger, demoting badger's info
// messages to debug.
func NewLogger(logger log.FieldLogger) badger.Logger {
	return badgerLogger{logger}
}

type badgerLogger struct {
	log.FieldLogger
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.FieldLogger.Debugf(format, args...)
}
