// Package adapter exposes the shielded wallet of an account through the
// start/stop/refresh/address/balance interface used by the rest of the
// application.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shielded-wallet/zsyncd/internal/core/application/synchronizer"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/shielded-wallet/zsyncd/internal/core/ports"
	dbbadger "github.com/shielded-wallet/zsyncd/internal/infrastructure/storage/db/badger"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Decimals is the number of decimal places of a coin, balances are stored
// in its smallest unit.
const Decimals = 8

var (
	ErrNullNetwork = errors.New("network must not be null")
	ErrNullSource  = errors.New("block source must not be null")
)

// Opts ...
type Opts struct {
	Network *wallet.Network
	// Datadir is where the chain cache is stored, in-memory if empty.
	Datadir string
	// Source is shared by all the adapters and is not closed by them.
	Source       ports.BlockSource
	AccountIndex uint32
	Config       synchronizer.Config
	Logger       log.FieldLogger
	Registerer   prometheus.Registerer
}

func (o *Opts) validate() error {
	if o.Network == nil {
		return ErrNullNetwork
	}
	if o.Source == nil {
		return ErrNullSource
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	return nil
}

// BalanceInfo is the balance along with the sync status it refers to. The
// balance is stale if the wallet is not synced with the chain tip.
type BalanceInfo struct {
	Balance           decimal.Decimal
	VerifiedBalance   decimal.Decimal
	State             domain.SyncState
	Stale             bool
	Error             string
	LastScannedHeight uint64
	ChainTipHeight    uint64
}

// Adapter composes keys, chain cache and synchronizer of one wallet
// account.
type Adapter struct {
	account domain.Account
	datadir string
	wallet  *wallet.Wallet
	keys    *wallet.KeyBundle
	store   domain.ChainCache
	sync    *synchronizer.Synchronizer
	log     log.FieldLogger
}

// New derives the keys of the account and opens its chain cache. Only
// accounts created from a mnemonic are supported.
func New(account domain.Account, opts Opts) (*Adapter, error) {
	if account.Type.Kind != domain.AccountMnemonic {
		return nil, fmt.Errorf(
			"%w: %s", domain.ErrUnsupportedAccountType, account.Type.Kind,
		)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic:   account.Type.Words,
		Passphrase: account.Type.Salt,
		Network:    opts.Network,
	})
	if err != nil {
		return nil, err
	}
	keys, err := w.DeriveKeyBundle(opts.AccountIndex)
	if err != nil {
		w.Close()
		return nil, err
	}

	logger := opts.Logger.WithField("account", keys.Fingerprint)
	store, err := dbbadger.NewChainCache(
		opts.Datadir, keys.StorageKey(), dbbadger.NewLogger(logger),
	)
	if err != nil {
		w.Close()
		return nil, err
	}

	// The height recorded at account creation wins over the configured one.
	cfg := opts.Config
	if account.BirthdayHeight > 0 {
		cfg.BirthdayHeight = account.BirthdayHeight
	}

	sync, err := synchronizer.New(synchronizer.Opts{
		Store:      store,
		Source:     opts.Source,
		Keys:       keys,
		Config:     cfg,
		Logger:     opts.Logger,
		Registerer: opts.Registerer,
	})
	if err != nil {
		store.Close()
		w.Close()
		return nil, err
	}

	return &Adapter{
		account: account,
		datadir: opts.Datadir,
		wallet:  w,
		keys:    keys,
		store:   store,
		sync:    sync,
		log:     logger,
	}, nil
}

// ID returns the id of the wallet account.
func (a *Adapter) ID() string {
	return a.account.ID
}

// Name ...
func (a *Adapter) Name() string {
	return a.account.Name
}

// Fingerprint ...
func (a *Adapter) Fingerprint() string {
	return a.keys.Fingerprint
}

// Synchronizer gives access to subscriptions and lower level operations.
func (a *Adapter) Synchronizer() *synchronizer.Synchronizer {
	return a.sync
}

// Start starts syncing, retrying on network failures. Starting a running
// adapter is a no-op.
func (a *Adapter) Start() error {
	return a.start(true)
}

// Stop ...
func (a *Adapter) Stop() {
	a.sync.Stop()
}

// Refresh starts a sync without retry if the adapter is not running,
// otherwise it makes the running one poll the chain tip right away.
func (a *Adapter) Refresh() error {
	return a.start(false)
}

func (a *Adapter) start(retry bool) error {
	if err := a.sync.Start(retry); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			a.log.Debug("synchronizer already running")
			a.sync.Wake()
			return nil
		}
		return err
	}
	return nil
}

// Address returns the default shielded address of the given account of the
// wallet.
func (a *Adapter) Address(accountIndex uint32) (string, error) {
	keys, err := a.wallet.DeriveKeyBundle(accountIndex)
	if err != nil {
		return "", err
	}
	return keys.PaymentAddress().Encode()
}

// Balance returns the total of the unspent notes.
func (a *Adapter) Balance(ctx context.Context) (decimal.Decimal, error) {
	balance, err := a.sync.Balance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return toDecimal(balance.Total), nil
}

// VerifiedBalance returns the total of the unspent notes with enough
// confirmations to be spent.
func (a *Adapter) VerifiedBalance(ctx context.Context) (decimal.Decimal, error) {
	balance, err := a.sync.Balance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return toDecimal(balance.Verified), nil
}

// BalanceInfo ...
func (a *Adapter) BalanceInfo(ctx context.Context) (*BalanceInfo, error) {
	status := a.sync.Status()
	balance, err := a.sync.Balance(ctx)
	if err != nil {
		return nil, err
	}

	info := &BalanceInfo{
		Balance:           toDecimal(balance.Total),
		VerifiedBalance:   toDecimal(balance.Verified),
		State:             status.State,
		Stale:             status.State != domain.SyncSynced,
		LastScannedHeight: balance.LastScannedHeight,
		ChainTipHeight:    balance.ChainTipHeight,
	}
	if status.Err != nil {
		info.Error = status.Err.Error()
	}
	return info, nil
}

// State ...
func (a *Adapter) State() domain.SyncStatus {
	return a.sync.Status()
}

// SubmitTransaction queues the raw tx for broadcast.
func (a *Adapter) SubmitTransaction(
	ctx context.Context, raw []byte,
) (*domain.PendingTransaction, error) {
	return a.sync.SubmitTransaction(ctx, raw)
}

// DebugSnapshot returns a human readable summary of the adapter for
// diagnostics. It contains no key material.
func (a *Adapter) DebugSnapshot(ctx context.Context) string {
	var b strings.Builder

	address, err := a.Address(a.keys.AccountIndex)
	if err != nil {
		address = fmt.Sprintf("<%s>", err)
	}
	status := a.sync.Status()

	fmt.Fprintf(&b, "account: %s (%s)\n", a.account.Name, a.account.ID)
	fmt.Fprintf(&b, "address: %s\n", address)
	fmt.Fprintf(&b, "keys: %s\n", a.keys)
	fmt.Fprintf(&b, "state: %s\n", status.State)
	if status.Err != nil {
		fmt.Fprintf(&b, "error: %s\n", status.Err)
	}
	fmt.Fprintf(&b, "scanned height: %d\n", status.LastScannedHeight)
	fmt.Fprintf(&b, "chain tip height: %d\n", status.ChainTipHeight)

	balance, err := a.sync.Balance(ctx)
	if err != nil {
		fmt.Fprintf(&b, "balance: <%s>\n", err)
		return b.String()
	}
	fmt.Fprintf(&b, "balance: %s\n", toDecimal(balance.Total))
	fmt.Fprintf(&b, "verified balance: %s\n", toDecimal(balance.Verified))
	return b.String()
}

// Reset stops syncing, drops the chain cache and starts syncing again from
// the birthday height. It recovers an account whose cache got corrupted.
func (a *Adapter) Reset(ctx context.Context) error {
	a.sync.Stop()
	if err := a.sync.Reset(ctx); err != nil {
		return err
	}
	a.log.Info("resyncing account from scratch")
	return a.start(true)
}

// Destroy closes the adapter and deletes its chain cache from disk.
func (a *Adapter) Destroy() error {
	storageKey := a.keys.StorageKey()
	if err := a.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close chain cache")
	}
	if err := dbbadger.RemoveChainCache(a.datadir, storageKey); err != nil {
		return err
	}
	a.log.Info("chain cache deleted")
	return nil
}

// Close stops syncing and releases chain cache and keys.
func (a *Adapter) Close() error {
	a.sync.Close()
	err := a.store.Close()
	a.wallet.Close()
	return err
}

func toDecimal(amount uint64) decimal.Decimal {
	return decimal.New(int64(amount), -Decimals)
}
