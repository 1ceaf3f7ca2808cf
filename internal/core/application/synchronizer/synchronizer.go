// Package synchronizer keeps the chain cache of one account in sync with the
// remote endpoint.
//
// A single worker goroutine owns every write to the chain cache. It fetches
// batches of compact blocks, caches them, scans them for notes and commits
// notes and checkpoint block by block. Readers only see committed state.
package synchronizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shielded-wallet/zsyncd/internal/core/application/scanner"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/shielded-wallet/zsyncd/internal/core/ports"
	"github.com/shielded-wallet/zsyncd/pkg/notify"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
	log "github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("synchronizer is closed")

// Synchronizer drives the sync state machine of one account:
// stopped -> starting -> syncing -> synced, syncing -> error -> starting
// when retrying, and any state -> stopped.
type Synchronizer struct {
	store   domain.ChainCache
	source  ports.BlockSource
	keys    *wallet.KeyBundle
	cfg     Config
	log     log.FieldLogger
	metrics *metrics

	status *notify.StateRelay[domain.SyncStatus]
	events *notify.EventQueue[domain.SyncEvent]
	wake   chan struct{}

	// opLock serializes Start, Stop, Rewind, Reset and Close.
	opLock sync.Mutex
	// lock guards the fields below and every status publication.
	lock   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New returns a stopped synchronizer. The status is initialized from the
// persisted checkpoint.
func New(opts Opts) (*Synchronizer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cp, err := opts.Store.GetCheckpoint(context.Background())
	if err != nil {
		return nil, err
	}

	return &Synchronizer{
		store:   opts.Store,
		source:  opts.Source,
		keys:    opts.Keys,
		cfg:     opts.Config,
		log:     opts.Logger.WithField("account", opts.Keys.Fingerprint),
		metrics: newMetrics(opts.Registerer, opts.Keys.Fingerprint),
		status: notify.NewStateRelay(domain.SyncStatus{
			State:             domain.SyncStopped,
			LastScannedHeight: cp.LastScannedHeight,
			ChainTipHeight:    cp.ChainTipHeight,
		}),
		events: notify.NewEventQueue[domain.SyncEvent](notify.DefaultMaxPending),
		wake:   make(chan struct{}, 1),
	}, nil
}

// Config returns the effective configuration, defaults included.
func (s *Synchronizer) Config() Config {
	return s.cfg
}

// Start launches the sync worker. With retry, network failures are retried
// with exponential backoff, otherwise the worker stops in error state.
// A worker waiting to retry is replaced by the new one.
func (s *Synchronizer) Start(retry bool) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return ErrClosed
	}
	if s.status.Value().State.IsRunning() {
		s.lock.Unlock()
		return domain.ErrAlreadyRunning
	}
	cancel, done := s.cancel, s.done
	s.lock.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.publish(func(st *domain.SyncStatus) {
		st.State = domain.SyncStarting
		st.Err = nil
	})

	go s.run(ctx, retry, s.done)

	s.log.WithField("retry", retry).Debug("synchronizer started")
	return nil
}

// Stop cancels the worker and waits for it to return. Nothing is published
// by the worker once Stop returns. Stopping a stopped synchronizer is a
// no-op.
func (s *Synchronizer) Stop() {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	s.stop()
}

func (s *Synchronizer) stop() {
	s.lock.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.lock.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.status.Value().State == domain.SyncStopped {
		return
	}
	s.publish(func(st *domain.SyncStatus) {
		st.State = domain.SyncStopped
		st.Err = nil
	})
	s.log.Debug("synchronizer stopped")
}

// Rewind moves the chain cache back to the given height. It is only allowed
// while no worker is alive.
func (s *Synchronizer) Rewind(ctx context.Context, height uint64) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	if err := s.checkIdle(); err != nil {
		return err
	}

	if err := s.store.Rewind(ctx, height); err != nil {
		return err
	}
	cp, err := s.store.GetCheckpoint(ctx)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.publish(func(st *domain.SyncStatus) {
		st.LastScannedHeight = cp.LastScannedHeight
	})
	s.metrics.scannedHeight.Set(float64(cp.LastScannedHeight))
	s.log.WithField("height", height).Info("chain cache rewound")
	return nil
}

// Reset drops the whole chain cache, pending txs included, so that the next
// Start scans again from the birthday height. It works on a corrupted cache
// and, like Rewind, is only allowed while no worker is alive.
func (s *Synchronizer) Reset(ctx context.Context) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	if err := s.checkIdle(); err != nil {
		return err
	}

	if err := s.store.Reset(ctx); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.publish(func(st *domain.SyncStatus) {
		st.State = domain.SyncStopped
		st.Err = nil
		st.LastScannedHeight = 0
		st.ChainTipHeight = 0
	})
	s.metrics.scannedHeight.Set(0)
	s.metrics.chainTip.Set(0)
	s.log.Info("chain cache reset")
	return nil
}

func (s *Synchronizer) checkIdle() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.workerAlive() {
		return domain.ErrAlreadyRunning
	}
	return nil
}

// Status returns the last published status.
func (s *Synchronizer) Status() domain.SyncStatus {
	return s.status.Value()
}

// State ...
func (s *Synchronizer) State() domain.SyncState {
	return s.status.Value().State
}

// Balance returns the balance of the committed notes, notes with less than
// the configured confirmations count as pending.
func (s *Synchronizer) Balance(ctx context.Context) (*domain.Balance, error) {
	return s.store.GetBalance(ctx, *s.cfg.Confirmations)
}

// Notes ...
func (s *Synchronizer) Notes(
	ctx context.Context, unspentOnly bool,
) ([]domain.Note, error) {
	return s.store.ListNotes(ctx, unspentOnly)
}

// PendingTransactions ...
func (s *Synchronizer) PendingTransactions(
	ctx context.Context,
) ([]domain.PendingTransaction, error) {
	return s.store.ListPendingTransactions(ctx)
}

// SubmitTransaction queues the raw tx for broadcast. The worker sends it at
// its next cycle, which is triggered right away if it is waiting for new
// blocks.
func (s *Synchronizer) SubmitTransaction(
	ctx context.Context, raw []byte,
) (*domain.PendingTransaction, error) {
	tx, err := domain.NewPendingTransaction(raw, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	if err := s.store.AddPendingTransaction(ctx, *tx); err != nil {
		return nil, err
	}

	s.Wake()

	s.log.WithField("txid", tx.TxID).Debug("transaction queued for broadcast")
	return tx, nil
}

// Wake makes a worker waiting for new blocks poll the tip right away.
func (s *Synchronizer) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// SubscribeStatus returns a channel yielding the current status and then
// the latest one at every change. Intermediate values may be skipped.
func (s *Synchronizer) SubscribeStatus() (string, <-chan domain.SyncStatus) {
	return s.status.Subscribe()
}

// UnsubscribeStatus ...
func (s *Synchronizer) UnsubscribeStatus(id string) {
	s.status.Unsubscribe(id)
}

// SubscribeEvents returns a channel yielding every sync event in order. The
// channel is closed if the subscriber lags behind by notify.DefaultMaxPending
// events.
func (s *Synchronizer) SubscribeEvents() (string, <-chan domain.SyncEvent) {
	return s.events.Subscribe()
}

// UnsubscribeEvents ...
func (s *Synchronizer) UnsubscribeEvents(id string) {
	s.events.Unsubscribe(id)
}

// Close stops the worker and closes every subscription. The chain cache and
// the block source are owned by the caller.
func (s *Synchronizer) Close() {
	s.opLock.Lock()
	defer s.opLock.Unlock()

	s.stop()

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.status.Close()
	s.events.Close()
}

func (s *Synchronizer) run(ctx context.Context, retry bool, done chan struct{}) {
	defer close(done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInitialInterval
	bo.MaxInterval = s.cfg.RetryMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		err := s.sync(ctx, bo)
		if ctx.Err() != nil {
			return
		}

		s.metrics.syncErrors.Inc()
		s.log.WithError(err).Warn("sync failed")

		if !s.setState(ctx, domain.SyncError, err) {
			return
		}
		if !retry || errors.Is(err, domain.ErrStorageCorruption) {
			return
		}

		wait := bo.NextBackOff()
		s.log.Debugf("retrying in %s", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.setState(ctx, domain.SyncStarting, nil) {
			return
		}
	}
}

// sync runs fetch-scan-persist cycles until an error occurs or ctx is
// canceled. It never returns nil.
func (s *Synchronizer) sync(ctx context.Context, bo backoff.BackOff) error {
	cp, err := s.store.GetCheckpoint(ctx)
	if err != nil {
		return err
	}

	// Blocks cached but not scanned by an interrupted cycle are dropped and
	// fetched again.
	latest, err := s.store.LatestBlockHeight(ctx)
	if err != nil {
		return err
	}
	if latest > cp.LastScannedHeight {
		if err := s.store.Rewind(ctx, cp.LastScannedHeight); err != nil {
			return err
		}
		if cp, err = s.store.GetCheckpoint(ctx); err != nil {
			return err
		}
	}

	reorgs := 0
	for {
		tip, err := s.source.GetLatestHeight(ctx)
		if err != nil {
			return networkError(err)
		}
		s.metrics.chainTip.Set(float64(tip))

		if err := s.processPending(ctx, tip, cp.LastScannedHeight); err != nil {
			return err
		}

		start := cp.LastScannedHeight + 1
		if start < s.cfg.BirthdayHeight {
			start = s.cfg.BirthdayHeight
		}

		if start > tip {
			if err := s.checkTip(ctx, tip, cp); err != nil {
				var discErr *domain.ChainDiscontinuityError
				if !errors.As(err, &discErr) {
					return err
				}
				if cp, err = s.reorg(ctx, discErr, &reorgs); err != nil {
					return err
				}
				continue
			}

			if tip >= cp.LastScannedHeight && cp.ChainTipHeight != tip {
				cp.ChainTipHeight = tip
				if err := s.store.PutCheckpoint(ctx, *cp); err != nil {
					return err
				}
			}
			if !s.setProgress(ctx, domain.SyncSynced, cp) {
				return ctx.Err()
			}
			bo.Reset()

			if err := s.waitForBlocks(ctx); err != nil {
				return err
			}
			continue
		}

		end := start + s.cfg.BatchSize - 1
		if end > tip {
			end = tip
		}
		progress := *cp
		progress.ChainTipHeight = tip
		if !s.setProgress(ctx, domain.SyncSyncing, &progress) {
			return ctx.Err()
		}

		blocks, err := s.source.GetBlockRange(ctx, start, end)
		if err != nil {
			return networkError(err)
		}
		if len(blocks) <= 0 {
			return fmt.Errorf(
				"%w: no blocks returned in range [%d, %d]",
				domain.ErrNetworkFailure, start, end,
			)
		}
		if blocks[0].Height != start {
			return fmt.Errorf(
				"%w: expected block %d, got %d",
				domain.ErrNetworkFailure, start, blocks[0].Height,
			)
		}

		next, err := s.processBlocks(ctx, blocks, tip, cp)
		if err != nil {
			var discErr *domain.ChainDiscontinuityError
			if !errors.As(err, &discErr) {
				return err
			}
			if cp, err = s.reorg(ctx, discErr, &reorgs); err != nil {
				return err
			}
			continue
		}

		cp = next
		reorgs = 0
		bo.Reset()
	}
}

// reorg counts the consecutive reorgs and rewinds below the discontinuity,
// giving up once they exceed the configured max.
func (s *Synchronizer) reorg(
	ctx context.Context, discErr *domain.ChainDiscontinuityError, reorgs *int,
) (*domain.SyncCheckpoint, error) {
	*reorgs++
	if *reorgs > s.cfg.MaxReorgs {
		return nil, fmt.Errorf(
			"%w: %d consecutive reorgs: %s",
			domain.ErrNetworkFailure, *reorgs, discErr,
		)
	}
	return s.handleReorg(ctx, discErr)
}

// checkTip makes sure the block served at tip is the one cached at that
// height, which is the last scanned one unless the tip moved back. A block
// replaced at the same height, or a chain getting shorter on another
// branch, yields a discontinuity above tip. A lagging endpoint serving the
// same blocks is not an error.
func (s *Synchronizer) checkTip(
	ctx context.Context, tip uint64, cp *domain.SyncCheckpoint,
) error {
	if cp.LastScannedHeight == 0 || tip < s.cfg.BirthdayHeight {
		return nil
	}

	expected := cp.LastValidatedBlockHash
	if tip < cp.LastScannedHeight {
		cached, err := s.store.GetBlock(ctx, tip)
		if err != nil {
			if errors.Is(err, domain.ErrBlockNotFound) {
				return nil
			}
			return err
		}
		expected = cached.Hash
	}
	if len(expected) <= 0 {
		return nil
	}

	blocks, err := s.source.GetBlockRange(ctx, tip, tip)
	if err != nil {
		return networkError(err)
	}
	// The chain got shorter since the tip was polled, the next cycle checks
	// the new tip.
	if len(blocks) <= 0 {
		return nil
	}
	if len(blocks) != 1 || blocks[0].Height != tip {
		return fmt.Errorf(
			"%w: expected block %d only", domain.ErrNetworkFailure, tip,
		)
	}
	if !bytes.Equal(blocks[0].Hash, expected) {
		return &domain.ChainDiscontinuityError{
			Height:   tip + 1,
			Expected: expected,
			Got:      blocks[0].Hash,
		}
	}
	return nil
}

// processBlocks caches the given blocks and commits the scan result of each
// of them along with the checkpoint. It returns the last committed
// checkpoint.
func (s *Synchronizer) processBlocks(
	ctx context.Context, blocks []domain.CompactBlock, tip uint64,
	cp *domain.SyncCheckpoint,
) (*domain.SyncCheckpoint, error) {
	first := blocks[0]
	if first.Height == cp.LastScannedHeight+1 &&
		len(cp.LastValidatedBlockHash) > 0 &&
		!bytes.Equal(first.PrevHash, cp.LastValidatedBlockHash) {
		return nil, &domain.ChainDiscontinuityError{
			Height:   first.Height,
			Expected: cp.LastValidatedBlockHash,
			Got:      first.PrevHash,
		}
	}

	if err := s.store.PutBlocks(ctx, blocks); err != nil {
		return nil, err
	}

	known, err := s.store.UnspentNullifiers(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.unconfirmedTxs(ctx)
	if err != nil {
		return nil, err
	}

	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		events, err := scanner.Scan(b, s.keys, known)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %w", domain.ErrNetworkFailure, b.Height, err)
		}
		for _, e := range events {
			switch e.Type {
			case domain.NoteCreated:
				known.Add(e.Nullifier)
			case domain.NoteSpent:
				delete(known, e.Nullifier)
			}
		}

		mined := make([]domain.PendingTransaction, 0)
		for _, txid := range scanner.TxIDs(b) {
			tx, ok := pending[txid]
			if !ok {
				continue
			}
			tx.Mined(b.Height)
			mined = append(mined, *tx)
			delete(pending, txid)
		}

		next := domain.SyncCheckpoint{
			LastScannedHeight:      b.Height,
			ChainTipHeight:         tip,
			LastValidatedBlockHash: b.Hash,
		}
		if err := s.store.ApplyScan(ctx, events, next, mined...); err != nil {
			return nil, err
		}
		cp = &next

		s.publishScan(b, events, mined)
		if !s.setProgress(ctx, domain.SyncSyncing, cp) {
			return nil, ctx.Err()
		}
	}

	return cp, nil
}

// handleReorg rewinds below the discontinuity. The block below the given
// height is the first one that can not be trusted, hence the rewind target
// is one block lower, minus the configured margin, but never below the
// birthday.
func (s *Synchronizer) handleReorg(
	ctx context.Context, discErr *domain.ChainDiscontinuityError,
) (*domain.SyncCheckpoint, error) {
	height := rewindHeight(
		discErr.Height, s.cfg.RewindMargin, s.cfg.BirthdayHeight,
	)

	s.log.WithError(discErr).Warnf("reorg detected, rewinding to %d", height)

	if err := s.store.Rewind(ctx, height); err != nil {
		return nil, err
	}
	cp, err := s.store.GetCheckpoint(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.reorgs.Inc()
	s.metrics.scannedHeight.Set(float64(cp.LastScannedHeight))
	s.events.Publish(domain.SyncEvent{
		Type:         domain.EventReorgDetected,
		Height:       discErr.Height,
		RewindHeight: height,
	})
	return cp, nil
}

// processPending broadcasts unsubmitted txs and expires the submitted ones
// that were not found in any block up to their expiry height.
func (s *Synchronizer) processPending(
	ctx context.Context, tip, scannedHeight uint64,
) error {
	txs, err := s.store.ListPendingTransactions(ctx)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		tx := tx
		logger := s.log.WithField("txid", tx.TxID)

		switch tx.Status {
		case domain.TxUnsubmitted:
			if tx.Attempts >= maxSubmitAttempts {
				tx.Status = domain.TxExpired
				if err := s.store.UpdatePendingTransaction(ctx, tx); err != nil {
					return err
				}
				logger.Warnf("giving up broadcast after %d attempts", tx.Attempts)
				s.publishExpired(tx)
				continue
			}

			res, err := s.source.SubmitTransaction(ctx, tx.RawBytes)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				tx.SubmissionFailed(err)
			} else if !res.Accepted() {
				tx.SubmissionFailed(fmt.Errorf(
					"rejected with code %d: %s", res.ErrorCode, res.ErrorMessage,
				))
			} else {
				tx.Submitted(tip)
			}
			if err := s.store.UpdatePendingTransaction(ctx, tx); err != nil {
				return err
			}
			if tx.Status == domain.TxSubmitted {
				logger.Info("transaction broadcasted")
			} else {
				logger.Warnf("failed to broadcast transaction: %s", tx.LastError)
			}

		case domain.TxSubmitted:
			if !tx.Expire(scannedHeight, s.cfg.TxExpiryDelta) {
				continue
			}
			if err := s.store.UpdatePendingTransaction(ctx, tx); err != nil {
				return err
			}
			logger.Info("transaction expired")
			s.publishExpired(tx)
		}
	}
	return nil
}

func (s *Synchronizer) unconfirmedTxs(
	ctx context.Context,
) (map[string]*domain.PendingTransaction, error) {
	txs, err := s.store.ListPendingTransactions(ctx)
	if err != nil {
		return nil, err
	}

	pending := make(map[string]*domain.PendingTransaction)
	for i := range txs {
		if txs[i].IsFinal() {
			continue
		}
		pending[txs[i].TxID] = &txs[i]
	}
	return pending, nil
}

func (s *Synchronizer) waitForBlocks(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-s.wake:
	}
	return nil
}

func (s *Synchronizer) publishScan(
	b domain.CompactBlock, events []domain.NoteEvent,
	mined []domain.PendingTransaction,
) {
	received := 0
	for _, e := range events {
		switch e.Type {
		case domain.NoteCreated:
			received++
			s.events.Publish(domain.SyncEvent{
				Type:      domain.EventNoteReceived,
				Height:    e.Height,
				Value:     e.Note.Value,
				Nullifier: e.Nullifier,
				TxID:      e.Note.TxID(),
			})
		case domain.NoteSpent:
			s.events.Publish(domain.SyncEvent{
				Type:      domain.EventNoteSpent,
				Height:    e.Height,
				Nullifier: e.Nullifier,
			})
		}
	}
	for _, tx := range mined {
		s.events.Publish(domain.SyncEvent{
			Type:   domain.EventTransactionMined,
			Height: tx.MinedHeight,
			TxID:   tx.TxID,
		})
	}

	s.metrics.blocksScanned.Inc()
	s.metrics.notesFound.Add(float64(received))
	s.metrics.scannedHeight.Set(float64(b.Height))
	if received > 0 {
		s.log.Infof("found %d notes at height %d", received, b.Height)
	}
}

func (s *Synchronizer) publishExpired(tx domain.PendingTransaction) {
	s.events.Publish(domain.SyncEvent{
		Type:   domain.EventTransactionExpired,
		Height: tx.SubmittedHeight,
		TxID:   tx.TxID,
	})
}

// setState publishes the given state unless ctx is canceled, in which case
// Stop has taken over and false is returned.
func (s *Synchronizer) setState(
	ctx context.Context, state domain.SyncState, err error,
) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if ctx.Err() != nil {
		return false
	}
	s.publish(func(st *domain.SyncStatus) {
		st.State = state
		st.Err = err
	})
	return true
}

func (s *Synchronizer) setProgress(
	ctx context.Context, state domain.SyncState, cp *domain.SyncCheckpoint,
) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if ctx.Err() != nil {
		return false
	}
	s.publish(func(st *domain.SyncStatus) {
		st.State = state
		st.Err = nil
		st.LastScannedHeight = cp.LastScannedHeight
		st.ChainTipHeight = cp.ChainTipHeight
	})
	return true
}

// publish must be called with lock held.
func (s *Synchronizer) publish(update func(st *domain.SyncStatus)) {
	prev := s.status.Value()
	st := prev
	update(&st)
	if st.Err == nil && prev.Err == nil &&
		st.State == prev.State &&
		st.LastScannedHeight == prev.LastScannedHeight &&
		st.ChainTipHeight == prev.ChainTipHeight {
		return
	}
	s.status.Publish(st)
}

// workerAlive must be called with lock held.
func (s *Synchronizer) workerAlive() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func networkError(err error) error {
	if errors.Is(err, domain.ErrNetworkFailure) {
		return err
	}
	return fmt.Errorf("%w: %s", domain.ErrNetworkFailure, err)
}

func rewindHeight(height, margin, birthday uint64) uint64 {
	var target, floor uint64
	if height > margin+2 {
		target = height - 2 - margin
	}
	if birthday > 0 {
		floor = birthday - 1
	}
	if target < floor {
		return floor
	}
	return target
}
