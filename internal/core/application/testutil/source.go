package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/shielded-wallet/zsyncd/internal/core/ports"
)

// BlockSource is an in-memory ports.BlockSource serving a Chain.
type BlockSource struct {
	lock       sync.Mutex
	blocks     map[uint64]domain.CompactBlock
	tip        uint64
	failures   int
	gate       chan struct{}
	entered    chan struct{}
	submitted  [][]byte
	rangeCalls int
	rejectTx   bool
}

// NewBlockSource ...
func NewBlockSource(chain *Chain) *BlockSource {
	s := &BlockSource{blocks: make(map[uint64]domain.CompactBlock)}
	s.SetChain(chain)
	return s
}

// SetChain replaces the served blocks.
func (s *BlockSource) SetChain(chain *Chain) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.blocks = make(map[uint64]domain.CompactBlock)
	for _, b := range chain.Blocks {
		s.blocks[b.Height] = b
	}
	s.tip = chain.Tip()
}

// FailNext makes the next n calls fail with a network error.
func (s *BlockSource) FailNext(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failures = n
}

// RejectTransactions makes the source answer broadcasts with an error code.
func (s *BlockSource) RejectTransactions(reject bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rejectTx = reject
}

// HoldRanges makes every following GetBlockRange call hang until the
// returned release func is called or its context is canceled. The
// returned channel receives a value when a call reaches the gate, values
// beyond its buffer are dropped.
func (s *BlockSource) HoldRanges() (entered <-chan struct{}, release func()) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.gate = make(chan struct{})
	s.entered = make(chan struct{}, 16)
	gate := s.gate
	var once sync.Once
	return s.entered, func() {
		once.Do(func() { close(gate) })
	}
}

// Submitted returns the raw txs received so far.
func (s *BlockSource) Submitted() [][]byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([][]byte{}, s.submitted...)
}

// RangeCalls returns the number of GetBlockRange calls.
func (s *BlockSource) RangeCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.rangeCalls
}

func (s *BlockSource) GetLatestHeight(ctx context.Context) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.fail(); err != nil {
		return 0, err
	}
	return s.tip, nil
}

func (s *BlockSource) GetBlockRange(
	ctx context.Context, start, end uint64,
) ([]domain.CompactBlock, error) {
	s.lock.Lock()
	s.rangeCalls++
	if err := s.fail(); err != nil {
		s.lock.Unlock()
		return nil, err
	}
	gate, entered := s.gate, s.entered
	s.lock.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", domain.ErrNetworkFailure, ctx.Err())
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	blocks := make([]domain.CompactBlock, 0)
	for h := start; h <= end; h++ {
		b, ok := s.blocks[h]
		if !ok {
			break
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func (s *BlockSource) SubmitTransaction(
	ctx context.Context, raw []byte,
) (*ports.SubmitResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.fail(); err != nil {
		return nil, err
	}
	if s.rejectTx {
		return &ports.SubmitResult{ErrorCode: -26, ErrorMessage: "rejected"}, nil
	}
	s.submitted = append(s.submitted, raw)
	return &ports.SubmitResult{}, nil
}

func (s *BlockSource) Close() error {
	return nil
}

func (s *BlockSource) fail() error {
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("%w: connection refused", domain.ErrNetworkFailure)
	}
	return nil
}
