// Package lightwalletd implements a block source over the gRPC interface of
// a lightwalletd server.
package lightwalletd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/shielded-wallet/zsyncd/internal/core/ports"
	"github.com/shielded-wallet/zsyncd/pkg/circuitbreaker"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/zcash/lightwalletd/walletrpc"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	ErrNullAddr          = errors.New("endpoint address must not be null")
	ErrInvalidRateLimit  = errors.New("rate limit must not be negative")
	ErrInvalidBlockRange = errors.New("block range end must not be lower than start")
)

// Opts ...
type Opts struct {
	Addr string
	// TLS makes the connection use TLS with the system root CAs.
	TLS bool
	// RateLimit is the max number of requests per second, 0 means no limit.
	RateLimit float64
	// DialOptions are appended to the ones built from the other fields.
	DialOptions []grpc.DialOption
	Logger      log.FieldLogger
}

func (o *Opts) validate() error {
	if o.Addr == "" {
		return ErrNullAddr
	}
	if o.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	return nil
}

type service struct {
	conn    *grpc.ClientConn
	client  walletrpc.CompactTxStreamerClient
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewService returns a ports.BlockSource connected to the given endpoint.
// The connection is established lazily by the first request.
func NewService(opts Opts) (ports.BlockSource, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if opts.TLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithChainUnaryInterceptor(unaryLogger(opts.Logger)),
		grpc.WithChainStreamInterceptor(streamLogger(opts.Logger)),
	}, opts.DialOptions...)

	conn, err := grpc.Dial(opts.Addr, dialOpts...)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	return &service{
		conn:    conn,
		client:  walletrpc.NewCompactTxStreamerClient(conn),
		cb:      circuitbreaker.NewCircuitBreaker(opts.Addr),
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

func (s *service) GetLatestHeight(ctx context.Context) (uint64, error) {
	res, err := s.call(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.GetLatestBlock(ctx, &walletrpc.ChainSpec{})
	})
	if err != nil {
		return 0, err
	}
	return res.(*walletrpc.BlockID).GetHeight(), nil
}

func (s *service) GetBlockRange(
	ctx context.Context, start, end uint64,
) ([]domain.CompactBlock, error) {
	if end < start {
		return nil, ErrInvalidBlockRange
	}

	res, err := s.call(ctx, func(ctx context.Context) (interface{}, error) {
		return s.getBlockRange(ctx, start, end)
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.CompactBlock), nil
}

func (s *service) SubmitTransaction(
	ctx context.Context, raw []byte,
) (*ports.SubmitResult, error) {
	res, err := s.call(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.SendTransaction(ctx, &walletrpc.RawTransaction{Data: raw})
	})
	if err != nil {
		return nil, err
	}

	resp := res.(*walletrpc.SendResponse)
	return &ports.SubmitResult{
		ErrorCode:    resp.GetErrorCode(),
		ErrorMessage: resp.GetErrorMessage(),
	}, nil
}

func (s *service) Close() error {
	return s.conn.Close()
}

func (s *service) getBlockRange(
	ctx context.Context, start, end uint64,
) ([]domain.CompactBlock, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.client.GetBlockRange(ctx, &walletrpc.BlockRange{
		Start: &walletrpc.BlockID{Height: start},
		End:   &walletrpc.BlockID{Height: end},
	})
	if err != nil {
		return nil, err
	}

	blocks := make([]domain.CompactBlock, 0)
	for {
		out, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if out.GetHeight() < start || out.GetHeight() > end {
			return nil, fmt.Errorf(
				"received block %d out of range [%d, %d]", out.GetHeight(), start, end,
			)
		}
		block, err := toDomainBlock(out)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// call runs fn through the rate limiter and the circuit breaker. Calls
// failing because ctx is done do not count as endpoint failures.
func (s *service) call(
	ctx context.Context, fn func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, networkError(err)
	}

	var canceledErr error
	res, err := s.cb.Execute(func() (interface{}, error) {
		res, err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			canceledErr = err
			return nil, nil
		}
		return res, err
	})
	if canceledErr != nil {
		return nil, networkError(canceledErr)
	}
	if err != nil {
		return nil, networkError(err)
	}
	return res, nil
}

func networkError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrNetworkFailure, err)
}
