package lightwalletd

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func unaryLogger(logger log.FieldLogger) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		entry := logger.WithFields(log.Fields{
			"method":  method,
			"elapsed": time.Since(start),
		})
		if err != nil {
			entry.WithError(err).Debug("lightwalletd call failed")
			return err
		}
		entry.Trace("lightwalletd call")
		return nil
	}
}

func streamLogger(logger log.FieldLogger) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		stream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			logger.WithError(err).WithField("method", method).
				Debug("lightwalletd stream failed")
			return nil, err
		}
		logger.WithField("method", method).Trace("lightwalletd stream opened")
		return stream, nil
	}
}
