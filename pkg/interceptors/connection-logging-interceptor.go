package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
)

// ConnectionLoggingInterceptor logs every rpc made to the coordination
// service at debug level, including the peer which served it.
type ConnectionLoggingInterceptor struct {
	logger *zap.Logger
}

func NewConnectionLoggingInterceptor(log *zap.Logger) *ConnectionLoggingInterceptor {
	return &ConnectionLoggingInterceptor{
		logger: log,
	}
}

func (cli *ConnectionLoggingInterceptor) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		begin := time.Now()

		var p peer.Peer
		err := invoker(ctx, method, req, reply, cc, append(opts, grpc.Peer(&p))...)

		peerAddr := ""
		if p.Addr != nil {
			peerAddr = p.Addr.String()
		}

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("peer", peerAddr),
			zap.Duration("duration", time.Since(begin)),
		}
		if err != nil {
			cli.logger.Debug("coordination call failed", append(fields, zap.Error(err))...)
		} else {
			cli.logger.Debug("coordination call", fields...)
		}

		return err
	}
}
