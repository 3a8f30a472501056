package interceptors

import (
	"context"

	"github.com/couchbase/cluster-ready/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

type MetricsInterceptor struct {
	metrics *metrics.ReadinessMetrics
}

func NewMetricsInterceptor(metrics *metrics.ReadinessMetrics) *MetricsInterceptor {
	return &MetricsInterceptor{
		metrics: metrics,
	}
}

func (mi *MetricsInterceptor) record(ctx context.Context, method string, err error) {
	mi.metrics.CoordinationCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("result", status.Code(err).String())))
}

func (mi *MetricsInterceptor) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		mi.record(ctx, method, err)
		return err
	}
}

// StreamClientInterceptor counts stream opens, such as watches, rather than
// the messages exchanged on them.
func (mi *MetricsInterceptor) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		stream, err := streamer(ctx, desc, cc, method, opts...)
		mi.record(ctx, method, err)
		return stream, err
	}
}
