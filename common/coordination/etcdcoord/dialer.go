package etcdcoord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/couchbase/cluster-ready/pkg/interceptors"
	"github.com/couchbase/cluster-ready/pkg/metrics"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/timeout"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	etcd "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const defaultSessionTimeout = 10 * time.Second

type DialerOptions struct {
	Logger *zap.Logger

	// DisableTracing skips installing the otel grpc stats handler.
	DisableTracing bool

	Metrics *metrics.ReadinessMetrics
}

// Dialer opens coordination sessions backed by an etcd cluster.  The
// hierarchical namespace is mapped onto keys, a node exists when its own key
// or any key beneath it exists.
type Dialer struct {
	logger         *zap.Logger
	disableTracing bool
	metrics        *metrics.ReadinessMetrics
}

var _ coordination.Dialer = (*Dialer)(nil)

func NewDialer(opts DialerOptions) *Dialer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	readinessMetrics := opts.Metrics
	if readinessMetrics == nil {
		readinessMetrics = metrics.GetReadinessMetrics()
	}

	return &Dialer{
		logger:         logger.Named("etcd"),
		disableTracing: opts.DisableTracing,
		metrics:        readinessMetrics,
	}
}

func (d *Dialer) Dial(
	ctx context.Context,
	connectString coordination.ConnectString,
	opts coordination.DialOptions,
) (coordination.Session, <-chan coordination.SessionEvent, error) {
	logger := d.logger
	if opts.Logger != nil {
		logger = opts.Logger.Named("etcd")
	}

	sessionTimeout := opts.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = defaultSessionTimeout
	}

	metricsInterceptor := interceptors.NewMetricsInterceptor(d.metrics)
	dialOpts := []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(
			timeout.UnaryClientInterceptor(sessionTimeout),
			interceptors.NewConnectionLoggingInterceptor(logger).UnaryClientInterceptor(),
			metricsInterceptor.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(metricsInterceptor.StreamClientInterceptor()),
	}
	if !d.disableTracing {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	}

	cfg := etcd.Config{
		Endpoints:   connectString.ServerAddresses(),
		DialOptions: dialOpts,
		Logger:      logger,
	}
	if opts.Credentials != nil {
		cfg.Username = opts.Credentials.Username
		cfg.Password = opts.Credentials.Password
	}

	client, err := etcd.New(cfg)
	if err != nil {
		if isAuthErr(err) {
			return nil, nil, fmt.Errorf("%w: %s", coordination.ErrAuthFailed, err)
		}
		return nil, nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	closeCtx, closeCancel := context.WithCancel(context.Background())
	s := &etcdSession{
		logger:        logger,
		client:        client,
		connectString: connectString,
		closeCtx:      closeCtx,
		closeCancel:   closeCancel,
	}

	eventsCh := make(chan coordination.SessionEvent, 4)
	go s.establish(sessionTimeout, opts.Credentials.AuthRequired(), eventsCh)

	return s, eventsCh, nil
}

// establish waits until any endpoint answers a status request, then reports
// the session as connected.  The events channel is closed once the session is.
func (s *etcdSession) establish(sessionTimeout time.Duration, authRequired bool, eventsCh chan<- coordination.SessionEvent) {
	defer close(eventsCh)

	emit := func(evt coordination.SessionEvent) {
		select {
		case eventsCh <- evt:
		case <-s.closeCtx.Done():
		}
	}

	ctx, cancel := context.WithTimeout(s.closeCtx, sessionTimeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.RetryNotify(func() error {
		err := s.ping(ctx)
		if isAuthErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, d time.Duration) {
		s.logger.Debug("etcd not yet reachable", zap.Error(err), zap.Duration("retryIn", d))
	})
	if err != nil {
		if isAuthErr(err) {
			emit(coordination.SessionEvent{Type: coordination.SessionEventAuthFailed, Reason: err.Error()})
		} else if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			emit(coordination.SessionEvent{Type: coordination.SessionEventExpired, Reason: err.Error()})
		}
		<-s.closeCtx.Done()
		return
	}

	emit(coordination.SessionEvent{Type: coordination.SessionEventConnected})
	if authRequired {
		emit(coordination.SessionEvent{Type: coordination.SessionEventAuthenticated})
	}

	<-s.closeCtx.Done()
}

// ping performs a status request followed by a read so that authentication
// problems surface before the session is reported as established.
func (s *etcdSession) ping(ctx context.Context) error {
	var lastErr error
	for _, endpoint := range s.client.Endpoints() {
		_, err := s.client.Status(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}

		_, err = s.client.Get(ctx, s.connectString.Path("/"), etcd.WithCountOnly())
		return err
	}

	if lastErr == nil {
		lastErr = errors.New("no endpoints configured")
	}
	return lastErr
}

func isAuthErr(err error) bool {
	return errors.Is(err, rpctypes.ErrAuthFailed) ||
		errors.Is(err, rpctypes.ErrGRPCAuthFailed) ||
		errors.Is(err, rpctypes.ErrPermissionDenied) ||
		errors.Is(err, rpctypes.ErrGRPCPermissionDenied)
}
