package readiness

import (
	"context"
	"time"

	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/couchbase/cluster-ready/common/membership"
	"github.com/couchbase/cluster-ready/common/metadataclient"
	"github.com/couchbase/cluster-ready/pkg/metrics"
	"github.com/couchbase/cluster-ready/utils/netutils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultBackoffInterval = 1000 * time.Millisecond
	DefaultRequestCeiling  = 5000 * time.Millisecond

	// minAttemptTimeout stops a nearly exhausted deadline from producing
	// attempts which cannot possibly complete.
	minAttemptTimeout = 500 * time.Millisecond
)

// BrokerFinder enumerates the live brokers of a cluster.
type BrokerFinder interface {
	FindAllBrokers(ctx context.Context, timeout time.Duration) ([]metadataclient.Broker, error)
}

// BrokerFinderFactory creates a BrokerFinder for a client configuration.
type BrokerFinderFactory func(logger *zap.Logger, cfg *metadataclient.Config) BrokerFinder

func newMetadataClient(logger *zap.Logger, cfg *metadataclient.Config) BrokerFinder {
	return metadataclient.NewClient(metadataclient.ClientOptions{
		Logger: logger,
		Config: cfg,
	})
}

type CheckerOptions struct {
	Logger *zap.Logger

	// Dialer opens coordination sessions.
	Dialer coordination.Dialer

	// Credentials enable authenticated coordination sessions when non-nil.
	Credentials *coordination.Credentials

	RegistrationPath string

	NewBrokerFinder BrokerFinderFactory
	BackoffInterval time.Duration
	RequestCeiling  time.Duration

	Metrics *metrics.ReadinessMetrics
	Tracer  trace.Tracer
}

// Checker answers readiness questions about a coordination ensemble and the
// broker cluster registered in it.  Each call uses its own sessions and
// connections and is safe to use concurrently.
type Checker struct {
	logger          *zap.Logger
	dialer          coordination.Dialer
	credentials     *coordination.Credentials
	directory       *membership.Directory
	newBrokerFinder BrokerFinderFactory
	backoffInterval time.Duration
	requestCeiling  time.Duration
	metrics         *metrics.ReadinessMetrics
	tracer          trace.Tracer
}

func NewChecker(opts CheckerOptions) *Checker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	newBrokerFinder := opts.NewBrokerFinder
	if newBrokerFinder == nil {
		newBrokerFinder = newMetadataClient
	}

	backoffInterval := opts.BackoffInterval
	if backoffInterval <= 0 {
		backoffInterval = DefaultBackoffInterval
	}

	requestCeiling := opts.RequestCeiling
	if requestCeiling <= 0 {
		requestCeiling = DefaultRequestCeiling
	}

	readinessMetrics := opts.Metrics
	if readinessMetrics == nil {
		readinessMetrics = metrics.GetReadinessMetrics()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(metrics.InstrumentationName,
			trace.WithInstrumentationVersion(metrics.BuildVersion))
	}

	return &Checker{
		logger:      logger,
		dialer:      opts.Dialer,
		credentials: opts.Credentials,
		directory: membership.NewDirectory(membership.DirectoryOptions{
			Logger:           logger,
			Dialer:           opts.Dialer,
			Credentials:      opts.Credentials,
			RegistrationPath: opts.RegistrationPath,
		}),
		newBrokerFinder: newBrokerFinder,
		backoffInterval: backoffInterval,
		requestCeiling:  requestCeiling,
		metrics:         readinessMetrics,
		tracer:          tracer,
	}
}

func (c *Checker) recordCheck(ctx context.Context, check string, ready bool, begin time.Time) {
	result := "not_ready"
	if ready {
		result = "ready"
	}

	c.metrics.Checks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("result", result)))
	c.metrics.CheckDuration.Record(ctx, time.Since(begin).Seconds(), metric.WithAttributes(
		attribute.String("check", check)))
}

// CheckConnectivity reports whether a TCP connection to endpoint can be
// established within timeout.
func (c *Checker) CheckConnectivity(ctx context.Context, endpoint netutils.Endpoint, timeout time.Duration) bool {
	begin := time.Now()
	ctx, span := c.tracer.Start(ctx, "CheckConnectivity",
		trace.WithAttributes(attribute.String("endpoint", endpoint.String())))
	defer span.End()

	live := netutils.CheckConnectivity(c.logger, endpoint, timeout)
	span.SetAttributes(attribute.Bool("ready", live))
	c.recordCheck(ctx, "connectivity", live, begin)

	return live
}

// IsEnsembleReady makes a single attempt to establish a coordination session.
// Any failure is logged and reported as not ready.
func (c *Checker) IsEnsembleReady(ctx context.Context, connectString string, timeout time.Duration) bool {
	begin := time.Now()
	ctx, span := c.tracer.Start(ctx, "IsEnsembleReady",
		trace.WithAttributes(attribute.String("connectString", connectString)))
	defer span.End()

	ready := c.isEnsembleReady(ctx, connectString, timeout)
	span.SetAttributes(attribute.Bool("ready", ready))
	c.recordCheck(ctx, "ensemble", ready, begin)

	return ready
}

func (c *Checker) isEnsembleReady(ctx context.Context, connectString string, timeout time.Duration) bool {
	logger := c.logger.With(zap.String("connectString", connectString))

	cs, err := coordination.ParseConnectString(connectString)
	if err != nil {
		logger.Error("invalid connect string", zap.Error(err))
		return false
	}

	if !netutils.AnyEndpointLive(logger, cs.Servers, timeout) {
		logger.Error("no ensemble member is reachable")
		return false
	}

	session, events, err := c.dialer.Dial(ctx, cs, coordination.DialOptions{
		SessionTimeout: timeout,
		Credentials:    c.credentials,
		Logger:         c.logger,
	})
	if err != nil {
		logger.Error("failed to open coordination session", zap.Error(err))
		return false
	}
	defer func() {
		err := session.Close()
		if err != nil {
			logger.Debug("failed to close coordination session", zap.Error(err))
		}
	}()

	watcher := coordination.NewConnectionWatcher(c.credentials.AuthRequired())
	watcher.Watch(events)

	outcome := watcher.Wait(ctx, timeout)
	if !outcome.Successful() {
		logger.Error("coordination session failed",
			zap.Stringer("outcome", outcome.Kind),
			zap.String("reason", outcome.Reason))
		return false
	}

	return true
}

// GetBootstrapEndpointFromEnsemble returns the endpoints of the first broker
// registered in the ensemble.
func (c *Checker) GetBootstrapEndpointFromEnsemble(
	ctx context.Context,
	connectString string,
	timeout time.Duration,
) (membership.EndpointMap, error) {
	ctx, span := c.tracer.Start(ctx, "GetBootstrapEndpointFromEnsemble",
		trace.WithAttributes(attribute.String("connectString", connectString)))
	defer span.End()

	cs, err := coordination.ParseConnectString(connectString)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	endpoints, err := c.directory.BootstrapEndpoints(ctx, cs, timeout)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return endpoints, nil
}
