package metrics

import (
	"sync"

	"github.com/couchbase/gocbcorex/contrib/buildversion"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ReadinessMetrics are the instruments recorded by readiness checks.
type ReadinessMetrics struct {
	Checks          metric.Int64Counter
	CheckDuration   metric.Float64Histogram
	PollAttempts    metric.Int64Counter
	ObservedBrokers metric.Int64Gauge
	Ready           metric.Int64Gauge

	CoordinationCalls metric.Int64Counter
}

var (
	readinessMetrics     *ReadinessMetrics
	readinessMetricsLock sync.Mutex
)

func GetReadinessMetrics() *ReadinessMetrics {
	readinessMetricsLock.Lock()

	if readinessMetrics != nil {
		readinessMetricsLock.Unlock()
		return readinessMetrics
	}

	readinessMetrics = NewReadinessMetrics(otel.Meter(
		InstrumentationName,
		metric.WithInstrumentationVersion(BuildVersion)))

	readinessMetricsLock.Unlock()
	return readinessMetrics
}

var BuildVersion string = buildversion.GetVersion("github.com/couchbase/cluster-ready")

const InstrumentationName = "com.couchbase.cluster-ready"

// NewReadinessMetrics creates the instruments on meter.  Most callers want
// the shared GetReadinessMetrics instead.
func NewReadinessMetrics(meter metric.Meter) *ReadinessMetrics {
	checks, _ := meter.Int64Counter("readiness_checks_total",
		metric.WithDescription("Number of readiness checks performed, by check and result"))
	checkDuration, _ := meter.Float64Histogram("readiness_check_duration_seconds",
		metric.WithUnit("s"))
	pollAttempts, _ := meter.Int64Counter("readiness_poll_attempts_total",
		metric.WithDescription("Number of metadata polls performed while waiting for a cluster"))
	observedBrokers, _ := meter.Int64Gauge("readiness_observed_brokers",
		metric.WithDescription("Brokers seen by the most recent metadata poll"))
	ready, _ := meter.Int64Gauge("readiness_ready",
		metric.WithDescription("1 when the most recent check of a target succeeded"))
	coordinationCalls, _ := meter.Int64Counter("coordination_calls_total",
		metric.WithDescription("Number of rpc calls made to the coordination service, by method and result"))

	return &ReadinessMetrics{
		Checks:          checks,
		CheckDuration:   checkDuration,
		PollAttempts:    pollAttempts,
		ObservedBrokers: observedBrokers,
		Ready:           ready,

		CoordinationCalls: coordinationCalls,
	}
}
