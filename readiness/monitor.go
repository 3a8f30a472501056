package readiness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchbase/cluster-ready/common/metadataclient"
	"github.com/couchbase/cluster-ready/utils/channelmerge"
	"github.com/couchbase/cluster-ready/utils/latestonlychannel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	DefaultMonitorInterval     = 10 * time.Second
	DefaultMonitorCheckTimeout = 5 * time.Second

	monitorRetryInterval = 500 * time.Millisecond
)

var ErrNothingToMonitor = errors.New("neither an ensemble nor a cluster was configured for monitoring")

// ComponentStatus is the result of the most recent check of one component.
// CheckedAt is zero until the first check completes.
type ComponentStatus struct {
	Ready           bool      `json:"ready"`
	CheckedAt       time.Time `json:"checkedAt"`
	ObservedBrokers int       `json:"observedBrokers,omitempty"`
	Brokers         []string  `json:"brokers,omitempty"`
}

// MonitorStatus is a snapshot of a Monitor.  Components which are not being
// monitored are nil.
type MonitorStatus struct {
	InstanceID string           `json:"instanceId"`
	Ensemble   *ComponentStatus `json:"ensemble,omitempty"`
	Cluster    *ComponentStatus `json:"cluster,omitempty"`
}

// Ready reports whether every monitored component passed its latest check.
func (s MonitorStatus) Ready() bool {
	if s.Ensemble == nil && s.Cluster == nil {
		return false
	}
	if s.Ensemble != nil && !s.Ensemble.Ready {
		return false
	}
	if s.Cluster != nil && !s.Cluster.Ready {
		return false
	}
	return true
}

type MonitorOptions struct {
	Logger  *zap.Logger
	Checker *Checker

	// EnsembleConnect enables ensemble monitoring when set.
	EnsembleConnect string

	// ClusterConfig enables cluster monitoring when set.
	ClusterConfig *metadataclient.Config
	MinBrokers    int

	CheckTimeout time.Duration
	Interval     time.Duration
}

// Monitor repeatedly checks an ensemble and/or a broker cluster and keeps the
// latest results.  Failed checks are retried sooner than the regular
// interval, backing off towards it.
type Monitor struct {
	logger          *zap.Logger
	checker         *Checker
	ensembleConnect string
	minBrokers      int
	checkTimeout    time.Duration
	interval        time.Duration

	lock          sync.Mutex
	clusterConfig *metadataclient.Config
	status        MonitorStatus
}

func NewMonitor(opts MonitorOptions) (*Monitor, error) {
	if opts.EnsembleConnect == "" && opts.ClusterConfig == nil {
		return nil, ErrNothingToMonitor
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	checker := opts.Checker
	if checker == nil {
		checker = NewChecker(CheckerOptions{Logger: logger})
	}

	checkTimeout := opts.CheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = DefaultMonitorCheckTimeout
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	m := &Monitor{
		logger:          logger,
		checker:         checker,
		ensembleConnect: opts.EnsembleConnect,
		minBrokers:      opts.MinBrokers,
		checkTimeout:    checkTimeout,
		interval:        interval,
		clusterConfig:   opts.ClusterConfig,
		status: MonitorStatus{
			InstanceID: uuid.NewString(),
		},
	}

	if opts.EnsembleConnect != "" {
		m.status.Ensemble = &ComponentStatus{}
	}
	if opts.ClusterConfig != nil {
		m.status.Cluster = &ComponentStatus{}
	}

	return m, nil
}

// SetClusterConfig replaces the client configuration used by later cluster
// checks.  It has no effect when the cluster is not being monitored.
func (m *Monitor) SetClusterConfig(cfg *metadataclient.Config) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.clusterConfig == nil || cfg == nil {
		return
	}
	m.clusterConfig = cfg
}

func (m *Monitor) getClusterConfig() *metadataclient.Config {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.clusterConfig
}

// Status returns a copy of the latest results.
func (m *Monitor) Status() MonitorStatus {
	m.lock.Lock()
	defer m.lock.Unlock()

	status := MonitorStatus{InstanceID: m.status.InstanceID}
	if m.status.Ensemble != nil {
		ensemble := *m.status.Ensemble
		status.Ensemble = &ensemble
	}
	if m.status.Cluster != nil {
		cluster := *m.status.Cluster
		status.Cluster = &cluster
	}
	return status
}

// Run performs checks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("starting readiness monitor",
		zap.String("instanceId", m.status.InstanceID),
		zap.String("ensemble", m.ensembleConnect),
		zap.Bool("cluster", m.getClusterConfig() != nil),
		zap.Duration("interval", m.interval))

	ensembleCh := m.watchComponent(ctx, "ensemble", m.ensembleConnect != "", m.checkEnsemble)
	clusterCh := m.watchComponent(ctx, "cluster", m.getClusterConfig() != nil, m.checkCluster)

	for merged := range channelmerge.Merge(ensembleCh, clusterCh) {
		m.lock.Lock()
		if merged.A != nil {
			m.status.Ensemble = merged.A
		}
		if merged.B != nil {
			m.status.Cluster = merged.B
		}
		m.lock.Unlock()
	}

	return ctx.Err()
}

func (m *Monitor) watchComponent(
	ctx context.Context,
	name string,
	enabled bool,
	check func(ctx context.Context) *ComponentStatus,
) <-chan *ComponentStatus {
	statusCh := make(chan *ComponentStatus)
	logger := m.logger.With(zap.String("component", name))

	go func() {
		defer close(statusCh)

		if !enabled {
			// a nil status lets the merged stream start without this component
			select {
			case statusCh <- nil:
			case <-ctx.Done():
				return
			}
			<-ctx.Done()
			return
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = min(monitorRetryInterval, m.interval)
		b.MaxInterval = m.interval
		b.MaxElapsedTime = 0

		wasReady := false
		for {
			status := check(ctx)
			if ctx.Err() != nil {
				return
			}

			readyValue := int64(0)
			if status.Ready {
				readyValue = 1
			}
			m.checker.metrics.Ready.Record(ctx, readyValue,
				metric.WithAttributes(attribute.String("target", name)))

			if status.Ready != wasReady {
				logger.Info("readiness changed", zap.Bool("ready", status.Ready))
				wasReady = status.Ready
			}

			select {
			case statusCh <- status:
			case <-ctx.Done():
				return
			}

			wait := m.interval
			if status.Ready {
				b.Reset()
			} else {
				wait = min(b.NextBackOff(), m.interval)
			}

			if !sleepContext(ctx, wait) {
				return
			}
		}
	}()

	return latestonlychannel.Wrap(ctx, statusCh)
}

func (m *Monitor) checkEnsemble(ctx context.Context) *ComponentStatus {
	ready := m.checker.IsEnsembleReady(ctx, m.ensembleConnect, m.checkTimeout)
	return &ComponentStatus{
		Ready:     ready,
		CheckedAt: time.Now(),
	}
}

func (m *Monitor) checkCluster(ctx context.Context) *ComponentStatus {
	// an unready cluster is reported through the status, not the log
	result := m.checker.pollCluster(ctx, m.getClusterConfig(), m.minBrokers, m.checkTimeout, monitorPollLevels)

	brokers := make([]string, 0, len(result.ObservedNodes))
	for _, broker := range result.ObservedNodes {
		brokers = append(brokers, fmt.Sprintf("%d@%s", broker.NodeID, broker.Endpoint))
	}

	return &ComponentStatus{
		Ready:           result.Ready,
		CheckedAt:       time.Now(),
		ObservedBrokers: result.LastObserved,
		Brokers:         brokers,
	}
}
