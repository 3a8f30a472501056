package readiness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/couchbase/cluster-ready/common/coordination/inproccoord"
	"github.com/couchbase/cluster-ready/common/membership"
	"github.com/couchbase/cluster-ready/common/metadataclient"
	"github.com/couchbase/cluster-ready/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startTestBroker(t *testing.T, opts testutils.FakeBrokerOptions) *testutils.FakeBroker {
	opts.Logger = zaptest.NewLogger(t)
	broker, err := testutils.NewFakeBroker(opts)
	require.NoError(t, err)
	t.Cleanup(func() { broker.Close() })
	return broker
}

func TestWaitForClusterBootstrap(t *testing.T) {
	broker := startTestBroker(t, testutils.FakeBrokerOptions{Brokers: threeBrokers()})
	c := NewChecker(CheckerOptions{Logger: zaptest.NewLogger(t)})

	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{
		MinBrokers:       3,
		Timeout:          5 * time.Second,
		BootstrapServers: broker.Endpoint().String(),
	})
	assert.NoError(t, err)
}

func TestWaitForClusterNotReady(t *testing.T) {
	broker := startTestBroker(t, testutils.FakeBrokerOptions{Brokers: threeBrokers()})
	c := NewChecker(CheckerOptions{
		Logger:          zaptest.NewLogger(t),
		BackoffInterval: 50 * time.Millisecond,
	})

	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{
		MinBrokers:       5,
		Timeout:          300 * time.Millisecond,
		BootstrapServers: broker.Endpoint().String(),
	})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestWaitForClusterConfigRequired(t *testing.T) {
	c := NewChecker(CheckerOptions{Logger: zaptest.NewLogger(t)})

	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{
		MinBrokers:       1,
		Timeout:          time.Second,
		BootstrapServers: "localhost:9092",
		SecurityProtocol: "SASL_SSL",
	})
	assert.ErrorIs(t, err, ErrConfigRequired)
}

func TestWaitForClusterSaslCredentialsOverride(t *testing.T) {
	broker := startTestBroker(t, testutils.FakeBrokerOptions{
		SaslUsers: map[string]string{"alice": "from-secret-store"},
	})
	c := NewChecker(CheckerOptions{Logger: zaptest.NewLogger(t)})

	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{
		MinBrokers: 1,
		Timeout:    2 * time.Second,
		ClientProperties: map[string]string{
			metadataclient.KeySaslJaasConfig: `org.apache.kafka.common.security.plain.PlainLoginModule required username="alice" password="stale";`,
		},
		BootstrapServers: broker.Endpoint().String(),
		SecurityProtocol: "SASL_PLAINTEXT",
		SaslUsername:     "alice",
		SaslPassword:     "from-secret-store",
	})
	assert.NoError(t, err)
}

func TestWaitForClusterViaEnsemble(t *testing.T) {
	broker := startTestBroker(t, testutils.FakeBrokerOptions{})

	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	require.NoError(t, ensemble.Create("/brokers/ids/0",
		[]byte(fmt.Sprintf(`{"endpoints":["PLAINTEXT://%s"]}`, broker.Endpoint()))))

	c := newEnsembleChecker(t, ensemble, nil)
	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{
		MinBrokers:      1,
		Timeout:         2 * time.Second,
		EnsembleConnect: liveEnsembleAddress(t),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, broker.MetadataRequests())
	assert.Equal(t, 0, ensemble.OpenSessions())
}

func TestWaitForClusterMissingProtocolEndpoint(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	require.NoError(t, ensemble.Create("/brokers/ids/0", []byte(`{"endpoints":["PLAINTEXT://kafka-0:9092"]}`)))

	c := newEnsembleChecker(t, ensemble, nil)
	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{
		MinBrokers:       1,
		Timeout:          time.Second,
		ClientProperties: map[string]string{},
		EnsembleConnect:  liveEnsembleAddress(t),
		SecurityProtocol: "SSL",
	})
	assert.ErrorIs(t, err, ErrNoProtocolEndpoint)
}

func TestWaitForClusterEnsembleDown(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	c := newEnsembleChecker(t, ensemble, nil)

	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{
		MinBrokers:      1,
		Timeout:         100 * time.Millisecond,
		EnsembleConnect: closedEndpoint(t).String(),
	})
	assert.ErrorIs(t, err, ErrEnsembleNotReady)
}

func TestWaitForClusterNoMembers(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	require.NoError(t, ensemble.Create("/brokers/ids", nil))

	c := newEnsembleChecker(t, ensemble, nil)
	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{
		MinBrokers:      1,
		Timeout:         100 * time.Millisecond,
		EnsembleConnect: liveEnsembleAddress(t),
	})
	assert.ErrorIs(t, err, membership.ErrRegistrationTimeout)
}

func TestWaitForClusterNoBootstrapSource(t *testing.T) {
	c := NewChecker(CheckerOptions{Logger: zaptest.NewLogger(t)})

	err := c.WaitForCluster(context.Background(), KafkaReadyRequest{MinBrokers: 1, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrNoBootstrapSource)
}
