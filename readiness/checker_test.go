package readiness

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/couchbase/cluster-ready/common/coordination/inproccoord"
	"github.com/couchbase/cluster-ready/utils/netutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func closedEndpoint(t *testing.T) netutils.Endpoint {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	return netutils.Endpoint{Host: "127.0.0.1", Port: port}
}

// liveEnsembleAddress returns a listening address so that the liveness gate
// passes, while sessions are served by the in-process ensemble.
func liveEnsembleAddress(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	return l.Addr().String()
}

func newEnsembleChecker(t *testing.T, ensemble *inproccoord.Ensemble, creds *coordination.Credentials) *Checker {
	return NewChecker(CheckerOptions{
		Logger:      zaptest.NewLogger(t),
		Dialer:      ensemble,
		Credentials: creds,
	})
}

func TestCheckConnectivity(t *testing.T) {
	c := NewChecker(CheckerOptions{Logger: zaptest.NewLogger(t)})

	addr := liveEnsembleAddress(t)
	endpoint, err := netutils.ParseEndpoint(addr, 0)
	require.NoError(t, err)

	assert.True(t, c.CheckConnectivity(context.Background(), endpoint, time.Second))
	assert.False(t, c.CheckConnectivity(context.Background(), closedEndpoint(t), 100*time.Millisecond))
}

func TestIsEnsembleReadyTwice(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	c := newEnsembleChecker(t, ensemble, nil)
	addr := liveEnsembleAddress(t)

	assert.True(t, c.IsEnsembleReady(context.Background(), addr, time.Second))
	assert.Equal(t, 0, ensemble.OpenSessions())

	assert.True(t, c.IsEnsembleReady(context.Background(), addr, time.Second))
	assert.Equal(t, 0, ensemble.OpenSessions())
	assert.Equal(t, 2, ensemble.TotalDials())
}

func TestIsEnsembleReadyUnreachable(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	c := newEnsembleChecker(t, ensemble, nil)

	assert.False(t, c.IsEnsembleReady(context.Background(), closedEndpoint(t).String(), 100*time.Millisecond))
	assert.Equal(t, 0, ensemble.TotalDials())
}

func TestIsEnsembleReadyOneLiveHost(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	c := newEnsembleChecker(t, ensemble, nil)

	connStr := fmt.Sprintf("%s,%s", closedEndpoint(t), liveEnsembleAddress(t))
	assert.True(t, c.IsEnsembleReady(context.Background(), connStr, 200*time.Millisecond))
}

func TestIsEnsembleReadyFailures(t *testing.T) {
	creds := &coordination.Credentials{Scheme: "digest", Username: "admin", Password: "secret"}

	testCases := []struct {
		name   string
		events []coordination.SessionEvent
		creds  *coordination.Credentials
	}{
		{"AuthFailed", []coordination.SessionEvent{
			{Type: coordination.SessionEventConnected},
			{Type: coordination.SessionEventAuthFailed},
		}, creds},
		{"ConnectedWithoutAuth", []coordination.SessionEvent{
			{Type: coordination.SessionEventConnected},
		}, creds},
		{"Expired", []coordination.SessionEvent{
			{Type: coordination.SessionEventExpired},
		}, nil},
		{"Disconnected", []coordination.SessionEvent{
			{Type: coordination.SessionEventDisconnected},
		}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{SessionEvents: tc.events})
			c := newEnsembleChecker(t, ensemble, tc.creds)

			assert.False(t, c.IsEnsembleReady(context.Background(), liveEnsembleAddress(t), 200*time.Millisecond))
			assert.Equal(t, 0, ensemble.OpenSessions())
		})
	}
}

func TestIsEnsembleReadyAuthenticated(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{
		SessionEvents: []coordination.SessionEvent{
			{Type: coordination.SessionEventConnected},
			{Type: coordination.SessionEventAuthenticated},
		},
	})
	c := newEnsembleChecker(t, ensemble, &coordination.Credentials{Username: "admin"})

	assert.True(t, c.IsEnsembleReady(context.Background(), liveEnsembleAddress(t), time.Second))
}

func TestIsEnsembleReadyInvalidConnectString(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	c := newEnsembleChecker(t, ensemble, nil)

	assert.False(t, c.IsEnsembleReady(context.Background(), "zk1:notaport", time.Second))
}

func TestGetBootstrapEndpointFromEnsemble(t *testing.T) {
	ensemble := inproccoord.NewEnsemble(inproccoord.EnsembleOptions{})
	require.NoError(t, ensemble.Create("/brokers/ids/1",
		[]byte(`{"endpoints":["PLAINTEXT://kafka-1:9092","SASL_SSL://kafka-1:9094"]}`)))
	c := newEnsembleChecker(t, ensemble, nil)

	endpoints, err := c.GetBootstrapEndpointFromEnsemble(context.Background(), "localhost:2181", time.Second)
	require.NoError(t, err)

	endpoint, ok := endpoints.Lookup("SASL_SSL")
	require.True(t, ok)
	assert.Equal(t, netutils.Endpoint{Host: "kafka-1", Port: 9094}, endpoint)
	assert.Equal(t, 0, ensemble.OpenSessions())
}
