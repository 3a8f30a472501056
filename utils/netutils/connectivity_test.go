package netutils

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func listenLocal(t *testing.T) (net.Listener, Endpoint) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := lis.Addr().(*net.TCPAddr)
	return lis, Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

func closedLocalEndpoint(t *testing.T) Endpoint {
	lis, endpoint := listenLocal(t)
	require.NoError(t, lis.Close())
	return endpoint
}

func TestCheckConnectivityLive(t *testing.T) {
	lis, endpoint := listenLocal(t)
	defer lis.Close()

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	start := time.Now()
	assert.True(t, CheckConnectivity(zaptest.NewLogger(t), endpoint, 5*time.Second))
	assert.Less(t, time.Since(start), ProbeBackoff)
}

func TestCheckConnectivityClosedPort(t *testing.T) {
	endpoint := closedLocalEndpoint(t)

	timeout := 1500 * time.Millisecond
	start := time.Now()
	live := CheckConnectivity(zaptest.NewLogger(t), endpoint, timeout)
	elapsed := time.Since(start)

	assert.False(t, live)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+2*ProbeBackoff)
}

func TestCheckConnectivityNoBudget(t *testing.T) {
	endpoint := closedLocalEndpoint(t)

	start := time.Now()
	assert.False(t, CheckConnectivity(nil, endpoint, 0))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestCheckConnectivityLateListener(t *testing.T) {
	endpoint := closedLocalEndpoint(t)

	// the service comes up after the first attempt has already failed
	go func() {
		time.Sleep(300 * time.Millisecond)
		lis, err := net.Listen("tcp", endpoint.String())
		if err != nil {
			return
		}
		defer lis.Close()

		conn, err := lis.Accept()
		if err == nil {
			_ = conn.Close()
		}
		time.Sleep(2 * time.Second)
	}()

	assert.True(t, CheckConnectivity(zaptest.NewLogger(t), endpoint, 5*time.Second))
}

func TestAnyEndpointLive(t *testing.T) {
	lis, live := listenLocal(t)
	defer lis.Close()

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	dead := closedLocalEndpoint(t)

	start := time.Now()
	assert.True(t, AnyEndpointLive(zaptest.NewLogger(t), []Endpoint{dead, live}, 1200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 1200*time.Millisecond)
}

func TestAnyEndpointLiveAllDead(t *testing.T) {
	dead := closedLocalEndpoint(t)
	assert.False(t, AnyEndpointLive(zaptest.NewLogger(t), []Endpoint{dead}, 500*time.Millisecond))
	assert.False(t, AnyEndpointLive(nil, nil, time.Second))
}
