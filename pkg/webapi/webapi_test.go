package webapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchbase/cluster-ready/readiness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type staticStatus struct {
	lock   sync.Mutex
	status readiness.MonitorStatus
}

func (s *staticStatus) Status() readiness.MonitorStatus {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.status
}

func (s *staticStatus) setClusterReady(ready bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	cluster := *s.status.Cluster
	cluster.Ready = ready
	s.status.Cluster = &cluster
}

func newTestServer(t *testing.T, source StatusSource, level *zap.AtomicLevel) *httptest.Server {
	w := NewWebServer(WebServerOptions{
		Logger:   zaptest.NewLogger(t),
		LogLevel: level,
		Status:   source,
	})

	srv := httptest.NewServer(w.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getStatus(t *testing.T, url string) (int, map[string]interface{}) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	if resp.Header.Get("Content-Type") != "application/json" {
		return resp.StatusCode, nil
	}

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	return resp.StatusCode, decoded
}

func TestReadyEndpoints(t *testing.T) {
	source := &staticStatus{status: readiness.MonitorStatus{
		InstanceID: "test-instance",
		Ensemble:   &readiness.ComponentStatus{Ready: true, CheckedAt: time.Now()},
		Cluster:    &readiness.ComponentStatus{Ready: false, CheckedAt: time.Now(), ObservedBrokers: 2},
	}}
	srv := newTestServer(t, source, nil)

	code, body := getStatus(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "test-instance", body["instanceId"])

	code, body = getStatus(t, srv.URL+"/readyz/ensemble")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ready"])

	code, body = getStatus(t, srv.URL+"/readyz/cluster")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, float64(2), body["observedBrokers"])

	source.setClusterReady(true)
	code, _ = getStatus(t, srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestReadyUnmonitoredComponent(t *testing.T) {
	source := &staticStatus{status: readiness.MonitorStatus{
		Cluster: &readiness.ComponentStatus{Ready: true},
	}}
	srv := newTestServer(t, source, nil)

	code, _ := getStatus(t, srv.URL+"/readyz/ensemble")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMetricsAndRoot(t *testing.T) {
	srv := newTestServer(t, &staticStatus{}, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "readiness monitor")
}

func TestLogLevelEndpoint(t *testing.T) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	srv := newTestServer(t, &staticStatus{}, &level)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/log-level", strings.NewReader(`{"level":"debug"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, zap.DebugLevel, level.Level())
}
