package zkcoord

import (
	"errors"
	"testing"

	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTranslateSessionEvent(t *testing.T) {
	testCases := []struct {
		name       string
		evt        zk.Event
		hadSession bool
		expected   coordination.SessionEventType
		ok         bool
	}{
		{"HasSession", zk.Event{Type: zk.EventSession, State: zk.StateHasSession}, false, coordination.SessionEventConnected, true},
		{"Expired", zk.Event{Type: zk.EventSession, State: zk.StateExpired}, true, coordination.SessionEventExpired, true},
		{"AuthFailed", zk.Event{Type: zk.EventSession, State: zk.StateAuthFailed}, false, coordination.SessionEventAuthFailed, true},
		{"DisconnectedAfterSession", zk.Event{Type: zk.EventSession, State: zk.StateDisconnected}, true, coordination.SessionEventDisconnected, true},
		{"DisconnectedBeforeSession", zk.Event{Type: zk.EventSession, State: zk.StateDisconnected}, false, 0, false},
		{"Connecting", zk.Event{Type: zk.EventSession, State: zk.StateConnecting}, false, 0, false},
		{"NodeEvent", zk.Event{Type: zk.EventNodeCreated, State: zk.StateHasSession}, true, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			evt, ok := translateSessionEvent(tc.evt, tc.hadSession)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, evt.Type)
			}
		})
	}
}

func TestTranslateSessionEventReason(t *testing.T) {
	evt, ok := translateSessionEvent(zk.Event{
		Type:  zk.EventSession,
		State: zk.StateAuthFailed,
		Err:   errors.New("bad digest"),
	}, false)
	assert.True(t, ok)
	assert.Equal(t, "bad digest", evt.Reason)
}

func TestTranslateNodeEvent(t *testing.T) {
	assert.Equal(t,
		coordination.NodeEvent{Type: coordination.NodeEventCreated, Path: "/brokers/ids"},
		translateNodeEvent(zk.Event{Type: zk.EventNodeCreated, Path: "/kafka/brokers/ids"}, "/brokers/ids"))
	assert.Equal(t,
		coordination.NodeEventChildrenChanged,
		translateNodeEvent(zk.Event{Type: zk.EventNodeChildrenChanged}, "/x").Type)
	assert.Equal(t,
		coordination.NodeEventNotWatching,
		translateNodeEvent(zk.Event{Type: zk.EventNotWatching}, "/x").Type)
}

func TestPrintfLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newPrintfLogger(zap.New(core))

	l.Printf("failed to connect to %s: %v", "127.0.0.1:2181", "dial tcp: connection refused")
	l.Printf("connected to %s", "127.0.0.1:2181")

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
		assert.Equal(t, "connected to 127.0.0.1:2181", entries[1].Message)
	}
}
