package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionWatcherConnected(t *testing.T) {
	w := NewConnectionWatcher(false)
	w.Process(SessionEvent{Type: SessionEventConnected})

	outcome := w.Wait(context.Background(), time.Second)
	assert.True(t, outcome.Successful())
	assert.NoError(t, outcome.Err())
}

func TestConnectionWatcherAuthRequired(t *testing.T) {
	w := NewConnectionWatcher(true)
	w.Process(SessionEvent{Type: SessionEventConnected})

	select {
	case <-w.Done():
		require.Fail(t, "connected should not resolve an authenticated watcher")
	default:
	}

	w.Process(SessionEvent{Type: SessionEventAuthenticated})
	outcome := w.Wait(context.Background(), time.Second)
	assert.Equal(t, OutcomeConnected, outcome.Kind)
}

func TestConnectionWatcherFailures(t *testing.T) {
	testCases := []struct {
		evt     SessionEventType
		kind    OutcomeKind
		baseErr error
		reason  string
	}{
		{SessionEventExpired, OutcomeExpired, ErrSessionExpired, "Session expired."},
		{SessionEventDisconnected, OutcomeDisconnected, ErrDisconnected, "Disconnected from the server."},
		{SessionEventAuthFailed, OutcomeAuthFailed, ErrAuthFailed, "Authentication failed."},
	}

	for _, tc := range testCases {
		t.Run(tc.evt.String(), func(t *testing.T) {
			w := NewConnectionWatcher(true)
			w.Process(SessionEvent{Type: tc.evt})

			outcome := w.Wait(context.Background(), time.Second)
			assert.Equal(t, tc.kind, outcome.Kind)
			assert.Equal(t, tc.reason, outcome.Reason)
			assert.ErrorIs(t, outcome.Err(), tc.baseErr)
		})
	}
}

func TestConnectionWatcherFirstOutcomeWins(t *testing.T) {
	w := NewConnectionWatcher(false)
	w.Process(SessionEvent{Type: SessionEventConnected})
	w.Process(SessionEvent{Type: SessionEventExpired})

	outcome := w.Wait(context.Background(), time.Second)
	assert.Equal(t, OutcomeConnected, outcome.Kind)
}

func TestConnectionWatcherTimeout(t *testing.T) {
	w := NewConnectionWatcher(false)

	start := time.Now()
	outcome := w.Wait(context.Background(), 50*time.Millisecond)
	assert.Equal(t, OutcomeTimedOut, outcome.Kind)
	assert.ErrorIs(t, outcome.Err(), ErrConnectTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestConnectionWatcherWatchDrains(t *testing.T) {
	events := make(chan SessionEvent)
	w := NewConnectionWatcher(false)
	w.Watch(events)

	events <- SessionEvent{Type: SessionEventConnected}
	// further sends must not block once the outcome is decided
	events <- SessionEvent{Type: SessionEventDisconnected}
	events <- SessionEvent{Type: SessionEventConnected}
	close(events)

	outcome := w.Wait(context.Background(), time.Second)
	assert.Equal(t, OutcomeConnected, outcome.Kind)
}
