package coordination

import (
	"context"
	"time"
)

// ConnectionWatcher turns the stream of session events into a single
// SessionOutcome.  When authentication is required, Connected is not enough
// and the watcher waits for Authenticated instead.
type ConnectionWatcher struct {
	authRequired bool
	result       *OneShot[SessionOutcome]
}

func NewConnectionWatcher(authRequired bool) *ConnectionWatcher {
	return &ConnectionWatcher{
		authRequired: authRequired,
		result:       NewOneShot[SessionOutcome](),
	}
}

// Process handles a single session event.  Events arriving after the outcome
// has been decided are ignored.
func (w *ConnectionWatcher) Process(evt SessionEvent) {
	switch evt.Type {
	case SessionEventConnected:
		if !w.authRequired {
			w.result.Fire(SessionOutcome{Kind: OutcomeConnected})
		}
	case SessionEventAuthenticated:
		w.result.Fire(SessionOutcome{Kind: OutcomeConnected})
	case SessionEventExpired:
		w.result.Fire(SessionOutcome{Kind: OutcomeExpired, Reason: reasonOr(evt, "Session expired.")})
	case SessionEventDisconnected:
		w.result.Fire(SessionOutcome{Kind: OutcomeDisconnected, Reason: reasonOr(evt, "Disconnected from the server.")})
	case SessionEventAuthFailed:
		w.result.Fire(SessionOutcome{Kind: OutcomeAuthFailed, Reason: reasonOr(evt, "Authentication failed.")})
	}
}

// Watch consumes events until the channel is closed.  Events after the
// outcome is decided are still drained so the producer never blocks.
func (w *ConnectionWatcher) Watch(events <-chan SessionEvent) {
	go func() {
		for evt := range events {
			w.Process(evt)
		}
	}()
}

func (w *ConnectionWatcher) Done() <-chan struct{} {
	return w.result.Done()
}

// Wait blocks for the outcome.  If nothing decisive happens before the
// timeout, an OutcomeTimedOut is returned.
func (w *ConnectionWatcher) Wait(ctx context.Context, timeout time.Duration) SessionOutcome {
	outcome, ok := w.result.Wait(ctx, timeout)
	if !ok {
		return SessionOutcome{Kind: OutcomeTimedOut, Reason: "Timed out waiting for connection."}
	}

	return outcome
}

func reasonOr(evt SessionEvent, fallback string) string {
	if evt.Reason != "" {
		return fallback + " " + evt.Reason
	}
	return fallback
}
