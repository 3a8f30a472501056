package inproccoord

import (
	"context"
	"testing"
	"time"

	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTest(t *testing.T, e *Ensemble, connStr string) (coordination.Session, <-chan coordination.SessionEvent) {
	cs, err := coordination.ParseConnectString(connStr)
	require.NoError(t, err)

	session, events, err := e.Dial(context.Background(), cs, coordination.DialOptions{})
	require.NoError(t, err)

	return session, events
}

func requireNodeEvent(t *testing.T, ch <-chan coordination.NodeEvent) coordination.NodeEvent {
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "watch channel closed without an event")
		return evt
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for node event")
	}
	return coordination.NodeEvent{}
}

func TestEnsembleDefaultSessionEvents(t *testing.T) {
	e := NewEnsemble(EnsembleOptions{})
	session, events := dialTest(t, e, "localhost:2181")

	evt := <-events
	assert.Equal(t, coordination.SessionEventConnected, evt.Type)
	assert.Equal(t, 1, e.OpenSessions())

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.Equal(t, 0, e.OpenSessions())
	assert.Equal(t, 1, e.TotalDials())

	_, ok := <-events
	assert.False(t, ok)
}

func TestEnsembleExistsWatch(t *testing.T) {
	e := NewEnsemble(EnsembleOptions{})
	session, _ := dialTest(t, e, "localhost:2181")
	defer session.Close()

	exists, watchCh, err := session.ExistsW(context.Background(), "/brokers/ids")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, e.Create("/brokers/ids/1", []byte("one")))

	evt := requireNodeEvent(t, watchCh)
	assert.Equal(t, coordination.NodeEventCreated, evt.Type)
	assert.Equal(t, "/brokers/ids", evt.Path)

	exists, _, err = session.ExistsW(context.Background(), "/brokers/ids")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEnsembleChildrenWatch(t *testing.T) {
	e := NewEnsemble(EnsembleOptions{})
	require.NoError(t, e.Create("/brokers/ids", nil))

	session, _ := dialTest(t, e, "localhost:2181")
	defer session.Close()

	children, watchCh, err := session.ChildrenW(context.Background(), "/brokers/ids")
	require.NoError(t, err)
	assert.Empty(t, children)

	require.NoError(t, e.Create("/brokers/ids/2", []byte("two")))
	require.NoError(t, e.Create("/brokers/ids/1", []byte("one")))

	evt := requireNodeEvent(t, watchCh)
	assert.Equal(t, coordination.NodeEventChildrenChanged, evt.Type)

	children, err = session.Children(context.Background(), "/brokers/ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, children)

	data, err := session.Get(context.Background(), "/brokers/ids/2")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)

	_, err = session.Get(context.Background(), "/brokers/ids/3")
	assert.ErrorIs(t, err, coordination.ErrNoNode)
}

func TestEnsembleChroot(t *testing.T) {
	e := NewEnsemble(EnsembleOptions{})
	require.NoError(t, e.Create("/kafka/brokers/ids/7", []byte("seven")))

	session, _ := dialTest(t, e, "localhost:2181/kafka")
	defer session.Close()

	children, err := session.Children(context.Background(), "/brokers/ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, children)
}

func TestEnsembleCloseCancelsWatches(t *testing.T) {
	e := NewEnsemble(EnsembleOptions{})
	session, _ := dialTest(t, e, "localhost:2181")

	_, watchCh, err := session.ExistsW(context.Background(), "/missing")
	require.NoError(t, err)

	require.NoError(t, session.Close())

	evt := requireNodeEvent(t, watchCh)
	assert.Equal(t, coordination.NodeEventNotWatching, evt.Type)

	_, err = session.Children(context.Background(), "/")
	assert.ErrorIs(t, err, coordination.ErrSessionClosed)
}

func TestEnsembleDelete(t *testing.T) {
	e := NewEnsemble(EnsembleOptions{})
	require.NoError(t, e.Create("/brokers/ids/1", nil))
	assert.ErrorIs(t, e.Create("/brokers/ids/1", nil), ErrNodeExists)

	session, _ := dialTest(t, e, "localhost:2181")
	defer session.Close()

	_, watchCh, err := session.ExistsW(context.Background(), "/brokers/ids/1")
	require.NoError(t, err)

	require.NoError(t, e.Delete("/brokers"))

	evt := requireNodeEvent(t, watchCh)
	assert.Equal(t, coordination.NodeEventDeleted, evt.Type)

	_, err = session.Children(context.Background(), "/brokers")
	assert.ErrorIs(t, err, coordination.ErrNoNode)
}

func TestEnsembleScriptedEvents(t *testing.T) {
	e := NewEnsemble(EnsembleOptions{
		SessionEvents: []coordination.SessionEvent{
			{Type: coordination.SessionEventConnected},
			{Type: coordination.SessionEventAuthFailed},
		},
	})
	session, events := dialTest(t, e, "localhost:2181")
	defer session.Close()

	w := coordination.NewConnectionWatcher(true)
	w.Watch(events)

	outcome := w.Wait(context.Background(), time.Second)
	assert.Equal(t, coordination.OutcomeAuthFailed, outcome.Kind)
}

func TestEnsembleDialErr(t *testing.T) {
	dialErr := assert.AnError
	e := NewEnsemble(EnsembleOptions{DialErr: dialErr})

	cs, err := coordination.ParseConnectString("localhost")
	require.NoError(t, err)

	_, _, err = e.Dial(context.Background(), cs, coordination.DialOptions{})
	assert.ErrorIs(t, err, dialErr)
}
