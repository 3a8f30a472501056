package zkcoord

import (
	"context"
	"testing"
	"time"

	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/couchbase/cluster-ready/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func getTestConnectString(t *testing.T) coordination.ConnectString {
	cs, err := coordination.ParseConnectString(testutils.RequireZookeeper(t))
	require.NoError(t, err)
	return cs
}

func TestDialIntegration(t *testing.T) {
	cs := getTestConnectString(t)

	d := NewDialer(DialerOptions{Logger: zaptest.NewLogger(t)})
	session, events, err := d.Dial(context.Background(), cs, coordination.DialOptions{
		SessionTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	defer session.Close()

	w := coordination.NewConnectionWatcher(false)
	w.Watch(events)

	outcome := w.Wait(context.Background(), 10*time.Second)
	require.True(t, outcome.Successful(), "session failed: %v", outcome.Err())

	exists, _, err := session.ExistsW(context.Background(), "/")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = session.Get(context.Background(), "/cluster-ready-missing-node")
	assert.ErrorIs(t, err, coordination.ErrNoNode)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
}
