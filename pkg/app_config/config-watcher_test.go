package app_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeProperties(t *testing.T, path string, contents string) {
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestLoadClientProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.properties")
	writeProperties(t, path, `# kafka client settings
bootstrap.servers=kafka-1:9092,kafka-2:9092
security.protocol = SASL_SSL
sasl.jaas.config=org.apache.kafka.common.security.plain.PlainLoginModule required username="alice" password="secret";
max.poll.timeout.ms=2500
`)

	props, err := LoadClientProperties(path)
	require.NoError(t, err)

	assert.Equal(t, "kafka-1:9092,kafka-2:9092", props["bootstrap.servers"])
	assert.Equal(t, "SASL_SSL", props["security.protocol"])
	assert.Equal(t, "2500", props["max.poll.timeout.ms"])
	assert.Contains(t, props["sasl.jaas.config"], `username="alice"`)
}

func TestLoadClientPropertiesJavaSyntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.properties")
	writeProperties(t, path, `! alternate comment style
client.id: ready-${HOSTNAME}
SSL.CA.Location   /etc/kafka/ca.pem
sasl.jaas.config=org.apache.kafka.common.security.plain.PlainLoginModule required \
    username="bob" password="pw";
`)

	props, err := LoadClientProperties(path)
	require.NoError(t, err)

	assert.Equal(t, "ready-${HOSTNAME}", props["client.id"])
	assert.Equal(t, "/etc/kafka/ca.pem", props["ssl.ca.location"])
	assert.Equal(t,
		`org.apache.kafka.common.security.plain.PlainLoginModule required username="bob" password="pw";`,
		props["sasl.jaas.config"])
}

func TestLoadClientPropertiesMissing(t *testing.T) {
	_, err := LoadClientProperties(filepath.Join(t.TempDir(), "missing.properties"))
	assert.Error(t, err)
}

func TestConfigWatcherReportsChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.properties")
	writeProperties(t, path, "bootstrap.servers=kafka-1:9092\n")

	watcher, err := NewConfigWatcher(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer watcher.Close()

	clientID := uuid.NewString()
	writeProperties(t, path, "bootstrap.servers=kafka-2:9092\nclient.id="+clientID+"\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case props, ok := <-watcher.Updates():
			require.True(t, ok)
			if props["client.id"] != clientID {
				// an earlier partial write may be observed first
				continue
			}
			assert.Equal(t, "kafka-2:9092", props["bootstrap.servers"])
			return
		case <-deadline:
			require.FailNow(t, "no change observed")
		}
	}
}

func TestConfigWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.properties")
	writeProperties(t, path, "bootstrap.servers=kafka-1:9092\n")

	watcher, err := NewConfigWatcher(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer watcher.Close()

	writeProperties(t, filepath.Join(dir, "other.properties"), "bootstrap.servers=kafka-9:9092\n")

	select {
	case props := <-watcher.Updates():
		assert.Failf(t, "unexpected update", "%v", props)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConfigWatcherClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.properties")
	writeProperties(t, path, "bootstrap.servers=kafka-1:9092\n")

	watcher, err := NewConfigWatcher(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	require.NoError(t, watcher.Close())

	select {
	case _, ok := <-watcher.Updates():
		assert.False(t, ok)
	case <-time.After(time.Second):
		require.FailNow(t, "updates channel was not closed")
	}
}
