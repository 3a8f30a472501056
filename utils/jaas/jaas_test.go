package jaas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJaasFile = `
KafkaServer {
    org.apache.kafka.common.security.plain.PlainLoginModule required
    username="admin"
    password="admin-secret";
};

Client {
    org.apache.zookeeper.server.auth.DigestLoginModule required
    username="kafka"
    password="kafka-\"secret\"";
};
`

func TestParseEntry(t *testing.T) {
	entry, err := ParseEntry(`org.apache.kafka.common.security.plain.PlainLoginModule required username="alice" password="alice-secret";`)
	require.NoError(t, err)

	assert.Equal(t, "org.apache.kafka.common.security.plain.PlainLoginModule", entry.LoginModule)

	username, password, err := entry.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
	assert.Equal(t, "alice-secret", password)
}

func TestParseEntryUnquoted(t *testing.T) {
	entry, err := ParseEntry(`SomeModule required debug=true username=bob;`)
	require.NoError(t, err)
	assert.Equal(t, "true", entry.Options["debug"])
	assert.Equal(t, "bob", entry.Options["username"])
}

func TestEntryMissingCredentials(t *testing.T) {
	entry, err := ParseEntry(`SomeModule required;`)
	require.NoError(t, err)

	_, _, err = entry.Credentials()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestLoadSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jaas.conf")
	require.NoError(t, os.WriteFile(path, []byte(testJaasFile), 0600))

	entry, err := LoadSection(path, "Client")
	require.NoError(t, err)

	username, password, err := entry.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "kafka", username)
	assert.Equal(t, `kafka-"secret"`, password)

	_, err = LoadSection(path, "Missing")
	assert.ErrorIs(t, err, ErrSectionNotFound)

	_, err = LoadSection(filepath.Join(t.TempDir(), "nope.conf"), "Client")
	assert.Error(t, err)
}
