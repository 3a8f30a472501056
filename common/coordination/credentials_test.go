package coordination

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchbase/cluster-ready/utils/jaas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsFromAuthConfigDisabled(t *testing.T) {
	creds, err := CredentialsFromAuthConfig("")
	require.NoError(t, err)
	assert.Nil(t, creds)
	assert.False(t, creds.AuthRequired())
}

func TestCredentialsFromAuthConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zk_jaas.conf")
	err := os.WriteFile(path, []byte(`
Client {
  org.apache.zookeeper.server.auth.DigestLoginModule required
  username="admin"
  password="hunter2";
};
`), 0o600)
	require.NoError(t, err)

	creds, err := CredentialsFromAuthConfig(path)
	require.NoError(t, err)
	assert.True(t, creds.AuthRequired())
	assert.Equal(t, &Credentials{Scheme: "digest", Username: "admin", Password: "hunter2"}, creds)
}

func TestCredentialsFromAuthConfigMissingSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zk_jaas.conf")
	err := os.WriteFile(path, []byte(`Server { x required user_admin="a"; };`), 0o600)
	require.NoError(t, err)

	_, err = CredentialsFromAuthConfig(path)
	assert.ErrorIs(t, err, jaas.ErrSectionNotFound)
}
