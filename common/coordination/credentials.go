package coordination

import (
	"fmt"

	"github.com/couchbase/cluster-ready/utils/jaas"
)

// DefaultAuthSection is the JAAS section the ensemble client credentials are
// read from.
const DefaultAuthSection = "Client"

// Credentials used to authenticate a session.
type Credentials struct {
	Scheme   string
	Username string
	Password string
}

// AuthRequired reports whether sessions opened with these credentials must wait
// for an authentication event before being considered established.
func (c *Credentials) AuthRequired() bool {
	return c != nil
}

// CredentialsFromAuthConfig loads credentials from a JAAS style auth config
// file.  An empty path means authentication is disabled and returns nil.
func CredentialsFromAuthConfig(authConfigPath string) (*Credentials, error) {
	if authConfigPath == "" {
		return nil, nil
	}

	entry, err := jaas.LoadSection(authConfigPath, DefaultAuthSection)
	if err != nil {
		return nil, fmt.Errorf("auth config is required but could not be loaded: %w", err)
	}

	username, password, err := entry.Credentials()
	if err != nil {
		return nil, fmt.Errorf("auth config is required but could not be loaded: %w", err)
	}

	return &Credentials{
		Scheme:   "digest",
		Username: username,
		Password: password,
	}, nil
}
