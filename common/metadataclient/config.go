package metadataclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchbase/cluster-ready/utils/jaas"
	"github.com/couchbase/cluster-ready/utils/netutils"
	"github.com/couchbase/cluster-ready/utils/sliceutils"
)

const (
	KeyBootstrapServers      = "bootstrap.servers"
	KeySecurityProtocol      = "security.protocol"
	KeyMaxPollTimeoutMs      = "max.poll.timeout.ms"
	KeyRequestTimeoutMs      = "request.timeout.ms"
	KeyClientID              = "client.id"
	KeySslCaLocation         = "ssl.ca.location"
	KeySslCertLocation       = "ssl.certificate.location"
	KeySslKeyLocation        = "ssl.key.location"
	KeySslEndpointIdentAlgo  = "ssl.endpoint.identification.algorithm"
	KeySaslMechanism         = "sasl.mechanism"
	KeySaslJaasConfig        = "sasl.jaas.config"
	KeySaslUsername          = "sasl.username"
	KeySaslPassword          = "sasl.password"
	DefaultMaxPollTimeout    = 5000 * time.Millisecond
	defaultEndpointIdentAlgo = "https"
)

var (
	ErrMissingBootstrap       = errors.New("bootstrap.servers must be specified")
	ErrUnknownProtocol        = errors.New("unknown security protocol")
	ErrUnsupportedMechanism   = errors.New("unsupported sasl mechanism")
	ErrMissingSaslCredentials = errors.New("sasl credentials must be specified")
	ErrInvalidConfig          = errors.New("invalid client configuration")
)

type SecurityProtocol string

const (
	SecurityProtocolPlaintext     SecurityProtocol = "PLAINTEXT"
	SecurityProtocolSsl           SecurityProtocol = "SSL"
	SecurityProtocolSaslPlaintext SecurityProtocol = "SASL_PLAINTEXT"
	SecurityProtocolSaslSsl       SecurityProtocol = "SASL_SSL"
)

func ParseSecurityProtocol(s string) (SecurityProtocol, error) {
	if s == "" {
		return SecurityProtocolPlaintext, nil
	}

	protocol := SecurityProtocol(strings.ToUpper(strings.TrimSpace(s)))
	switch protocol {
	case SecurityProtocolPlaintext, SecurityProtocolSsl, SecurityProtocolSaslPlaintext, SecurityProtocolSaslSsl:
		return protocol, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownProtocol, s)
}

func (p SecurityProtocol) UsesTLS() bool {
	return p == SecurityProtocolSsl || p == SecurityProtocolSaslSsl
}

func (p SecurityProtocol) UsesSasl() bool {
	return p == SecurityProtocolSaslPlaintext || p == SecurityProtocolSaslSsl
}

// Config is the parsed configuration of a metadata client.
type Config struct {
	BootstrapServers []netutils.Endpoint
	SecurityProtocol SecurityProtocol
	MaxPollTimeout   time.Duration
	ClientID         string

	TLSConfig *tls.Config

	SaslMechanism string
	SaslUsername  string
	SaslPassword  string
}

// ConfigFromProperties builds a Config from client properties.  Keys which
// are not understood are ignored.
func ConfigFromProperties(props map[string]string) (*Config, error) {
	bootstrap := strings.TrimSpace(props[KeyBootstrapServers])
	if bootstrap == "" {
		return nil, ErrMissingBootstrap
	}

	servers, err := netutils.ParseEndpointList(bootstrap, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, KeyBootstrapServers, err)
	}

	protocol, err := ParseSecurityProtocol(props[KeySecurityProtocol])
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BootstrapServers: sliceutils.RemoveDuplicates(servers),
		SecurityProtocol: protocol,
		MaxPollTimeout:   DefaultMaxPollTimeout,
		ClientID:         props[KeyClientID],
	}

	timeoutKey := KeyMaxPollTimeoutMs
	timeoutStr := props[KeyMaxPollTimeoutMs]
	if timeoutStr == "" {
		timeoutKey = KeyRequestTimeoutMs
		timeoutStr = props[KeyRequestTimeoutMs]
	}
	if timeoutStr != "" {
		timeoutMs, err := strconv.ParseInt(strings.TrimSpace(timeoutStr), 10, 64)
		if err != nil || timeoutMs <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidConfig, timeoutKey)
		}
		cfg.MaxPollTimeout = time.Duration(timeoutMs) * time.Millisecond
	}

	if protocol.UsesTLS() {
		cfg.TLSConfig, err = buildTLSConfig(props)
		if err != nil {
			return nil, err
		}
	}

	if protocol.UsesSasl() {
		err = cfg.applySasl(props)
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) applySasl(props map[string]string) error {
	mechanism := strings.ToUpper(strings.TrimSpace(props[KeySaslMechanism]))
	if mechanism == "" {
		mechanism = "PLAIN"
	}
	if mechanism != "PLAIN" {
		return fmt.Errorf("%w: %s", ErrUnsupportedMechanism, mechanism)
	}
	c.SaslMechanism = mechanism

	if jaasConfig := props[KeySaslJaasConfig]; jaasConfig != "" {
		entry, err := jaas.ParseEntry(jaasConfig)
		if err != nil {
			return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, KeySaslJaasConfig, err)
		}

		c.SaslUsername, c.SaslPassword, err = entry.Credentials()
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMissingSaslCredentials, err)
		}
	}

	if username := props[KeySaslUsername]; username != "" {
		c.SaslUsername = username
		c.SaslPassword = props[KeySaslPassword]
	}

	if c.SaslUsername == "" {
		return ErrMissingSaslCredentials
	}

	return nil
}

// SetSaslCredentials overrides the credentials used for SASL authentication.
func (c *Config) SetSaslCredentials(username, password string) {
	c.SaslUsername = username
	c.SaslPassword = password
	if c.SaslMechanism == "" {
		c.SaslMechanism = "PLAIN"
	}
}

func buildTLSConfig(props map[string]string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if caPath := props[KeySslCaLocation]; caPath != "" {
		caPem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %s", ErrInvalidConfig, KeySslCaLocation, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPem) {
			return nil, fmt.Errorf("%w: no certificates found in %s", ErrInvalidConfig, caPath)
		}
		tlsConfig.RootCAs = pool
	}

	certPath := props[KeySslCertLocation]
	keyPath := props[KeySslKeyLocation]
	if certPath != "" || keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load client certificate: %s", ErrInvalidConfig, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	identAlgo, ok := props[KeySslEndpointIdentAlgo]
	if !ok {
		identAlgo = defaultEndpointIdentAlgo
	}
	if strings.TrimSpace(identAlgo) == "" {
		// the chain is still verified, only the hostname check is skipped
		roots := tlsConfig.RootCAs
		tlsConfig.InsecureSkipVerify = true
		tlsConfig.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("server presented no certificates")
			}

			intermediates := x509.NewCertPool()
			for _, cert := range cs.PeerCertificates[1:] {
				intermediates.AddCert(cert)
			}

			_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
				Roots:         roots,
				Intermediates: intermediates,
			})
			return err
		}
	}

	return tlsConfig, nil
}

type ConfigDoc struct {
	Key         string
	Default     string
	Description string
}

// ConfigDocs describes every client property which is understood.
func ConfigDocs() []ConfigDoc {
	return []ConfigDoc{
		{KeyBootstrapServers, "", "Comma separated list of host:port pairs used to establish the initial connection to the cluster."},
		{KeySecurityProtocol, string(SecurityProtocolPlaintext), "Protocol used to communicate with brokers. One of PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL."},
		{KeyMaxPollTimeoutMs, strconv.FormatInt(DefaultMaxPollTimeout.Milliseconds(), 10), "The maximum time to wait for a single metadata request."},
		{KeyRequestTimeoutMs, "", "Alias of " + KeyMaxPollTimeoutMs + ", used when it is not set."},
		{KeyClientID, "cluster-ready-<n>", "Client id sent with every request."},
		{KeySslCaLocation, "", "PEM file of the certificate authorities used to verify brokers. System roots are used when unset."},
		{KeySslCertLocation, "", "PEM file of the client certificate for mutual TLS."},
		{KeySslKeyLocation, "", "PEM file of the client private key for mutual TLS."},
		{KeySslEndpointIdentAlgo, defaultEndpointIdentAlgo, "Endpoint identification algorithm. An empty value disables hostname verification."},
		{KeySaslMechanism, "PLAIN", "SASL mechanism. Only PLAIN is supported."},
		{KeySaslJaasConfig, "", "JAAS login module entry carrying username and password options."},
		{KeySaslUsername, "", "SASL username, takes precedence over " + KeySaslJaasConfig + "."},
		{KeySaslPassword, "", "SASL password."},
	}
}
