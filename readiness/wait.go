package readiness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/couchbase/cluster-ready/common/metadataclient"
	"go.uber.org/zap"
)

var (
	ErrNotReady           = errors.New("cluster is not ready")
	ErrEnsembleNotReady   = errors.New("could not reach zookeeper")
	ErrConfigRequired     = errors.New("config is required for all protocols except PLAINTEXT")
	ErrNoProtocolEndpoint = errors.New("no broker endpoint for security protocol")
	ErrNoBootstrapSource  = errors.New("either bootstrap servers or an ensemble connect string is required")
)

// KafkaReadyRequest describes a wait for a broker cluster.  Exactly one of
// BootstrapServers and EnsembleConnect should be set.
type KafkaReadyRequest struct {
	MinBrokers int
	Timeout    time.Duration

	// ClientProperties are the contents of the client configuration file, nil
	// when none was supplied.
	ClientProperties map[string]string

	BootstrapServers string
	EnsembleConnect  string
	SecurityProtocol string

	// SaslUsername and SaslPassword override any credentials found in
	// ClientProperties.
	SaslUsername string
	SaslPassword string
}

// WaitForCluster resolves the bootstrap servers, directly or through the
// ensemble, and then waits for the cluster to report enough brokers.
// Configuration problems are returned immediately, ErrNotReady means the
// cluster did not become ready in time.
func (c *Checker) WaitForCluster(ctx context.Context, req KafkaReadyRequest) error {
	protocol, err := metadataclient.ParseSecurityProtocol(req.SecurityProtocol)
	if err != nil {
		return err
	}

	if req.ClientProperties == nil && protocol != metadataclient.SecurityProtocolPlaintext {
		return ErrConfigRequired
	}

	props := make(map[string]string)
	maps.Copy(props, req.ClientProperties)

	switch {
	case req.BootstrapServers != "":
		props[metadataclient.KeyBootstrapServers] = req.BootstrapServers

	case req.EnsembleConnect != "":
		if !c.IsEnsembleReady(ctx, req.EnsembleConnect, req.Timeout) {
			return fmt.Errorf("%w %s", ErrEnsembleNotReady, req.EnsembleConnect)
		}

		endpoints, err := c.GetBootstrapEndpointFromEnsemble(ctx, req.EnsembleConnect, req.Timeout)
		if err != nil {
			return err
		}

		endpoint, ok := endpoints.Lookup(string(protocol))
		if !ok {
			return fmt.Errorf("%w %s (registered: %v)", ErrNoProtocolEndpoint, protocol, endpoints.Protocols())
		}

		c.logger.Info("discovered bootstrap broker from ensemble",
			zap.String("protocol", string(protocol)),
			zap.Stringer("endpoint", endpoint))
		props[metadataclient.KeyBootstrapServers] = endpoint.String()

	default:
		if props[metadataclient.KeyBootstrapServers] == "" {
			return ErrNoBootstrapSource
		}
	}

	if _, ok := props[metadataclient.KeySecurityProtocol]; !ok {
		props[metadataclient.KeySecurityProtocol] = string(protocol)
	}

	if req.SaslUsername != "" {
		props[metadataclient.KeySaslUsername] = req.SaslUsername
		props[metadataclient.KeySaslPassword] = req.SaslPassword
	}

	cfg, err := metadataclient.ConfigFromProperties(props)
	if err != nil {
		return err
	}

	if !c.IsClusterReady(ctx, cfg, req.MinBrokers, req.Timeout) {
		return ErrNotReady
	}

	return nil
}
