package metadataclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/couchbase/cluster-ready/common/kafkawire"
	"github.com/couchbase/cluster-ready/utils/netutils"
	"go.uber.org/zap"
)

var (
	ErrNoBootstrapResponded = errors.New("no bootstrap broker responded")
	ErrCorrelationMismatch  = errors.New("correlation id mismatch")
	ErrSaslAuthentication   = errors.New("sasl authentication failed")
)

var clientIDSequence atomic.Int32

// Broker is a live member of the cluster as reported in cluster metadata.
type Broker struct {
	NodeID   int32
	Endpoint netutils.Endpoint
	Rack     string
}

type ClientOptions struct {
	Logger *zap.Logger
	Config *Config
}

// Client asks bootstrap brokers for the list of brokers in their cluster.
// Every request uses a dedicated connection which is closed afterwards.
type Client struct {
	logger   *zap.Logger
	config   *Config
	clientID string

	correlationID atomic.Int32
}

func NewClient(opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clientID := opts.Config.ClientID
	if clientID == "" {
		clientID = "cluster-ready-" + strconv.Itoa(int(clientIDSequence.Add(1)))
	}

	return &Client{
		logger:   logger.Named("metadata-client"),
		config:   opts.Config,
		clientID: clientID,
	}
}

func (c *Client) ClientID() string {
	return c.clientID
}

// FindAllBrokers tries each bootstrap broker in turn and returns the broker
// list from the first which answers.  Each attempt is bounded by the smaller
// of timeout and the configured maximum poll timeout.  ErrNoBootstrapResponded
// means the cluster is not reachable yet.
func (c *Client) FindAllBrokers(ctx context.Context, timeout time.Duration) ([]Broker, error) {
	attemptTimeout := timeout
	if c.config.MaxPollTimeout > 0 && c.config.MaxPollTimeout < attemptTimeout {
		attemptTimeout = c.config.MaxPollTimeout
	}

	for _, endpoint := range c.config.BootstrapServers {
		brokers, err := c.queryBroker(ctx, endpoint, attemptTimeout)
		if err != nil {
			if isConnRefused(err) {
				c.logger.Debug("bootstrap broker refused connection", zap.Stringer("endpoint", endpoint))
			} else {
				c.logger.Info("metadata request failed",
					zap.Stringer("endpoint", endpoint),
					zap.Error(err))
			}
			continue
		}

		return brokers, nil
	}

	c.logger.Info("metadata request failed on all bootstrap brokers",
		zap.String("bootstrap", netutils.JoinEndpoints(c.config.BootstrapServers)))
	return nil, ErrNoBootstrapResponded
}

func (c *Client) queryBroker(ctx context.Context, endpoint netutils.Endpoint, timeout time.Duration) ([]Broker, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		err = conn.SetDeadline(deadline)
		if err != nil {
			return nil, err
		}
	}

	if c.config.SecurityProtocol.UsesSasl() {
		err = c.authenticate(conn)
		if err != nil {
			return nil, err
		}
	}

	respBody, err := c.roundTrip(conn, kafkawire.APIKeyMetadata, kafkawire.MetadataVersion,
		kafkawire.EncodeMetadataRequest(kafkawire.MetadataRequest{}))
	if err != nil {
		return nil, err
	}

	resp, err := kafkawire.DecodeMetadataResponse(respBody)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata response: %w", err)
	}

	brokers := make([]Broker, 0, len(resp.Brokers))
	for _, broker := range resp.Brokers {
		rack := ""
		if broker.Rack != nil {
			rack = *broker.Rack
		}

		brokerEndpoint := netutils.Endpoint{Host: broker.Host, Port: int(broker.Port)}
		if err := brokerEndpoint.Validate(); err != nil {
			c.logger.Warn("ignoring broker with an unusable endpoint",
				zap.Int32("nodeId", broker.NodeID),
				zap.Error(err))
			continue
		}

		brokers = append(brokers, Broker{
			NodeID:   broker.NodeID,
			Endpoint: brokerEndpoint,
			Rack:     rack,
		})
	}

	c.logger.Debug("received cluster metadata",
		zap.Stringer("endpoint", endpoint),
		zap.Int("brokers", len(brokers)),
		zap.Int32("controllerId", resp.ControllerID))

	return brokers, nil
}

func (c *Client) dial(ctx context.Context, endpoint netutils.Endpoint) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.String())
	if err != nil {
		return nil, err
	}

	if !c.config.SecurityProtocol.UsesTLS() {
		return conn, nil
	}

	tlsConfig := c.config.TLSConfig.Clone()
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = endpoint.Host
	}

	tlsConn := tls.Client(conn, tlsConfig)
	err = tlsConn.HandshakeContext(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake failed: %w", err)
	}

	return tlsConn, nil
}

func (c *Client) roundTrip(conn net.Conn, apiKey, apiVersion int16, body []byte) ([]byte, error) {
	correlationID := c.correlationID.Add(1)

	err := kafkawire.WriteFrame(conn, kafkawire.EncodeRequest(kafkawire.RequestHeader{
		APIKey:        apiKey,
		APIVersion:    apiVersion,
		CorrelationID: correlationID,
		ClientID:      &c.clientID,
	}, body))
	if err != nil {
		return nil, err
	}

	payload, err := kafkawire.ReadFrame(conn)
	if err != nil {
		return nil, err
	}

	respCorrelationID, respBody, err := kafkawire.DecodeResponse(payload)
	if err != nil {
		return nil, err
	}

	if respCorrelationID != correlationID {
		return nil, fmt.Errorf("%w: sent %d, received %d", ErrCorrelationMismatch, correlationID, respCorrelationID)
	}

	return respBody, nil
}

func (c *Client) authenticate(conn net.Conn) error {
	respBody, err := c.roundTrip(conn, kafkawire.APIKeySaslHandshake, kafkawire.SaslHandshakeVersion,
		kafkawire.EncodeSaslHandshakeRequest(kafkawire.SaslHandshakeRequest{Mechanism: c.config.SaslMechanism}))
	if err != nil {
		return err
	}

	resp, err := kafkawire.DecodeSaslHandshakeResponse(respBody)
	if err != nil {
		return fmt.Errorf("failed to decode sasl handshake response: %w", err)
	}

	if resp.ErrorCode != kafkawire.ErrorCodeNone {
		return fmt.Errorf("%w: %w (enabled mechanisms: %v)", ErrSaslAuthentication, resp.ErrorCode, resp.EnabledMechanisms)
	}

	err = kafkawire.WriteFrame(conn, kafkawire.PlainToken("", c.config.SaslUsername, c.config.SaslPassword))
	if err != nil {
		return err
	}

	// the broker answers a successful exchange with an empty frame and closes
	// the connection otherwise
	_, err = kafkawire.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSaslAuthentication, err)
	}

	return nil
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
