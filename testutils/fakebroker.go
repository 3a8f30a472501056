package testutils

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/couchbase/cluster-ready/common/kafkawire"
	"github.com/couchbase/cluster-ready/utils/netutils"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

type FakeBrokerOptions struct {
	Logger *zap.Logger

	// Brokers is the broker list reported in metadata responses.  When empty
	// the fake broker reports only itself.
	Brokers []kafkawire.Broker

	// SaslUsers enables SASL PLAIN authentication with these credentials.
	SaslUsers map[string]string

	TLSConfig *tls.Config

	// CorruptCorrelation answers with a correlation id which does not match
	// the request.
	CorruptCorrelation bool
}

// FakeBroker is a minimal broker which answers metadata and sasl handshake
// requests on a local port.
type FakeBroker struct {
	logger    *zap.Logger
	listener  net.Listener
	saslUsers map[string]string
	corrupt   bool

	lock    sync.Mutex
	brokers []kafkawire.Broker
	conns   []net.Conn
	closed  bool

	metadataRequests atomic.Int32
	wg               sync.WaitGroup
}

func NewFakeBroker(opts FakeBrokerOptions) (*FakeBroker, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var listener net.Listener
	var err error
	if opts.TLSConfig != nil {
		listener, err = tls.Listen("tcp", "127.0.0.1:0", opts.TLSConfig)
	} else {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		return nil, err
	}

	b := &FakeBroker{
		logger:    logger.Named("fake-broker"),
		listener:  listener,
		saslUsers: opts.SaslUsers,
		corrupt:   opts.CorruptCorrelation,
		brokers:   slices.Clone(opts.Brokers),
	}

	b.wg.Add(1)
	go b.acceptLoop()

	return b, nil
}

func (b *FakeBroker) Endpoint() netutils.Endpoint {
	addr := b.listener.Addr().(*net.TCPAddr)
	return netutils.Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

// SetBrokers replaces the broker list reported from now on.
func (b *FakeBroker) SetBrokers(brokers []kafkawire.Broker) {
	b.lock.Lock()
	b.brokers = slices.Clone(brokers)
	b.lock.Unlock()
}

func (b *FakeBroker) MetadataRequests() int {
	return int(b.metadataRequests.Load())
}

func (b *FakeBroker) Close() error {
	err := b.listener.Close()

	b.lock.Lock()
	b.closed = true
	for _, conn := range b.conns {
		conn.Close()
	}
	b.lock.Unlock()

	b.wg.Wait()
	return err
}

func (b *FakeBroker) acceptLoop() {
	defer b.wg.Done()

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}

		b.lock.Lock()
		if b.closed {
			b.lock.Unlock()
			conn.Close()
			return
		}
		b.conns = append(b.conns, conn)
		b.lock.Unlock()

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer conn.Close()

			err := b.serve(conn)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				b.logger.Debug("connection ended", zap.Error(err))
			}
		}()
	}
}

func (b *FakeBroker) reportedBrokers() []kafkawire.Broker {
	b.lock.Lock()
	defer b.lock.Unlock()

	if len(b.brokers) > 0 {
		return slices.Clone(b.brokers)
	}

	endpoint := b.Endpoint()
	return []kafkawire.Broker{{NodeID: 0, Host: endpoint.Host, Port: int32(endpoint.Port)}}
}

func (b *FakeBroker) serve(conn net.Conn) error {
	authenticated := b.saslUsers == nil
	awaitingToken := false

	for {
		payload, err := kafkawire.ReadFrame(conn)
		if err != nil {
			return err
		}

		if awaitingToken {
			_, username, password, err := kafkawire.ParsePlainToken(payload)
			if err != nil {
				return err
			}

			expected, ok := b.saslUsers[username]
			if !ok || expected != password {
				return errors.New("invalid credentials")
			}

			authenticated = true
			awaitingToken = false
			if err := kafkawire.WriteFrame(conn, nil); err != nil {
				return err
			}
			continue
		}

		header, body, err := kafkawire.DecodeRequest(payload)
		if err != nil {
			return err
		}

		var respBody []byte
		switch header.APIKey {
		case kafkawire.APIKeySaslHandshake:
			req, err := kafkawire.DecodeSaslHandshakeRequest(body)
			if err != nil {
				return err
			}

			resp := kafkawire.SaslHandshakeResponse{
				EnabledMechanisms: []string{kafkawire.MechanismPlain},
			}
			if b.saslUsers == nil {
				resp.ErrorCode = kafkawire.ErrorCodeIllegalSaslState
			} else if req.Mechanism != kafkawire.MechanismPlain {
				resp.ErrorCode = kafkawire.ErrorCodeUnsupportedSaslMechanism
			} else {
				awaitingToken = true
			}
			respBody = kafkawire.EncodeSaslHandshakeResponse(resp)

		case kafkawire.APIKeyMetadata:
			if !authenticated {
				return errors.New("metadata request before authentication")
			}

			_, err := kafkawire.DecodeMetadataRequest(body)
			if err != nil {
				return err
			}

			b.metadataRequests.Add(1)
			respBody = kafkawire.EncodeMetadataResponse(kafkawire.MetadataResponse{
				Brokers:      b.reportedBrokers(),
				ControllerID: 0,
			})

		default:
			return kafkawire.ErrUnexpectedAPI
		}

		correlationID := header.CorrelationID
		if b.corrupt {
			correlationID++
		}

		err = kafkawire.WriteFrame(conn, kafkawire.EncodeResponse(correlationID, respBody))
		if err != nil {
			return err
		}
	}
}
