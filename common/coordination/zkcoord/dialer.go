package zkcoord

import (
	"context"
	"fmt"
	"time"

	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"
)

// DefaultSessionTimeout is used when DialOptions does not specify one.
const DefaultSessionTimeout = 10 * time.Second

type DialerOptions struct {
	Logger *zap.Logger
}

// Dialer opens ZooKeeper sessions.
type Dialer struct {
	logger *zap.Logger
}

var _ coordination.Dialer = (*Dialer)(nil)

func NewDialer(opts DialerOptions) *Dialer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dialer{
		logger: logger.Named("zookeeper"),
	}
}

func (d *Dialer) Dial(
	ctx context.Context,
	connectString coordination.ConnectString,
	opts coordination.DialOptions,
) (coordination.Session, <-chan coordination.SessionEvent, error) {
	logger := d.logger
	if opts.Logger != nil {
		logger = opts.Logger.Named("zookeeper")
	}

	sessionTimeout := opts.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}

	conn, zkEvents, err := zk.Connect(
		connectString.ServerAddresses(),
		sessionTimeout,
		zk.WithLogger(newPrintfLogger(logger)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zookeeper connection: %w", err)
	}

	s := &zkSession{
		logger:        logger,
		conn:          conn,
		connectString: connectString,
		closeCh:       make(chan struct{}),
	}

	eventsCh := make(chan coordination.SessionEvent, 8)
	go s.forwardSessionEvents(zkEvents, eventsCh, opts.Credentials)

	return s, eventsCh, nil
}
