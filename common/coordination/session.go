package coordination

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNoNode        = errors.New("node does not exist")
	ErrSessionClosed = errors.New("session is closed")
)

// Session is an established coordination session.  Paths are absolute
// paths in the hierarchical namespace, and are resolved against the chroot
// of the connect string the session was dialed with.
type Session interface {
	// ExistsW reports whether path exists and leaves a watch which fires once
	// when the node is created, deleted or changed.
	ExistsW(ctx context.Context, path string) (bool, <-chan NodeEvent, error)

	// ChildrenW lists the children of path and leaves a watch which fires once
	// when the child list changes.
	ChildrenW(ctx context.Context, path string) ([]string, <-chan NodeEvent, error)

	Children(ctx context.Context, path string) ([]string, error)
	Get(ctx context.Context, path string) ([]byte, error)

	// Close ends the session.  It is safe to call Close more than once.
	Close() error
}

type DialOptions struct {
	SessionTimeout time.Duration
	Credentials    *Credentials
	Logger         *zap.Logger
}

// Dialer opens sessions against an ensemble.  The returned event channel
// reports session state changes and is closed when the session is closed.
type Dialer interface {
	Dial(ctx context.Context, connectString ConnectString, opts DialOptions) (Session, <-chan SessionEvent, error)
}
