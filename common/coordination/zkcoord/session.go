package zkcoord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"
)

type zkSession struct {
	logger        *zap.Logger
	conn          *zk.Conn
	connectString coordination.ConnectString

	closeOnce sync.Once
	closeCh   chan struct{}
}

var _ coordination.Session = (*zkSession)(nil)

// forwardSessionEvents is the only writer of eventsCh.  Authentication runs on
// its own goroutine and hands its result back through authCh, which is never
// closed, so a late AddAuth result after Close is simply dropped.
func (s *zkSession) forwardSessionEvents(
	zkEvents <-chan zk.Event,
	eventsCh chan<- coordination.SessionEvent,
	creds *coordination.Credentials,
) {
	defer close(eventsCh)

	authCh := make(chan coordination.SessionEvent, 1)

	emit := func(evt coordination.SessionEvent) bool {
		select {
		case eventsCh <- evt:
			return true
		case <-s.closeCh:
			return false
		}
	}

	hadSession := false
	for {
		var evt coordination.SessionEvent
		select {
		case zkEvt, ok := <-zkEvents:
			if !ok {
				return
			}

			s.logger.Debug("zookeeper session event",
				zap.Stringer("state", zkEvt.State),
				zap.String("server", zkEvt.Server))

			translated, ok := translateSessionEvent(zkEvt, hadSession)
			if !ok {
				continue
			}
			evt = translated
		case authEvt := <-authCh:
			evt = authEvt
		case <-s.closeCh:
			return
		}

		if !emit(evt) {
			return
		}

		if evt.Type == coordination.SessionEventConnected && !hadSession {
			hadSession = true

			if creds.AuthRequired() {
				go s.authenticate(creds, authCh)
			}
		}
	}
}

// authenticate sends exactly one event to authCh, which must have room for it.
func (s *zkSession) authenticate(creds *coordination.Credentials, authCh chan<- coordination.SessionEvent) {
	scheme := creds.Scheme
	if scheme == "" {
		scheme = "digest"
	}

	err := s.conn.AddAuth(scheme, []byte(creds.Username+":"+creds.Password))
	if err != nil {
		s.logger.Warn("zookeeper authentication failed", zap.Error(err))
		authCh <- coordination.SessionEvent{Type: coordination.SessionEventAuthFailed, Reason: err.Error()}
		return
	}

	authCh <- coordination.SessionEvent{Type: coordination.SessionEventAuthenticated}
}

func (s *zkSession) translateErr(err error) error {
	switch {
	case errors.Is(err, zk.ErrNoNode):
		return fmt.Errorf("%w: %s", coordination.ErrNoNode, err)
	case errors.Is(err, zk.ErrClosing), errors.Is(err, zk.ErrConnectionClosed):
		return fmt.Errorf("%w: %s", coordination.ErrSessionClosed, err)
	}
	return err
}

func (s *zkSession) forwardWatch(zkWatch <-chan zk.Event, path string) <-chan coordination.NodeEvent {
	watchCh := make(chan coordination.NodeEvent, 1)
	go func() {
		defer close(watchCh)

		select {
		case evt, ok := <-zkWatch:
			if ok {
				watchCh <- translateNodeEvent(evt, path)
			}
		case <-s.closeCh:
			watchCh <- coordination.NodeEvent{Type: coordination.NodeEventNotWatching, Path: path}
		}
	}()
	return watchCh
}

func (s *zkSession) ExistsW(ctx context.Context, path string) (bool, <-chan coordination.NodeEvent, error) {
	exists, _, zkWatch, err := s.conn.ExistsW(s.connectString.Path(path))
	if err != nil {
		return false, nil, s.translateErr(err)
	}

	return exists, s.forwardWatch(zkWatch, path), nil
}

func (s *zkSession) ChildrenW(ctx context.Context, path string) ([]string, <-chan coordination.NodeEvent, error) {
	children, _, zkWatch, err := s.conn.ChildrenW(s.connectString.Path(path))
	if err != nil {
		return nil, nil, s.translateErr(err)
	}

	return children, s.forwardWatch(zkWatch, path), nil
}

func (s *zkSession) Children(ctx context.Context, path string) ([]string, error) {
	children, _, err := s.conn.Children(s.connectString.Path(path))
	if err != nil {
		return nil, s.translateErr(err)
	}

	return children, nil
}

func (s *zkSession) Get(ctx context.Context, path string) ([]byte, error) {
	data, _, err := s.conn.Get(s.connectString.Path(path))
	if err != nil {
		return nil, s.translateErr(err)
	}

	return data, nil
}

func (s *zkSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.conn.Close()
	})
	return nil
}
