package inproccoord

import (
	"context"
	"path"

	"github.com/couchbase/cluster-ready/common/coordination"
	"golang.org/x/exp/slices"
)

type inProcSession struct {
	parent   *Ensemble
	chroot   coordination.ConnectString
	eventsCh chan coordination.SessionEvent
	closed   bool
}

var _ coordination.Session = (*inProcSession)(nil)

// sendEvent must be called with the ensemble lock held.
func (s *inProcSession) sendEvent(evt coordination.SessionEvent) {
	if s.closed {
		return
	}

	select {
	case s.eventsCh <- evt:
	default:
	}
}

func (s *inProcSession) resolve(nodePath string) string {
	return path.Clean(s.chroot.Path(nodePath))
}

func (s *inProcSession) ExistsW(ctx context.Context, nodePath string) (bool, <-chan coordination.NodeEvent, error) {
	fullPath := s.resolve(nodePath)

	e := s.parent
	e.lock.Lock()
	defer e.lock.Unlock()

	if s.closed {
		return false, nil, coordination.ErrSessionClosed
	}

	_, exists := e.nodes[fullPath]

	watchCh := make(chan coordination.NodeEvent, 1)
	e.existsWatchers[fullPath] = append(e.existsWatchers[fullPath], &nodeWatcher{
		session: s,
		ch:      watchCh,
	})

	return exists, watchCh, nil
}

func (s *inProcSession) ChildrenW(ctx context.Context, nodePath string) ([]string, <-chan coordination.NodeEvent, error) {
	fullPath := s.resolve(nodePath)

	e := s.parent
	e.lock.Lock()
	defer e.lock.Unlock()

	if s.closed {
		return nil, nil, coordination.ErrSessionClosed
	}

	if _, ok := e.nodes[fullPath]; !ok {
		return nil, nil, coordination.ErrNoNode
	}

	watchCh := make(chan coordination.NodeEvent, 1)
	e.childWatchers[fullPath] = append(e.childWatchers[fullPath], &nodeWatcher{
		session: s,
		ch:      watchCh,
	})

	return e.childrenLocked(fullPath), watchCh, nil
}

func (s *inProcSession) Children(ctx context.Context, nodePath string) ([]string, error) {
	fullPath := s.resolve(nodePath)

	e := s.parent
	e.lock.Lock()
	defer e.lock.Unlock()

	if s.closed {
		return nil, coordination.ErrSessionClosed
	}

	if _, ok := e.nodes[fullPath]; !ok {
		return nil, coordination.ErrNoNode
	}

	return e.childrenLocked(fullPath), nil
}

func (s *inProcSession) Get(ctx context.Context, nodePath string) ([]byte, error) {
	fullPath := s.resolve(nodePath)

	e := s.parent
	e.lock.Lock()
	defer e.lock.Unlock()

	if s.closed {
		return nil, coordination.ErrSessionClosed
	}

	data, ok := e.nodes[fullPath]
	if !ok {
		return nil, coordination.ErrNoNode
	}

	return slices.Clone(data), nil
}

func (s *inProcSession) Close() error {
	e := s.parent
	e.lock.Lock()
	defer e.lock.Unlock()

	if s.closed {
		return nil
	}

	e.removeSessionWatchersLocked(e.existsWatchers, s)
	e.removeSessionWatchersLocked(e.childWatchers, s)
	e.removeSessionLocked(s)

	s.closed = true
	close(s.eventsCh)

	return nil
}
