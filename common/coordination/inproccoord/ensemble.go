package inproccoord

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/couchbase/cluster-ready/common/coordination"
	"golang.org/x/exp/slices"
)

var ErrNodeExists = errors.New("node already exists")

type EnsembleOptions struct {
	// SessionEvents are delivered, in order, to every newly dialed session.
	// When empty, a single Connected event is delivered.
	SessionEvents []coordination.SessionEvent

	// DialErr, when set, makes every dial fail with this error.
	DialErr error
}

type nodeWatcher struct {
	session *inProcSession
	ch      chan coordination.NodeEvent
}

// Ensemble is an in-process hierarchical namespace implementing
// coordination.Dialer.  Watches follow the usual one-shot semantics.
type Ensemble struct {
	lock           sync.Mutex
	nodes          map[string][]byte
	existsWatchers map[string][]*nodeWatcher
	childWatchers  map[string][]*nodeWatcher
	sessions       []*inProcSession
	sessionEvents  []coordination.SessionEvent
	dialErr        error
	totalDials     int
}

var _ coordination.Dialer = (*Ensemble)(nil)

func NewEnsemble(opts EnsembleOptions) *Ensemble {
	sessionEvents := opts.SessionEvents
	if len(sessionEvents) == 0 {
		sessionEvents = []coordination.SessionEvent{{Type: coordination.SessionEventConnected}}
	}

	return &Ensemble{
		nodes: map[string][]byte{
			"/": nil,
		},
		existsWatchers: make(map[string][]*nodeWatcher),
		childWatchers:  make(map[string][]*nodeWatcher),
		sessionEvents:  slices.Clone(sessionEvents),
		dialErr:        opts.DialErr,
	}
}

func (e *Ensemble) fireLocked(watchers map[string][]*nodeWatcher, nodePath string, evtType coordination.NodeEventType) {
	for _, w := range watchers[nodePath] {
		w.ch <- coordination.NodeEvent{Type: evtType, Path: nodePath}
		close(w.ch)
	}
	delete(watchers, nodePath)
}

func (e *Ensemble) removeSessionWatchersLocked(watchers map[string][]*nodeWatcher, s *inProcSession) {
	for nodePath, pathWatchers := range watchers {
		var kept []*nodeWatcher
		for _, w := range pathWatchers {
			if w.session == s {
				w.ch <- coordination.NodeEvent{Type: coordination.NodeEventNotWatching, Path: nodePath}
				close(w.ch)
				continue
			}
			kept = append(kept, w)
		}

		if len(kept) == 0 {
			delete(watchers, nodePath)
		} else {
			watchers[nodePath] = kept
		}
	}
}

func (e *Ensemble) createLocked(nodePath string, data []byte) {
	if _, ok := e.nodes[nodePath]; ok {
		return
	}

	parent := path.Dir(nodePath)
	e.createLocked(parent, nil)

	e.nodes[nodePath] = slices.Clone(data)
	e.fireLocked(e.existsWatchers, nodePath, coordination.NodeEventCreated)
	e.fireLocked(e.childWatchers, parent, coordination.NodeEventChildrenChanged)
}

// Create adds a node along with any missing parents.
func (e *Ensemble) Create(nodePath string, data []byte) error {
	nodePath = path.Clean(nodePath)

	e.lock.Lock()
	defer e.lock.Unlock()

	if _, ok := e.nodes[nodePath]; ok {
		return ErrNodeExists
	}

	e.createLocked(nodePath, data)
	return nil
}

// Set replaces the data of an existing node.
func (e *Ensemble) Set(nodePath string, data []byte) error {
	nodePath = path.Clean(nodePath)

	e.lock.Lock()
	defer e.lock.Unlock()

	if _, ok := e.nodes[nodePath]; !ok {
		return coordination.ErrNoNode
	}

	e.nodes[nodePath] = slices.Clone(data)
	e.fireLocked(e.existsWatchers, nodePath, coordination.NodeEventDataChanged)
	return nil
}

// Delete removes a node and everything beneath it.
func (e *Ensemble) Delete(nodePath string) error {
	nodePath = path.Clean(nodePath)

	e.lock.Lock()
	defer e.lock.Unlock()

	if _, ok := e.nodes[nodePath]; !ok || nodePath == "/" {
		return coordination.ErrNoNode
	}

	for candidate := range e.nodes {
		if strings.HasPrefix(candidate, nodePath+"/") {
			delete(e.nodes, candidate)
			e.fireLocked(e.existsWatchers, candidate, coordination.NodeEventDeleted)
			e.fireLocked(e.childWatchers, candidate, coordination.NodeEventDeleted)
		}
	}
	delete(e.nodes, nodePath)

	e.fireLocked(e.existsWatchers, nodePath, coordination.NodeEventDeleted)
	e.fireLocked(e.childWatchers, path.Dir(nodePath), coordination.NodeEventChildrenChanged)
	return nil
}

func (e *Ensemble) childrenLocked(nodePath string) []string {
	prefix := nodePath + "/"
	if nodePath == "/" {
		prefix = "/"
	}

	var children []string
	for candidate := range e.nodes {
		if candidate == "/" || !strings.HasPrefix(candidate, prefix) {
			continue
		}

		name := candidate[len(prefix):]
		if strings.Contains(name, "/") {
			continue
		}
		children = append(children, name)
	}

	sort.Strings(children)
	return children
}

// SetSessionEvents changes the events delivered to sessions dialed from now on.
func (e *Ensemble) SetSessionEvents(events ...coordination.SessionEvent) {
	e.lock.Lock()
	e.sessionEvents = slices.Clone(events)
	e.lock.Unlock()
}

// BroadcastSessionEvent delivers an event to every open session.
func (e *Ensemble) BroadcastSessionEvent(evt coordination.SessionEvent) {
	e.lock.Lock()
	defer e.lock.Unlock()

	for _, s := range e.sessions {
		s.sendEvent(evt)
	}
}

// OpenSessions returns the number of sessions which have not been closed.
func (e *Ensemble) OpenSessions() int {
	e.lock.Lock()
	defer e.lock.Unlock()

	return len(e.sessions)
}

// TotalDials returns the number of successful dials ever made.
func (e *Ensemble) TotalDials() int {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.totalDials
}

func (e *Ensemble) Dial(
	ctx context.Context,
	connectString coordination.ConnectString,
	opts coordination.DialOptions,
) (coordination.Session, <-chan coordination.SessionEvent, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.dialErr != nil {
		return nil, nil, e.dialErr
	}

	// buffered so that scripted and broadcast events never block the ensemble
	eventsCh := make(chan coordination.SessionEvent, len(e.sessionEvents)+16)
	s := &inProcSession{
		parent:   e,
		chroot:   connectString,
		eventsCh: eventsCh,
	}
	for _, evt := range e.sessionEvents {
		s.sendEvent(evt)
	}

	e.sessions = append(e.sessions, s)
	e.totalDials++

	return s, eventsCh, nil
}

func (e *Ensemble) removeSessionLocked(s *inProcSession) bool {
	sessionIdx := slices.Index(e.sessions, s)
	if sessionIdx == -1 {
		return false
	}

	e.sessions = slices.Delete(e.sessions, sessionIdx, sessionIdx+1)
	return true
}
