package etcdcoord

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/couchbase/cluster-ready/common/coordination"
	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

type etcdSession struct {
	logger        *zap.Logger
	client        *etcd.Client
	connectString coordination.ConnectString

	closeCtx    context.Context
	closeCancel context.CancelFunc
	closeOnce   sync.Once
}

var _ coordination.Session = (*etcdSession)(nil)

func (s *etcdSession) key(nodePath string) string {
	return path.Clean(s.connectString.Path(nodePath))
}

func childPrefix(key string) string {
	if key == "/" {
		return "/"
	}
	return key + "/"
}

// childNames extracts the unique direct child names of key from a set of
// descendant keys.
func childNames(key string, kvs []*mvccpb.KeyValue) []string {
	prefix := childPrefix(key)

	seen := make(map[string]struct{})
	var children []string
	for _, kv := range kvs {
		rest := strings.TrimPrefix(string(kv.Key), prefix)
		if rest == string(kv.Key) || rest == "" {
			continue
		}

		name, _, _ := strings.Cut(rest, "/")
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		children = append(children, name)
	}

	sort.Strings(children)
	return children
}

func (s *etcdSession) checkClosed() error {
	if s.closeCtx.Err() != nil {
		return coordination.ErrSessionClosed
	}
	return nil
}

// lookup returns whether the node exists along with its children and the
// revision the read was performed at.
func (s *etcdSession) lookup(ctx context.Context, key string) (bool, []string, int64, error) {
	if err := s.checkClosed(); err != nil {
		return false, nil, 0, err
	}

	selfResp, err := s.client.Get(ctx, key, etcd.WithCountOnly())
	if err != nil {
		return false, nil, 0, err
	}

	childResp, err := s.client.Get(ctx, childPrefix(key),
		etcd.WithPrefix(),
		etcd.WithKeysOnly(),
		etcd.WithRev(selfResp.Header.Revision))
	if err != nil {
		return false, nil, 0, err
	}

	children := childNames(key, childResp.Kvs)
	exists := selfResp.Count > 0 || len(children) > 0 || key == "/"

	return exists, children, selfResp.Header.Revision, nil
}

// watchOnce watches keys under watchKey from rev, delivering the first event
// classify maps to a node event.
func (s *etcdSession) watchOnce(
	watchKey string,
	rev int64,
	nodePath string,
	classify func(evt *etcd.Event) (coordination.NodeEventType, bool),
) <-chan coordination.NodeEvent {
	watchCh := make(chan coordination.NodeEvent, 1)

	ctx, cancel := context.WithCancel(s.closeCtx)
	etcdWatch := s.client.Watch(ctx, watchKey, etcd.WithPrefix(), etcd.WithRev(rev+1))

	go func() {
		defer cancel()
		defer close(watchCh)

		for {
			watchResp, ok := <-etcdWatch
			if !ok || watchResp.Canceled {
				watchCh <- coordination.NodeEvent{Type: coordination.NodeEventNotWatching, Path: nodePath}
				return
			}

			for _, evt := range watchResp.Events {
				if evtType, ok := classify(evt); ok {
					watchCh <- coordination.NodeEvent{Type: evtType, Path: nodePath}
					return
				}
			}
		}
	}()

	return watchCh
}

func (s *etcdSession) ExistsW(ctx context.Context, nodePath string) (bool, <-chan coordination.NodeEvent, error) {
	key := s.key(nodePath)

	exists, _, rev, err := s.lookup(ctx, key)
	if err != nil {
		return false, nil, err
	}

	prefix := childPrefix(key)
	watchCh := s.watchOnce(key, rev, nodePath, func(evt *etcd.Event) (coordination.NodeEventType, bool) {
		evtKey := string(evt.Kv.Key)
		isSelf := evtKey == key
		if !isSelf && !strings.HasPrefix(evtKey, prefix) {
			return 0, false
		}

		switch {
		case !exists && evt.Type == mvccpb.PUT:
			return coordination.NodeEventCreated, true
		case isSelf && evt.Type == mvccpb.DELETE:
			return coordination.NodeEventDeleted, true
		case isSelf && evt.Type == mvccpb.PUT:
			return coordination.NodeEventDataChanged, true
		}
		return 0, false
	})

	return exists, watchCh, nil
}

func (s *etcdSession) ChildrenW(ctx context.Context, nodePath string) ([]string, <-chan coordination.NodeEvent, error) {
	key := s.key(nodePath)

	exists, children, rev, err := s.lookup(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, coordination.ErrNoNode
	}

	prefix := childPrefix(key)
	watchCh := s.watchOnce(prefix, rev, nodePath, func(evt *etcd.Event) (coordination.NodeEventType, bool) {
		if evt.Type == mvccpb.DELETE || evt.IsCreate() {
			return coordination.NodeEventChildrenChanged, true
		}
		return 0, false
	})

	return children, watchCh, nil
}

func (s *etcdSession) Children(ctx context.Context, nodePath string) ([]string, error) {
	exists, children, _, err := s.lookup(ctx, s.key(nodePath))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, coordination.ErrNoNode
	}

	return children, nil
}

func (s *etcdSession) Get(ctx context.Context, nodePath string) ([]byte, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	resp, err := s.client.Get(ctx, s.key(nodePath))
	if err != nil {
		return nil, err
	}

	if len(resp.Kvs) == 0 {
		return nil, coordination.ErrNoNode
	}

	return resp.Kvs[0].Value, nil
}

func (s *etcdSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closeCancel()
		err = s.client.Close()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
