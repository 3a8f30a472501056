package zkcoord

import (
	"github.com/couchbase/cluster-ready/common/coordination"
	"github.com/go-zookeeper/zk"
)

// translateSessionEvent maps a zk session event onto a coordination event.
// hadSession indicates whether the session had previously been established,
// disconnects before that are part of normal server selection.
func translateSessionEvent(evt zk.Event, hadSession bool) (coordination.SessionEvent, bool) {
	if evt.Type != zk.EventSession {
		return coordination.SessionEvent{}, false
	}

	reason := ""
	if evt.Err != nil {
		reason = evt.Err.Error()
	}

	switch evt.State {
	case zk.StateHasSession:
		return coordination.SessionEvent{Type: coordination.SessionEventConnected}, true
	case zk.StateExpired:
		return coordination.SessionEvent{Type: coordination.SessionEventExpired, Reason: reason}, true
	case zk.StateAuthFailed:
		return coordination.SessionEvent{Type: coordination.SessionEventAuthFailed, Reason: reason}, true
	case zk.StateDisconnected:
		if hadSession {
			return coordination.SessionEvent{Type: coordination.SessionEventDisconnected, Reason: reason}, true
		}
	}

	return coordination.SessionEvent{}, false
}

func translateNodeEvent(evt zk.Event, path string) coordination.NodeEvent {
	var evtType coordination.NodeEventType
	switch evt.Type {
	case zk.EventNodeCreated:
		evtType = coordination.NodeEventCreated
	case zk.EventNodeDeleted:
		evtType = coordination.NodeEventDeleted
	case zk.EventNodeDataChanged:
		evtType = coordination.NodeEventDataChanged
	case zk.EventNodeChildrenChanged:
		evtType = coordination.NodeEventChildrenChanged
	default:
		evtType = coordination.NodeEventNotWatching
	}

	return coordination.NodeEvent{
		Type: evtType,
		Path: path,
	}
}
