package coordination

type SessionEventType int

const (
	SessionEventConnected SessionEventType = iota
	SessionEventAuthenticated
	SessionEventExpired
	SessionEventDisconnected
	SessionEventAuthFailed
)

func (t SessionEventType) String() string {
	switch t {
	case SessionEventConnected:
		return "Connected"
	case SessionEventAuthenticated:
		return "Authenticated"
	case SessionEventExpired:
		return "Expired"
	case SessionEventDisconnected:
		return "Disconnected"
	case SessionEventAuthFailed:
		return "AuthFailed"
	}
	return "Unknown"
}

// SessionEvent is a change in the state of a coordination session.
type SessionEvent struct {
	Type SessionEventType

	// Reason optionally carries backend specific detail for failures.
	Reason string
}

type NodeEventType int

const (
	NodeEventCreated NodeEventType = iota
	NodeEventDeleted
	NodeEventDataChanged
	NodeEventChildrenChanged
	NodeEventNotWatching
)

func (t NodeEventType) String() string {
	switch t {
	case NodeEventCreated:
		return "NodeCreated"
	case NodeEventDeleted:
		return "NodeDeleted"
	case NodeEventDataChanged:
		return "NodeDataChanged"
	case NodeEventChildrenChanged:
		return "NodeChildrenChanged"
	case NodeEventNotWatching:
		return "NotWatching"
	}
	return "Unknown"
}

// NodeEvent is delivered on the channel returned by a watching call.  Every
// watch channel delivers at most one event.
type NodeEvent struct {
	Type NodeEventType
	Path string
}
