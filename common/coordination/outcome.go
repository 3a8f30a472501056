package coordination

import (
	"errors"
	"fmt"
)

var (
	ErrAuthFailed     = errors.New("authentication failed")
	ErrSessionExpired = errors.New("session expired")
	ErrDisconnected   = errors.New("disconnected from the server")
	ErrConnectTimeout = errors.New("timed out waiting for session")
)

type OutcomeKind int

const (
	OutcomeConnected OutcomeKind = iota
	OutcomeAuthFailed
	OutcomeExpired
	OutcomeDisconnected
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConnected:
		return "Connected"
	case OutcomeAuthFailed:
		return "AuthFailed"
	case OutcomeExpired:
		return "Expired"
	case OutcomeDisconnected:
		return "Disconnected"
	case OutcomeTimedOut:
		return "TimedOut"
	}
	return "Unknown"
}

// SessionOutcome is the single result of establishing a session.
type SessionOutcome struct {
	Kind   OutcomeKind
	Reason string
}

func (o SessionOutcome) Successful() bool {
	return o.Kind == OutcomeConnected
}

// Err returns nil for a connected session, otherwise an error wrapping one of
// the package's session errors along with the human readable reason.
func (o SessionOutcome) Err() error {
	var baseErr error
	switch o.Kind {
	case OutcomeConnected:
		return nil
	case OutcomeAuthFailed:
		baseErr = ErrAuthFailed
	case OutcomeExpired:
		baseErr = ErrSessionExpired
	case OutcomeDisconnected:
		baseErr = ErrDisconnected
	default:
		baseErr = ErrConnectTimeout
	}

	if o.Reason == "" {
		return baseErr
	}

	return fmt.Errorf("%w: %s", baseErr, o.Reason)
}
