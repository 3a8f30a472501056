package membership

import "errors"

var (
	ErrCoordinationTimeout = errors.New("could not establish coordination session")
	ErrRegistrationTimeout = errors.New("timed out waiting for member registrations")
	ErrNoMembers           = errors.New("no members are registered")
	ErrInvalidMetadata     = errors.New("invalid member metadata")
)
