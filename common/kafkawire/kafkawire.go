// Package kafkawire implements the small subset of the Kafka wire protocol
// needed to enumerate the brokers of a cluster.
package kafkawire

import (
	"errors"
	"fmt"
)

const (
	APIKeyMetadata      int16 = 3
	APIKeySaslHandshake int16 = 17
)

// MaxFrameSize bounds the size of any single frame which is read.
const MaxFrameSize = 100 * 1024 * 1024

var (
	ErrTruncated     = errors.New("truncated message")
	ErrInvalidLength = errors.New("invalid length")
	ErrFrameTooLarge = errors.New("frame too large")
	ErrUnexpectedAPI = errors.New("unexpected api key")
	ErrTrailingBytes = errors.New("unexpected trailing bytes")
	ErrInvalidToken  = errors.New("invalid sasl token")
)

// ErrorCode is a protocol level error code carried inside a response.
type ErrorCode int16

const (
	ErrorCodeNone                     ErrorCode = 0
	ErrorCodeUnsupportedSaslMechanism ErrorCode = 33
	ErrorCodeIllegalSaslState         ErrorCode = 34
	ErrorCodeUnsupportedVersion       ErrorCode = 35
	ErrorCodeSaslAuthenticationFailed ErrorCode = 58
)

func (c ErrorCode) Error() string {
	switch c {
	case ErrorCodeNone:
		return "no error"
	case ErrorCodeUnsupportedSaslMechanism:
		return "unsupported sasl mechanism"
	case ErrorCodeIllegalSaslState:
		return "illegal sasl state"
	case ErrorCodeUnsupportedVersion:
		return "unsupported version"
	case ErrorCodeSaslAuthenticationFailed:
		return "sasl authentication failed"
	}
	return fmt.Sprintf("kafka error code %d", int16(c))
}
