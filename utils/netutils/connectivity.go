package netutils

import (
	"errors"
	"net"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ProbeBackoff is the fixed delay between connection attempts.
const ProbeBackoff = 1000 * time.Millisecond

// CheckConnectivity checks if a service is listening on the endpoint.  It keeps
// trying until the timeout has elapsed, waiting ProbeBackoff between attempts,
// since the process behind the endpoint may still be booting.  It never returns
// an error, only whether a connection could be established.
func CheckConnectivity(logger *zap.Logger, endpoint Endpoint, timeout time.Duration) bool {
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Debug("checking connectivity", zap.Stringer("endpoint", endpoint))

	b := backoff.NewConstantBackOff(ProbeBackoff)

	begin := time.Now()
	remaining := timeout
	for remaining > 0 {
		conn, err := net.DialTimeout("tcp", endpoint.String(), timeout)
		if err == nil {
			_ = conn.Close()
			return true
		}

		if isConnRefused(err) {
			logger.Debug("endpoint refused connection",
				zap.Stringer("endpoint", endpoint))
		} else {
			logger.Warn("failed to connect to endpoint",
				zap.Stringer("endpoint", endpoint),
				zap.Error(err))
		}

		time.Sleep(b.NextBackOff())

		remaining = timeout - time.Since(begin)
	}

	return false
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
