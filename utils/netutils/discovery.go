package netutils

import (
	"time"

	"go.uber.org/zap"
)

// AnyEndpointLive probes the endpoints in the order they were listed and
// returns as soon as one of them accepts a connection.  Each endpoint is given
// the full timeout.
func AnyEndpointLive(logger *zap.Logger, endpoints []Endpoint, timeout time.Duration) bool {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, endpoint := range endpoints {
		if CheckConnectivity(logger, endpoint, timeout) {
			return true
		}

		logger.Error("timed out waiting for endpoint",
			zap.Stringer("endpoint", endpoint),
			zap.String("endpoints", JoinEndpoints(endpoints)))
	}

	return false
}
