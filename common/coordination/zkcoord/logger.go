package zkcoord

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// printfLogger adapts zap onto the Printf style logger the zk library uses.
type printfLogger struct {
	logger *zap.Logger
}

func newPrintfLogger(logger *zap.Logger) *printfLogger {
	return &printfLogger{
		logger: logger.WithOptions(zap.AddCallerSkip(1)),
	}
}

func (l *printfLogger) Printf(format string, args ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))

	// the library reports every failed server attempt, which is routine while
	// an ensemble is still starting
	if strings.HasPrefix(msg, "failed to connect") || strings.Contains(msg, "connection refused") {
		l.logger.Debug(msg)
		return
	}

	l.logger.Info(msg)
}
