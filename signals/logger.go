package signals

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the signals package's logger instance.
// It uses a no-op logger by default. Nothing is logged from signal context.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the signals package's logger.
// This must be called before Install.
func SetLogger(l *zap.Logger) {
	logger = l
}
