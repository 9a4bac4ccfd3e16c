package core

import (
	"sync"

	"go.uber.org/zap"
)

// Logger returns the package logger. It is a no-op logger until SetLogger is called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()

	return logger
}

// SetLogger replaces the package logger. A nil logger restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}

	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// unexported variables.
var (
	//nolint:gochecknoglobals // package logger, replaced once by the embedding program
	logger = zap.NewNop()
	//nolint:gochecknoglobals // guards logger
	loggerMu sync.RWMutex
)
