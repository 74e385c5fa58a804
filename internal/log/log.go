// Package log wraps go.uber.org/zap with phase-tagged helpers used by the
// data-flow driver and the register allocator, in the style of Typthon's
// pkg/logger.LogPhase family, but backed by a real structured-logging
// library.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.Mutex
	global *zap.Logger
)

// Init installs the process-wide logger. verbose routes debug-level
// records to stderr; a successful, non-verbose compile emits nothing at
// or above info level, matching the CLI's clean-output contract.
func Init(verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	cfg := zap.NewDevelopmentConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	global = l
}

func logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = zap.NewNop()
	}
	return global
}

// Phase returns a child logger tagged with the given pipeline stage name,
// e.g. log.Phase("irbuild"), log.Phase("regalloc").
func Phase(name string) *zap.Logger {
	return logger().With(zap.String("phase", name))
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	mu.Lock()
	l := global
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}
