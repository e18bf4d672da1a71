// Package goroutine keeps component panics from taking the process down
// silently.
package goroutine

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// StackTraceBufferSize is the buffer size for stack trace collection
const StackTraceBufferSize = 4096

// ErrPanicked is wrapped by the error Supervise returns for a panicking component
var ErrPanicked = errors.New("component panicked")

// Recover recovers from panics in goroutines and logs them.
// If logger is nil, falls back to stderr so the panic is still recorded.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		logPanic(name, r, logger)
	}
}

// Supervise wraps a component run function for an errgroup. A panic inside
// fn is logged and returned as an error wrapping ErrPanicked, so the group
// cancels its siblings instead of the process dying mid-write.
func Supervise(name string, logger *zap.SugaredLogger, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(name, r, logger)
				err = fmt.Errorf("%w: %s: %v", ErrPanicked, name, r)
			}
		}()
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func logPanic(name string, r interface{}, logger *zap.SugaredLogger) {
	buf := make([]byte, StackTraceBufferSize)
	n := runtime.Stack(buf, false)

	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", string(buf[:n]))
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n",
		name, r, string(buf[:n]))
}
