package goroutine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.ErrorLevel)
	return zap.New(core).Sugar(), logs
}

func TestRecover_NoPanic(t *testing.T) {
	logger, logs := observedLogger()

	func() {
		defer Recover("writer", logger)
	}()

	assert.Zero(t, logs.Len())
}

func TestRecover_LogsPanic(t *testing.T) {
	logger, logs := observedLogger()

	func() {
		defer Recover("correlation", logger)
		causeThePanic()
	}()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Goroutine panic recovered", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "correlation", fields["goroutine"])
	assert.Equal(t, "pending pool corrupted", fields["panic"])

	stack, ok := fields["stack"].(string)
	require.True(t, ok)
	assert.Contains(t, stack, "causeThePanic")
	assert.LessOrEqual(t, len(stack), StackTraceBufferSize)
}

func TestRecover_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		defer Recover("dispatcher", nil)
		panic("no logger")
	})
}

func TestSupervise_PassesThroughResult(t *testing.T) {
	logger, logs := observedLogger()

	ok := Supervise("api", logger, func() error { return nil })
	assert.NoError(t, ok())

	sentinel := errors.New("listen tcp: address already in use")
	failing := Supervise("api", logger, func() error { return sentinel })
	err := failing()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "api: ")
	assert.Zero(t, logs.Len())
}

func TestSupervise_ConvertsPanic(t *testing.T) {
	logger, logs := observedLogger()

	run := Supervise("detect", logger, func() error {
		var m map[string]int
		m["boom"]++
		return nil
	})

	var err error
	assert.NotPanics(t, func() { err = run() })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPanicked)
	assert.Contains(t, err.Error(), "detect")
	assert.Equal(t, 1, logs.Len())
}

func causeThePanic() {
	panic("pending pool corrupted")
}
