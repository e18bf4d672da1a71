package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestCommandSource_StreamEnds checks that a terminated stream is reported as fatal
func TestCommandSource_StreamEnds(t *testing.T) {
	src := NewCommandSource("test", "sh", []string{"-c", "echo first; echo; echo second"}, zap.NewNop().Sugar())
	out := make(chan string, 10)

	err := src.Run(context.Background(), out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceClosed)

	close(out)
	var lines []string
	for l := range out {
		lines = append(lines, l)
	}
	assert.Equal(t, []string{"first", "second"}, lines)
}

func TestCommandSource_MissingBinary(t *testing.T) {
	src := NewCommandSource("test", "/nonexistent/journalctl", nil, zap.NewNop().Sugar())
	err := src.Run(context.Background(), make(chan string, 1))
	assert.ErrorIs(t, err, ErrSourceClosed)
}

// TestCommandSource_Cancel checks that cancellation stops the source without error
func TestCommandSource_Cancel(t *testing.T) {
	src := NewCommandSource("test", "sh", []string{"-c", "echo ready; sleep 30"}, zap.NewNop().Sugar())
	out := make(chan string, 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	select {
	case line := <-out:
		assert.Equal(t, "ready", line)
	case <-time.After(5 * time.Second):
		t.Fatal("no line received")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop")
	}
}

func TestNewJournalSource(t *testing.T) {
	src := NewJournalSource("tftpd-hpa", zap.NewNop().Sugar())
	assert.Equal(t, "journal", src.Name())
	assert.Equal(t, "journalctl", src.path)
	assert.Equal(t, []string{"-u", "tftpd-hpa", "-f", "-n", "0", "-o", "short"}, src.args)
}
