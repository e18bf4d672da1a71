package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, out <-chan string) string {
	t.Helper()
	select {
	case l := <-out:
		return l
	case <-time.After(5 * time.Second):
		t.Fatal("no line received")
		return ""
	}
}

// TestFileSource_FollowsAppends checks that only lines written after start are emitted
func TestFileSource_FollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syslog")
	require.NoError(t, os.WriteFile(path, []byte("old line\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan string, 10)
	src := NewFileSource(path, zap.NewNop().Sugar())
	go src.Run(ctx, out)

	// Let the watcher register before appending
	time.Sleep(200 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("in.tftpd[3]: RRQ from 10.0.0.1 filename x\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, "in.tftpd[3]: RRQ from 10.0.0.1 filename x", receive(t, out))
}

// TestFileSource_Rotation checks that a recreated file is read from the start
func TestFileSource_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syslog")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan string, 10)
	go NewFileSource(path, zap.NewNop().Sugar()).Run(ctx, out)
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, os.WriteFile(path, []byte("after rotation\n"), 0o600))

	assert.Equal(t, "after rotation", receive(t, out))
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent"), zap.NewNop().Sugar())
	err := src.Run(context.Background(), make(chan string, 1))
	assert.ErrorIs(t, err, ErrSourceClosed)
}
