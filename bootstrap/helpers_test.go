package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureDataDirectory(t *testing.T) {
	base := t.TempDir()
	dbPath := filepath.Join(base, "nested", "data", "tftpwatch.db")

	dir, err := EnsureDataDirectory(dbPath, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "nested", "data"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(dir, ".tftpwatch_write_test"))
	assert.True(t, os.IsNotExist(err), "write probe must be removed")
}

func TestEnsureDataDirectory_ParentIsFile(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := EnsureDataDirectory(filepath.Join(blocker, "tftpwatch.db"), zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Remediation")
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyConnectionError(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"nil error returns empty string", nil, ""},
		{"timeout", timeoutError{}, "timed out"},
		{"connection refused", refused, "Connection refused by Redis"},
		{"dns failure", errors.New("dial tcp: lookup redis.internal: no such host"), "Cannot resolve hostname"},
		{"auth failure", errors.New("NOAUTH Authentication required"), "Authentication failed"},
		{"other", errors.New("protocol error"), "Failed to connect to Redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyConnectionError(tt.err, "Redis", "localhost:6379")
			if tt.contains == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.contains)
		})
	}
}

func TestClassifySQLiteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"nil error returns empty string", nil, ""},
		{"permission", errors.New("open db: permission denied"), "Permission denied"},
		{"locked", errors.New("database is locked (5) (SQLITE_BUSY)"), "locked by another process"},
		{"disk full", errors.New("write: no space left on device"), "Disk full"},
		{"corrupt", errors.New("database disk image is malformed"), "corrupted"},
		{"migration", fmt.Errorf("failed to migrate database: %w", errors.New("duplicate column")), "migration failed"},
		{"read only", errors.New("attempt to write a read-only database"), "read-only file system"},
		{"fallback", errors.New("unexpected"), "Failed to initialize SQLite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySQLiteError(tt.err, "./data/tftpwatch.db")
			if tt.contains == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.contains)
		})
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	assert.True(t, containsIgnoreCase("SQLITE_BUSY: locked", "sqlite_busy"))
	assert.True(t, containsIgnoreCase("anything", ""))
	assert.False(t, containsIgnoreCase("short", "much longer"))
}
