package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"tftpwatch/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHooks struct {
	mu        sync.Mutex
	transfers []core.TransferRecord
	alerts    []*core.Alert
}

func (h *recordingHooks) transfer(rec core.TransferRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transfers = append(h.transfers, rec)
}

func (h *recordingHooks) alert(a *core.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, a)
}

func (h *recordingHooks) snapshot() ([]core.TransferRecord, []*core.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.TransferRecord(nil), h.transfers...), append([]*core.Alert(nil), h.alerts...)
}

func TestWriter_PersistsAndForwardsWithID(t *testing.T) {
	db := newTestSQLite(t)
	transfers := NewTransferStorage(db)
	alerts := NewAlertStorage(db)
	w := NewWriter(transfers, alerts, 10, zap.NewNop().Sugar())

	hooks := &recordingHooks{}
	w.OnTransfer(hooks.transfer)
	w.OnAlert(hooks.alert)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.True(t, w.SubmitTransfer(sampleTransfer("a.bin", "10.0.0.1")))
	require.True(t, w.SubmitTransfer(sampleTransfer("b.bin", "10.0.0.2")))

	alert, err := core.NewAlert(core.AlertCriticalResourceAccess, "Critical", "body", sampleTransfer("a.bin", "10.0.0.1"), baseTime)
	require.NoError(t, err)
	require.True(t, w.SubmitAlert(alert))

	require.Eventually(t, func() bool {
		tr, al := hooks.snapshot()
		return len(tr) == 2 && len(al) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	forwarded, _ := hooks.snapshot()
	assert.Equal(t, int64(1), forwarded[0].ID)
	assert.Equal(t, "b.bin", forwarded[1].Filename)
	assert.Equal(t, int64(2), forwarded[1].ID)

	stored, err := alerts.RecentAlerts(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, alert.ID, stored[0].ID)
}

func TestWriter_FullQueueStillForwards(t *testing.T) {
	db := newTestSQLite(t)
	w := NewWriter(NewTransferStorage(db), NewAlertStorage(db), 1, zap.NewNop().Sugar())

	hooks := &recordingHooks{}
	w.OnTransfer(hooks.transfer)

	// Run is not started, so the second submission finds the queue full
	assert.True(t, w.SubmitTransfer(sampleTransfer("queued.bin", "10.0.0.1")))
	assert.False(t, w.SubmitTransfer(sampleTransfer("dropped.bin", "10.0.0.1")))

	forwarded, _ := hooks.snapshot()
	require.Len(t, forwarded, 1)
	assert.Equal(t, "dropped.bin", forwarded[0].Filename)
	assert.Zero(t, forwarded[0].ID)
}

func TestWriter_DrainsOnShutdown(t *testing.T) {
	db := newTestSQLite(t)
	transfers := NewTransferStorage(db)
	w := NewWriter(transfers, NewAlertStorage(db), 10, zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		require.True(t, w.SubmitTransfer(sampleTransfer("f.bin", "10.0.0.1")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	maxID, err := transfers.MaxID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxID)
}

func TestWriter_SubmitNilAlert(t *testing.T) {
	db := newTestSQLite(t)
	w := NewWriter(NewTransferStorage(db), NewAlertStorage(db), 1, zap.NewNop().Sugar())
	assert.False(t, w.SubmitAlert(nil))
}
