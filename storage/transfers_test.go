package storage

import (
	"context"
	"testing"
	"time"

	"tftpwatch/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC)

func sampleTransfer(filename, ip string) core.TransferRecord {
	return core.TransferRecord{
		Filename:      filename,
		ClientIP:      ip,
		Size:          core.Int64Ptr(1024),
		Direction:     core.DirectionUpload,
		Status:        core.TransferSuccess,
		CorrelationID: "4242",
		OccurredAt:    baseTime,
	}
}

func insertAt(t *testing.T, s *TransferStorage, rec core.TransferRecord, at time.Time) int64 {
	t.Helper()
	rec.OccurredAt = at
	id, err := s.InsertTransfer(context.Background(), rec)
	require.NoError(t, err)
	return id
}

func TestTransferStorage_InsertAndGet(t *testing.T) {
	s := NewTransferStorage(newTestSQLite(t))
	ctx := context.Background()

	rec := sampleTransfer("configs/router.cfg", "10.0.0.5")
	rec.Status = core.TransferFailed
	rec.FailureReason = core.ReasonNegativeAck
	rec.Size = nil

	id, err := s.InsertTransfer(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := s.GetTransfer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec.WithID(id), got)
	assert.Nil(t, got.Size)
	assert.True(t, got.OccurredAt.Equal(baseTime))

	_, err = s.GetTransfer(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransferStorage_MaxIDAndTransfersAfter(t *testing.T) {
	s := NewTransferStorage(newTestSQLite(t))
	ctx := context.Background()

	maxID, err := s.MaxID(ctx)
	require.NoError(t, err)
	assert.Zero(t, maxID)

	for i := 0; i < 5; i++ {
		insertAt(t, s, sampleTransfer("f.bin", "10.0.0.1"), baseTime.Add(time.Duration(i)*time.Second))
	}

	maxID, err = s.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), maxID)

	after, err := s.TransfersAfter(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, int64(3), after[0].ID)
	assert.Equal(t, int64(4), after[1].ID)
}

func TestTransferStorage_RecentTransfersNewestFirst(t *testing.T) {
	s := NewTransferStorage(newTestSQLite(t))
	for i := 0; i < 3; i++ {
		insertAt(t, s, sampleTransfer("f.bin", "10.0.0.1"), baseTime)
	}

	recent, err := s.RecentTransfers(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].ID)
	assert.Equal(t, int64(2), recent[1].ID)
}

func TestTransferStorage_HourlyCounts(t *testing.T) {
	s := NewTransferStorage(newTestSQLite(t))

	insertAt(t, s, sampleTransfer("old.bin", "10.0.0.1"), baseTime.Add(-30*time.Hour))
	insertAt(t, s, sampleTransfer("a.bin", "10.0.0.1"), baseTime)
	failed := sampleTransfer("b.bin", "10.0.0.2")
	failed.Status = core.TransferFailed
	insertAt(t, s, failed, baseTime.Add(20*time.Minute))
	insertAt(t, s, sampleTransfer("c.bin", "10.0.0.3"), baseTime.Add(time.Hour))

	counts, err := s.HourlyCounts(context.Background(), baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, counts, 2)

	assert.Equal(t, HourlyCount{Hour: "2026-03-14 10:00", Total: 2, Success: 1, Failed: 1}, counts[0])
	assert.Equal(t, HourlyCount{Hour: "2026-03-14 11:00", Total: 1, Success: 1, Failed: 0}, counts[1])
}

func TestTransferStorage_HourlyCountsUseCallerLocation(t *testing.T) {
	s := NewTransferStorage(newTestSQLite(t))
	insertAt(t, s, sampleTransfer("a.bin", "10.0.0.1"), baseTime)
	insertAt(t, s, sampleTransfer("b.bin", "10.0.0.1"), baseTime.Add(50*time.Minute))

	plusTwo := time.FixedZone("UTC+2", 2*60*60)
	counts, err := s.HourlyCounts(context.Background(), baseTime.Add(-time.Hour).In(plusTwo))
	require.NoError(t, err)

	assert.Equal(t, []HourlyCount{
		{Hour: "2026-03-14 12:00", Total: 1, Success: 1},
		{Hour: "2026-03-14 13:00", Total: 1, Success: 1},
	}, counts)
}

func TestTransferStorage_TopFiles(t *testing.T) {
	s := NewTransferStorage(newTestSQLite(t))
	for _, name := range []string{"a.bin", "b.bin", "b.bin", "c.bin", "c.bin", "c.bin"} {
		insertAt(t, s, sampleTransfer(name, "10.0.0.1"), baseTime)
	}

	top, err := s.TopFiles(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []FileCount{{Filename: "c.bin", Count: 3}, {Filename: "b.bin", Count: 2}}, top)
}

func TestTransferStorage_Statistics(t *testing.T) {
	s := NewTransferStorage(newTestSQLite(t))
	dayStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	insertAt(t, s, sampleTransfer("yesterday.bin", "10.0.0.9"), dayStart.Add(-time.Hour))
	insertAt(t, s, sampleTransfer("a.bin", "10.0.0.1"), dayStart.Add(time.Hour))
	insertAt(t, s, sampleTransfer("b.bin", "10.0.0.1"), dayStart.Add(2*time.Hour))
	failed := sampleTransfer("c.bin", "10.0.0.2")
	failed.Status = core.TransferFailed
	insertAt(t, s, failed, dayStart.Add(3*time.Hour))

	stats, err := s.Statistics(context.Background(), dayStart)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TodayTotal)
	assert.Equal(t, int64(2), stats.TodaySuccess)
	assert.Equal(t, int64(1), stats.TodayFailed)
	assert.Equal(t, 66.7, stats.SuccessRate)
	assert.Equal(t, int64(2), stats.ActiveIPs)
	assert.Equal(t, int64(4), stats.TotalAllTime)
}

func TestTransferStorage_StatisticsEmptyDay(t *testing.T) {
	s := NewTransferStorage(newTestSQLite(t))

	stats, err := s.Statistics(context.Background(), baseTime)
	require.NoError(t, err)
	assert.Equal(t, Statistics{}, stats)
}

func TestAlertStorage_InsertAndRecent(t *testing.T) {
	s := NewAlertStorage(newTestSQLite(t))
	ctx := context.Background()
	rec := sampleTransfer("secret.cfg", "10.0.0.66").WithID(7)

	first, err := core.NewAlert(core.AlertUnauthorizedSource, "Unauthorized", "body", rec, baseTime)
	require.NoError(t, err)
	second, err := core.NewAlert(core.AlertCriticalResourceAccess, "Critical", "body", rec, baseTime.Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.InsertAlert(ctx, first))
	require.NoError(t, s.InsertAlert(ctx, second))
	require.NoError(t, s.InsertAlert(ctx, second))

	all, err := s.RecentAlerts(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, int64(7), all[0].TransferID)
	assert.Equal(t, "10.0.0.66", all[1].ClientIP)

	onlyCritical, err := s.RecentAlerts(ctx, core.AlertCriticalResourceAccess, 10)
	require.NoError(t, err)
	require.Len(t, onlyCritical, 1)
	assert.Equal(t, core.AlertCriticalResourceAccess, onlyCritical[0].Kind)

	counts, err := s.CountAlertsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[core.AlertUnauthorizedSource])
	assert.Equal(t, int64(1), counts[core.AlertCriticalResourceAccess])
}

func TestAlertStorage_RejectsNil(t *testing.T) {
	s := NewAlertStorage(newTestSQLite(t))
	assert.Error(t, s.InsertAlert(context.Background(), nil))
}
