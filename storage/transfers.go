package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tftpwatch/core"
)

// HourlyCount aggregates transfers of one hour
type HourlyCount struct {
	Hour    string `json:"hour"`
	Total   int64  `json:"total"`
	Success int64  `json:"success"`
	Failed  int64  `json:"failed"`
}

// FileCount is the number of transfers of one file
type FileCount struct {
	Filename string `json:"filename"`
	Count    int64  `json:"count"`
}

// Statistics summarizes one day of transfers
type Statistics struct {
	TodayTotal   int64   `json:"today_total"`
	TodaySuccess int64   `json:"today_success"`
	TodayFailed  int64   `json:"today_failed"`
	SuccessRate  float64 `json:"success_rate"`
	ActiveIPs    int64   `json:"active_ips"`
	TotalAllTime int64   `json:"total_all_time"`
}

// TransferStorage reads and writes the file_transfers table
type TransferStorage struct {
	db *SQLite
}

// NewTransferStorage creates transfer storage on db
func NewTransferStorage(db *SQLite) *TransferStorage {
	return &TransferStorage{db: db}
}

const transferColumns = "id, filename, client_ip, file_size, transfer_type, status, failure_reason, correlation_id, timestamp"

// InsertTransfer stores rec and returns its assigned id
func (s *TransferStorage) InsertTransfer(ctx context.Context, rec core.TransferRecord) (int64, error) {
	var size sql.NullInt64
	if rec.Size != nil {
		size = sql.NullInt64{Int64: *rec.Size, Valid: true}
	}
	res, err := s.db.WriteDB.ExecContext(ctx,
		`INSERT INTO file_transfers (filename, client_ip, file_size, transfer_type, status, failure_reason, correlation_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Filename, rec.ClientIP, size, string(rec.Direction), string(rec.Status),
		rec.FailureReason, rec.CorrelationID, formatTime(rec.OccurredAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transfer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read transfer id: %w", err)
	}
	return id, nil
}

// GetTransfer returns the transfer with id, ErrNotFound if absent
func (s *TransferStorage) GetTransfer(ctx context.Context, id int64) (core.TransferRecord, error) {
	row := s.db.ReadDB.QueryRowContext(ctx, "SELECT "+transferColumns+" FROM file_transfers WHERE id = ?", id)
	rec, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransferRecord{}, ErrNotFound
	}
	return rec, err
}

// MaxID returns the highest stored transfer id, 0 for an empty table
func (s *TransferStorage) MaxID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.ReadDB.QueryRowContext(ctx, "SELECT MAX(id) FROM file_transfers").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to query max transfer id: %w", err)
	}
	return id.Int64, nil
}

// TransfersAfter returns up to limit transfers with an id above afterID, in id order
func (s *TransferStorage) TransfersAfter(ctx context.Context, afterID int64, limit int) ([]core.TransferRecord, error) {
	return s.query(ctx, "SELECT "+transferColumns+" FROM file_transfers WHERE id > ? ORDER BY id ASC LIMIT ?", afterID, limit)
}

// RecentTransfers returns the latest limit transfers, newest first
func (s *TransferStorage) RecentTransfers(ctx context.Context, limit int) ([]core.TransferRecord, error) {
	return s.query(ctx, "SELECT "+transferColumns+" FROM file_transfers ORDER BY id DESC LIMIT ?", limit)
}

// HourlyCounts aggregates transfers since the given time per hour, oldest
// first. Hours are bucketed in since's location, so a caller passing a local
// time gets local hours matching its day boundaries.
func (s *TransferStorage) HourlyCounts(ctx context.Context, since time.Time) ([]HourlyCount, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx, `
		SELECT timestamp, status
		FROM file_transfers
		WHERE timestamp >= ?
		ORDER BY timestamp`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly counts: %w", err)
	}
	defer rows.Close()

	loc := since.Location()
	counts := make([]HourlyCount, 0)
	index := make(map[string]int)
	for rows.Next() {
		var raw, status string
		if err := rows.Scan(&raw, &status); err != nil {
			return nil, fmt.Errorf("failed to scan hourly count: %w", err)
		}
		ts, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		hour := ts.In(loc).Format("2006-01-02 15") + ":00"
		i, ok := index[hour]
		if !ok {
			i = len(counts)
			index[hour] = i
			counts = append(counts, HourlyCount{Hour: hour})
		}
		counts[i].Total++
		switch core.TransferStatus(status) {
		case core.TransferSuccess:
			counts[i].Success++
		case core.TransferFailed:
			counts[i].Failed++
		}
	}
	return counts, rows.Err()
}

// TopFiles returns the most transferred files
func (s *TransferStorage) TopFiles(ctx context.Context, limit int) ([]FileCount, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx, `
		SELECT filename, COUNT(*) AS count
		FROM file_transfers
		GROUP BY filename
		ORDER BY count DESC, filename ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top files: %w", err)
	}
	defer rows.Close()

	files := make([]FileCount, 0)
	for rows.Next() {
		var f FileCount
		if err := rows.Scan(&f.Filename, &f.Count); err != nil {
			return nil, fmt.Errorf("failed to scan file count: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Statistics summarizes transfers in [dayStart, dayStart+24h) plus the all time total
func (s *TransferStorage) Statistics(ctx context.Context, dayStart time.Time) (Statistics, error) {
	var stats Statistics
	var success, failed sql.NullInt64
	err := s.db.ReadDB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			COUNT(DISTINCT client_ip)
		FROM file_transfers
		WHERE timestamp >= ? AND timestamp < ?`,
		formatTime(dayStart), formatTime(dayStart.Add(24*time.Hour)),
	).Scan(&stats.TodayTotal, &success, &failed, &stats.ActiveIPs)
	if err != nil {
		return Statistics{}, fmt.Errorf("failed to query daily statistics: %w", err)
	}
	stats.TodaySuccess = success.Int64
	stats.TodayFailed = failed.Int64

	if stats.TodayTotal > 0 {
		rate := float64(stats.TodaySuccess) / float64(stats.TodayTotal) * 100
		stats.SuccessRate = float64(int64(rate*10+0.5)) / 10
	}

	if err := s.db.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_transfers").Scan(&stats.TotalAllTime); err != nil {
		return Statistics{}, fmt.Errorf("failed to count transfers: %w", err)
	}
	return stats, nil
}

func (s *TransferStorage) query(ctx context.Context, query string, args ...interface{}) ([]core.TransferRecord, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	records := make([]core.TransferRecord, 0)
	for rows.Next() {
		rec, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(row scanner) (core.TransferRecord, error) {
	var (
		rec       core.TransferRecord
		size      sql.NullInt64
		direction string
		status    string
		timestamp string
	)
	if err := row.Scan(&rec.ID, &rec.Filename, &rec.ClientIP, &size, &direction, &status,
		&rec.FailureReason, &rec.CorrelationID, &timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan transfer: %w", err)
	}
	if size.Valid {
		rec.Size = core.Int64Ptr(size.Int64)
	}
	rec.Direction = core.Direction(direction)
	rec.Status = core.TransferStatus(status)

	occurredAt, err := parseTime(timestamp)
	if err != nil {
		return rec, err
	}
	rec.OccurredAt = occurredAt
	return rec, nil
}
