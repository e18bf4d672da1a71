package storage

import (
	"context"
	"fmt"

	"tftpwatch/core"
)

// AlertStorage reads and writes the alerts table
type AlertStorage struct {
	db *SQLite
}

// NewAlertStorage creates alert storage on db
func NewAlertStorage(db *SQLite) *AlertStorage {
	return &AlertStorage{db: db}
}

// InsertAlert stores an alert. Re-inserting the same id is a no-op.
func (s *AlertStorage) InsertAlert(ctx context.Context, alert *core.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert cannot be nil")
	}
	_, err := s.db.WriteDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO alerts (id, kind, severity, subject, body, client_ip, filename, transfer_id, raised_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, string(alert.Kind), alert.Kind.Severity(), alert.Subject, alert.Body,
		alert.ClientIP, alert.Filename, alert.TransferID, formatTime(alert.RaisedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// RecentAlerts returns the latest limit alerts, newest first. An empty kind
// matches every kind.
func (s *AlertStorage) RecentAlerts(ctx context.Context, kind core.AlertKind, limit int) ([]*core.Alert, error) {
	query := "SELECT id, kind, subject, body, client_ip, filename, transfer_id, raised_at FROM alerts"
	args := []interface{}{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY raised_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*core.Alert, 0)
	for rows.Next() {
		var (
			a        core.Alert
			kindStr  string
			raisedAt string
		)
		if err := rows.Scan(&a.ID, &kindStr, &a.Subject, &a.Body, &a.ClientIP, &a.Filename, &a.TransferID, &raisedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Kind = core.AlertKind(kindStr)
		if a.RaisedAt, err = parseTime(raisedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// CountAlertsByKind returns the number of stored alerts per kind
func (s *AlertStorage) CountAlertsByKind(ctx context.Context) (map[core.AlertKind]int64, error) {
	rows, err := s.db.ReadDB.QueryContext(ctx, "SELECT kind, COUNT(*) FROM alerts GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.AlertKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[core.AlertKind(kind)] = n
	}
	return counts, rows.Err()
}
