package storage

import (
	"database/sql"
	"fmt"
)

const createFileTransfersSQL = `
	CREATE TABLE IF NOT EXISTS file_transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		client_ip TEXT NOT NULL,
		file_size INTEGER,
		transfer_type TEXT NOT NULL CHECK (transfer_type IN ('upload', 'download')),
		status TEXT NOT NULL CHECK (status IN ('success', 'failed')),
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_file_transfers_timestamp ON file_transfers(timestamp);
	CREATE INDEX IF NOT EXISTS idx_file_transfers_client_ip ON file_transfers(client_ip);
	CREATE INDEX IF NOT EXISTS idx_file_transfers_filename ON file_transfers(filename);`

const createAlertsSQL = `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		client_ip TEXT NOT NULL,
		filename TEXT NOT NULL,
		transfer_id INTEGER NOT NULL DEFAULT 0,
		raised_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_raised_at ON alerts(raised_at);
	CREATE INDEX IF NOT EXISTS idx_alerts_kind ON alerts(kind);`

// RegisterSQLiteMigrations registers the schema history
func RegisterSQLiteMigrations(runner *MigrationRunner) {
	runner.Register(Migration{
		Version:     1,
		Name:        "create_file_transfers",
		Description: "Transfer table with direction and verdict",
		SQL:         createFileTransfersSQL,
	})

	runner.Register(Migration{
		Version:     2,
		Name:        "add_failure_details",
		Description: "Failure reason and daemon correlation id on transfers",
		SQL:         "failure_reason TEXT NOT NULL DEFAULT ''; correlation_id TEXT NOT NULL DEFAULT ''",
		Up: func(tx *sql.Tx) error {
			if err := addColumnIfNotExists(tx, "file_transfers", "failure_reason", "TEXT NOT NULL DEFAULT ''"); err != nil {
				return err
			}
			return addColumnIfNotExists(tx, "file_transfers", "correlation_id", "TEXT NOT NULL DEFAULT ''")
		},
	})

	runner.Register(Migration{
		Version:     3,
		Name:        "create_alerts",
		Description: "Raised anomaly alerts",
		SQL:         createAlertsSQL,
	})
}

// addColumnIfNotExists adds a column unless the table already has it
func addColumnIfNotExists(tx *sql.Tx, table, column, definition string) error {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	exists := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == column {
			exists = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	return nil
}
