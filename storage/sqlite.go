// Package storage persists transfer records and alerts in SQLite and
// serves the reporting queries.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// timeLayout is how timestamps are stored. UTC with a fixed width keeps
// lexical and chronological order identical.
const timeLayout = "2006-01-02 15:04:05.000"

// SQLite holds separate write and read pools. WAL mode allows any number of
// readers next to the single writer.
type SQLite struct {
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Path    string
	Logger  *zap.SugaredLogger
}

// NewSQLite opens the database at dbPath, creating parent directories, and
// applies pending migrations
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection
	base := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	writeDB, err := sql.Open("sqlite", base)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	if err := verifyJournalMode(writeDB); err != nil {
		_ = writeDB.Close()
		return nil, err
	}

	readDB, err := sql.Open("sqlite", base+"&_pragma=query_only(1)")
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open SQLite read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(2)
	readDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := readDB.Ping(); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to ping SQLite read database: %w", err)
	}

	s := &SQLite{WriteDB: writeDB, ReadDB: readDB, Path: dbPath, Logger: logger}

	runner, err := NewMigrationRunner(writeDB, logger)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create migration runner: %w", err)
	}
	RegisterSQLiteMigrations(runner)
	if err := runner.RunMigrations(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Infow("SQLite database initialized", "path", dbPath)
	return s, nil
}

func verifyJournalMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got: %s)", journalMode)
	}
	return nil
}

// WithTransaction runs fn in a write transaction, rolling back on error or panic
func (s *SQLite) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.WriteDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes both pools
func (s *SQLite) Close() error {
	var errs []error
	if s.ReadDB != nil {
		if err := s.ReadDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("read pool: %w", err))
		}
	}
	if s.WriteDB != nil {
		if err := s.WriteDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("write pool: %w", err))
		}
	}
	return errors.Join(errs...)
}

// validateDatabasePath rejects paths that would escape through ".." or
// smuggle DSN parameters
func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return errors.New("database path cannot be empty")
	}
	if strings.ContainsRune(dbPath, 0) {
		return errors.New("database path contains null byte")
	}
	if strings.ContainsAny(dbPath, "?#") {
		return errors.New("database path cannot contain '?' or '#'")
	}
	for _, part := range strings.Split(filepath.ToSlash(dbPath), "/") {
		if part == ".." {
			return errors.New("database path cannot contain '..'")
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
