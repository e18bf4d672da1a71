package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Migration is one forward schema change
type Migration struct {
	Version     int
	Name        string
	Description string
	Up          func(*sql.Tx) error
	// SQL is hashed for drift detection; Up normally just executes it
	SQL string
}

// MigrationRecord is a row of schema_migrations
type MigrationRecord struct {
	Version   int
	Name      string
	Checksum  string
	AppliedAt time.Time
	Duration  int64 // milliseconds
}

// MigrationRunner applies registered migrations in version order
type MigrationRunner struct {
	db         *sql.DB
	logger     *zap.SugaredLogger
	migrations []Migration
}

// NewMigrationRunner creates a runner and its bookkeeping table
func NewMigrationRunner(db *sql.DB, logger *zap.SugaredLogger) (*MigrationRunner, error) {
	runner := &MigrationRunner{db: db, logger: logger}
	if err := runner.ensureMigrationsTable(); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return runner, nil
}

func (r *MigrationRunner) ensureMigrationsTable() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	)`)
	return err
}

// Register adds a migration to the runner
func (r *MigrationRunner) Register(m Migration) {
	r.migrations = append(r.migrations, m)
	sort.Slice(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})
}

func checksum(m Migration) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%s", m.Version, m.Name, m.SQL)))
	return hex.EncodeToString(sum[:])
}

// GetAppliedMigrations returns every applied migration, oldest first
func (r *MigrationRunner) GetAppliedMigrations() ([]MigrationRecord, error) {
	rows, err := r.db.Query("SELECT version, name, checksum, applied_at, duration_ms FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		var appliedAt string
		if err := rows.Scan(&rec.Version, &rec.Name, &rec.Checksum, &appliedAt, &rec.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		if rec.AppliedAt, err = parseTime(appliedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetPendingMigrations returns registered migrations not applied yet
func (r *MigrationRunner) GetPendingMigrations() ([]Migration, error) {
	applied, err := r.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, rec := range applied {
		done[rec.Version] = true
	}

	var pending []Migration
	for _, m := range r.migrations {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// RunMigrations applies all pending migrations, each in its own transaction
func (r *MigrationRunner) RunMigrations() error {
	pending, err := r.GetPendingMigrations()
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := r.runMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (r *MigrationRunner) runMigration(m Migration) (err error) {
	start := time.Now()
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic during migration: %v", p)
		}
	}()

	up := m.Up
	if up == nil {
		up = func(tx *sql.Tx) error {
			_, err := tx.Exec(m.SQL)
			return err
		}
	}
	if err := up(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	duration := time.Since(start).Milliseconds()
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name, checksum, applied_at, duration_ms) VALUES (?, ?, ?, ?, ?)",
		m.Version, m.Name, checksum(m), formatTime(time.Now()), duration,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	r.logger.Infow("Applied migration", "version", m.Version, "name", m.Name, "duration_ms", duration)
	return nil
}

// VerifyIntegrity returns the versions whose registered definition no
// longer matches the applied checksum
func (r *MigrationRunner) VerifyIntegrity() ([]int, error) {
	applied, err := r.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	byVersion := make(map[int]Migration, len(r.migrations))
	for _, m := range r.migrations {
		byVersion[m.Version] = m
	}

	var drifted []int
	for _, rec := range applied {
		m, ok := byVersion[rec.Version]
		if ok && checksum(m) != rec.Checksum {
			drifted = append(drifted, rec.Version)
		}
	}
	return drifted, nil
}
