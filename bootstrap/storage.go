package bootstrap

import (
	"fmt"
	"os"

	"tftpwatch/config"
	"tftpwatch/storage"

	"go.uber.org/zap"
)

// StorageComponents groups the persistence layer
type StorageComponents struct {
	SQLite    *storage.SQLite
	Transfers *storage.TransferStorage
	Alerts    *storage.AlertStorage
	Writer    *storage.Writer
}

// InitSQLite opens the database and applies migrations. Failures print a
// remediation hint to stderr before returning.
func InitSQLite(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(cfg.Storage.SQLitePath, sugar)
	if err != nil {
		printFatal("SQLite Initialization Failed", ClassifySQLiteError(err, cfg.Storage.SQLitePath))
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	return sqlite, nil
}

// InitStorage opens the database and builds the stores and the async writer
func InitStorage(cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	if _, err := EnsureDataDirectory(cfg.Storage.SQLitePath, sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	sqlite, err := InitSQLite(cfg, sugar)
	if err != nil {
		return nil, err
	}

	transfers := storage.NewTransferStorage(sqlite)
	alerts := storage.NewAlertStorage(sqlite)
	return &StorageComponents{
		SQLite:    sqlite,
		Transfers: transfers,
		Alerts:    alerts,
		Writer:    storage.NewWriter(transfers, alerts, cfg.Storage.QueueSize, sugar),
	}, nil
}

func printFatal(title, msg string) {
	fmt.Fprintf(os.Stderr, "\n========================================\n")
	fmt.Fprintf(os.Stderr, "FATAL: %s\n", title)
	fmt.Fprintf(os.Stderr, "========================================\n")
	fmt.Fprintf(os.Stderr, "%s\n", msg)
	fmt.Fprintf(os.Stderr, "========================================\n\n")
}
