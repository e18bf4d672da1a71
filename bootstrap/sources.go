package bootstrap

import (
	"fmt"

	"tftpwatch/config"
	"tftpwatch/ingest"

	"go.uber.org/zap"
)

// InitLineSource builds the daemon log source selected by sources.log.mode
func InitLineSource(cfg *config.Config, sugar *zap.SugaredLogger) (ingest.LineSource, error) {
	log := cfg.Sources.Log
	switch log.Mode {
	case config.LogSourceJournal:
		return ingest.NewJournalSource(log.JournalUnit, sugar), nil
	case config.LogSourceSyslog:
		return ingest.NewSyslogSource(log.SyslogHost, log.SyslogPort, sugar), nil
	case config.LogSourceFile:
		return ingest.NewFileSource(log.FilePath, sugar), nil
	default:
		return nil, fmt.Errorf("%w: unknown log source mode %q", config.ErrInvalidConfig, log.Mode)
	}
}

// InitCloseSource builds the filesystem close watcher on the TFTP root
func InitCloseSource(cfg *config.Config, sugar *zap.SugaredLogger) ingest.CloseSource {
	return ingest.NewInotifySource(cfg.TFTP.RootDirectory, sugar)
}
