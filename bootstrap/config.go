package bootstrap

import (
	"fmt"
	"os"

	"tftpwatch/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output.
// Debug lines are suppressed unless debug is set.
func InitLogger(debug bool) (*zap.Logger, *zap.SugaredLogger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the configuration at path (empty searches the default
// locations) and resolves secrets from the configured provider.
func InitConfig(path string, sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.LoadSecrets(cfg); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	sugar.Infow("Config loaded",
		"tftp_root", cfg.TFTP.RootDirectory,
		"log_source", cfg.Sources.Log.Mode,
		"alert_source", cfg.Alerts.Source,
		"sqlite_path", cfg.Storage.SQLitePath,
		"secrets_provider", cfg.Secrets.Provider)

	sugar.Infow("Alert sinks",
		"email", cfg.Email.Enabled,
		"syslog", cfg.Syslog.Enabled,
		"redis", cfg.Redis.Enabled)

	return cfg, nil
}
