package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"tftpwatch/core"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Log source modes
const (
	LogSourceJournal = "journal"
	LogSourceSyslog  = "syslog"
	LogSourceFile    = "file"
)

// Record sources for the anomaly engine
const (
	// AlertSourceStream consumes records in-process as the correlator emits them
	AlertSourceStream = "stream"
	// AlertSourceDatabase polls the file_transfers table after the recovered last id
	AlertSourceDatabase = "database"
)

// Config holds all configuration for tftpwatch. It is loaded once at startup
// and never modified afterwards.
type Config struct {
	TFTP struct {
		// RootDirectory is the directory served by the TFTP daemon and watched for close events
		RootDirectory string `mapstructure:"root_directory" yaml:"root_directory" validate:"required"`
		// GracePeriod is how long a matched transfer waits for a late error line
		GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period" validate:"gt=0"`
		// TickInterval is the matching/finalization period; must be shorter than GracePeriod
		TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" validate:"gt=0"`
		// MaxUnmatchedAge bounds retention of close, request and error events with no counterpart
		MaxUnmatchedAge   time.Duration `mapstructure:"max_unmatched_age" yaml:"max_unmatched_age" validate:"gt=0"`
		ChannelBufferSize int           `mapstructure:"channel_buffer_size" yaml:"channel_buffer_size" validate:"gte=1"`
	} `mapstructure:"tftp" yaml:"tftp"`

	Sources struct {
		Log struct {
			Mode        string `mapstructure:"mode" yaml:"mode" validate:"oneof=journal syslog file"`
			JournalUnit string `mapstructure:"journal_unit" yaml:"journal_unit"`
			SyslogHost  string `mapstructure:"syslog_host" yaml:"syslog_host"`
			SyslogPort  int    `mapstructure:"syslog_port" yaml:"syslog_port" validate:"gte=0,lte=65535"`
			FilePath    string `mapstructure:"file_path" yaml:"file_path"`
		} `mapstructure:"log" yaml:"log"`
	} `mapstructure:"sources" yaml:"sources"`

	Alerts struct {
		Enabled bool `mapstructure:"enabled" yaml:"enabled"`
		// Source selects where the anomaly engine reads records from: stream or database
		Source            string        `mapstructure:"source" yaml:"source" validate:"oneof=stream database"`
		AuthorizedIPs     []string      `mapstructure:"authorized_ips" yaml:"authorized_ips" validate:"dive,ip"`
		CriticalFiles     []string      `mapstructure:"critical_files" yaml:"critical_files"`
		MaxRequests       int           `mapstructure:"max_requests_per_minute" yaml:"max_requests_per_minute" validate:"gte=1"`
		TimeWindow        time.Duration `mapstructure:"time_window" yaml:"time_window" validate:"gt=0"`
		CheckInterval     time.Duration `mapstructure:"check_interval" yaml:"check_interval" validate:"gt=0"`
		MaxTrackedClients int           `mapstructure:"max_tracked_clients" yaml:"max_tracked_clients" validate:"gte=1"`
	} `mapstructure:"alerts" yaml:"alerts"`

	Email struct {
		Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
		SMTPServer     string `mapstructure:"smtp_server" yaml:"smtp_server"`
		SMTPPort       int    `mapstructure:"smtp_port" yaml:"smtp_port" validate:"gte=0,lte=65535"`
		SenderEmail    string `mapstructure:"sender_email" yaml:"sender_email"`
		SenderPassword string `mapstructure:"sender_password" yaml:"sender_password"`
		RecipientEmail string `mapstructure:"recipient_email" yaml:"recipient_email"`
		// PerMinute caps outgoing mail; alerts beyond the budget are dropped and logged
		PerMinute int `mapstructure:"per_minute" yaml:"per_minute" validate:"gte=1"`
	} `mapstructure:"email" yaml:"email"`

	Syslog struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Host    string `mapstructure:"host" yaml:"host"`
		Port    int    `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
		Tag     string `mapstructure:"tag" yaml:"tag"`
	} `mapstructure:"syslog" yaml:"syslog"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
		Addr     string `mapstructure:"addr" yaml:"addr"`
		Password string `mapstructure:"password" yaml:"password"`
		DB       int    `mapstructure:"db" yaml:"db"`
		Channel  string `mapstructure:"channel" yaml:"channel"`
	} `mapstructure:"redis" yaml:"redis"`

	Notify struct {
		// QueueSize is per sink
		QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`
		Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
		CircuitBreaker struct {
			MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures" validate:"gte=1"`
			Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
		} `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
	} `mapstructure:"notify" yaml:"notify"`

	Storage struct {
		SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path" validate:"required"`
		QueueSize  int    `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`
	} `mapstructure:"storage" yaml:"storage"`

	API struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Host    string `mapstructure:"host" yaml:"host"`
		Port    int    `mapstructure:"port" yaml:"port" validate:"gte=1,lte=65535"`
		// Services are the systemd units reported on /api/services
		Services []string `mapstructure:"services" yaml:"services"`
	} `mapstructure:"api" yaml:"api"`

	Secrets struct {
		Provider string `mapstructure:"provider" yaml:"provider" validate:"omitempty,oneof=config env vault aws"`
		Vault    struct {
			Address string `mapstructure:"address" yaml:"address"`
			Token   string `mapstructure:"token" yaml:"token"`
			Path    string `mapstructure:"path" yaml:"path"`
		} `mapstructure:"vault" yaml:"vault"`
		AWS struct {
			Region    string `mapstructure:"region" yaml:"region"`
			SecretID  string `mapstructure:"secret_id" yaml:"secret_id"`
			AccessKey string `mapstructure:"access_key" yaml:"access_key"`
			SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
		} `mapstructure:"aws" yaml:"aws"`
	} `mapstructure:"secrets" yaml:"secrets"`
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("tftp.root_directory", "/srv/tftp")
	v.SetDefault("tftp.grace_period", core.DefaultGracePeriod)
	v.SetDefault("tftp.tick_interval", core.DefaultTickInterval)
	v.SetDefault("tftp.max_unmatched_age", core.DefaultMaxUnmatchedAge)
	v.SetDefault("tftp.channel_buffer_size", 1000)

	v.SetDefault("sources.log.mode", LogSourceJournal)
	v.SetDefault("sources.log.journal_unit", "tftpd-hpa")
	v.SetDefault("sources.log.syslog_host", "127.0.0.1")
	v.SetDefault("sources.log.syslog_port", 5514)
	v.SetDefault("sources.log.file_path", "/var/log/syslog")

	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.source", AlertSourceStream)
	v.SetDefault("alerts.authorized_ips", []string{})
	v.SetDefault("alerts.critical_files", []string{})
	v.SetDefault("alerts.max_requests_per_minute", core.DefaultRateLimitThreshold)
	v.SetDefault("alerts.time_window", core.DefaultRateLimitWindow)
	v.SetDefault("alerts.check_interval", core.DefaultCheckInterval)
	v.SetDefault("alerts.max_tracked_clients", 10000)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.per_minute", 30)

	v.SetDefault("syslog.enabled", false)
	v.SetDefault("syslog.port", 514)
	v.SetDefault("syslog.tag", "tftpwatch")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "tftpwatch:alerts")

	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.circuit_breaker.max_failures", 3)
	v.SetDefault("notify.circuit_breaker.timeout", 60*time.Second)

	v.SetDefault("storage.sqlite_path", "./data/tftpwatch.db")
	v.SetDefault("storage.queue_size", 1000)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 5000)
	v.SetDefault("api.services", []string{"tftpd-hpa", "rsyslog"})

	v.SetDefault("secrets.provider", "config")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix("TFTPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("tftp.root_directory", "TFTPWATCH_ROOT")
	_ = v.BindEnv("storage.sqlite_path", "TFTPWATCH_SQLITE_PATH")
}

// LoadConfig loads configuration from file and environment variables.
// An empty path searches for config.yaml in . and ./config.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)
	loadFromEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.TFTP.RootDirectory = filepath.Clean(config.TFTP.RootDirectory)

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration for correctness
func Validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if config.TFTP.TickInterval >= config.TFTP.GracePeriod {
		return fmt.Errorf("%w: tftp.tick_interval (%v) must be shorter than tftp.grace_period (%v)",
			ErrInvalidConfig, config.TFTP.TickInterval, config.TFTP.GracePeriod)
	}

	switch config.Sources.Log.Mode {
	case LogSourceJournal:
		if config.Sources.Log.JournalUnit == "" {
			return fmt.Errorf("%w: sources.log.journal_unit cannot be empty in journal mode", ErrInvalidConfig)
		}
	case LogSourceSyslog:
		if config.Sources.Log.SyslogPort < 1 {
			return fmt.Errorf("%w: sources.log.syslog_port must be 1-65535 in syslog mode", ErrInvalidConfig)
		}
		if net.ParseIP(config.Sources.Log.SyslogHost) == nil {
			return fmt.Errorf("%w: sources.log.syslog_host %q is not an IP address", ErrInvalidConfig, config.Sources.Log.SyslogHost)
		}
	case LogSourceFile:
		if config.Sources.Log.FilePath == "" {
			return fmt.Errorf("%w: sources.log.file_path cannot be empty in file mode", ErrInvalidConfig)
		}
	}

	if config.Email.Enabled {
		if config.Email.SMTPServer == "" || config.Email.SMTPPort < 1 {
			return fmt.Errorf("%w: email.smtp_server and email.smtp_port are required when email is enabled", ErrInvalidConfig)
		}
		if config.Email.SenderEmail == "" || config.Email.RecipientEmail == "" {
			return fmt.Errorf("%w: email.sender_email and email.recipient_email are required when email is enabled", ErrInvalidConfig)
		}
	}

	if config.Syslog.Enabled {
		if config.Syslog.Host == "" || config.Syslog.Port < 1 {
			return fmt.Errorf("%w: syslog.host and syslog.port are required when syslog is enabled", ErrInvalidConfig)
		}
	}

	if config.Redis.Enabled && (config.Redis.Addr == "" || config.Redis.Channel == "") {
		return fmt.Errorf("%w: redis.addr and redis.channel are required when redis is enabled", ErrInvalidConfig)
	}

	return nil
}

// IsAuthorized reports whether ip is on the allow-list
func (c *Config) IsAuthorized(ip string) bool {
	for _, allowed := range c.Alerts.AuthorizedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}

// APIAddr returns the listen address of the reporting API
func (c *Config) APIAddr() string {
	return net.JoinHostPort(c.API.Host, fmt.Sprintf("%d", c.API.Port))
}
