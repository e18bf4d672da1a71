package bootstrap

import (
	"context"
	"time"

	"tftpwatch/config"
	"tftpwatch/notify"

	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

// InitDispatcher builds the notification dispatcher with every enabled sink.
// withNotices also routes per-transfer notices to syslog, which only makes
// sense in the process that finalizes transfers. The returned closers must
// be closed on shutdown.
func InitDispatcher(ctx context.Context, cfg *config.Config, withNotices bool, sugar *zap.SugaredLogger) (*notify.Dispatcher, []func() error) {
	d := notify.NewDispatcher(notify.DispatcherConfig{
		QueueSize:   cfg.Notify.QueueSize,
		SendTimeout: cfg.Notify.Timeout,
		MaxFailures: cfg.Notify.CircuitBreaker.MaxFailures,
		OpenTimeout: cfg.Notify.CircuitBreaker.Timeout,
	}, sugar)

	var closers []func() error

	if cfg.Email.Enabled {
		d.AddAlertSink(notify.NewEmailSink(notify.EmailConfig{
			Server:    cfg.Email.SMTPServer,
			Port:      cfg.Email.SMTPPort,
			Sender:    cfg.Email.SenderEmail,
			Password:  cfg.Email.SenderPassword,
			Recipient: cfg.Email.RecipientEmail,
		}), notify.WithRateLimit(cfg.Email.PerMinute))
	}

	if cfg.Syslog.Enabled {
		sink := notify.NewSyslogSink(cfg.Syslog.Host, cfg.Syslog.Port, cfg.Syslog.Tag)
		d.AddAlertSink(sink)
		if withNotices {
			d.AddNoticeSink(sink)
		}
	}

	if cfg.Redis.Enabled {
		sink := notify.NewRedisSink(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		// An unreachable Redis is not fatal; the breaker handles it at send time
		if err := sink.Ping(pingCtx); err != nil {
			sugar.Warnw("Redis alert sink unreachable at startup",
				"addr", cfg.Redis.Addr,
				"detail", ClassifyConnectionError(err, "Redis", cfg.Redis.Addr))
		}
		cancel()
		d.AddAlertSink(sink)
		closers = append(closers, sink.Close)
	}

	alertSinks, noticeSinks := d.Sinks()
	sugar.Infow("Notification dispatcher configured",
		"alert_sinks", alertSinks,
		"notice_sinks", noticeSinks)
	return d, closers
}
