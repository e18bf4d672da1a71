package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"tftpwatch/api"
	"tftpwatch/config"
	"tftpwatch/core"
	"tftpwatch/correlate"
	"tftpwatch/detect"
	"tftpwatch/ingest"
	"tftpwatch/metrics"
	"tftpwatch/notify"
	"tftpwatch/storage"
	"tftpwatch/util/goroutine"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Components selects which parts of the pipeline run in this process
type Components struct {
	// Monitor runs the sources, the correlation engine and transfer persistence
	Monitor bool
	// Alerts runs the anomaly engine and the alert sinks
	Alerts bool
	// API runs the reporting API and live feed
	API bool
}

// AllComponents runs the whole pipeline in one process
func AllComponents() Components {
	return Components{Monitor: true, Alerts: true, API: true}
}

// App holds every constructed component. Sources may be replaced after
// NewApp and before Run.
type App struct {
	Config     *config.Config
	Sugar      *zap.SugaredLogger
	Components Components

	Storage     *StorageComponents
	LineSource  ingest.LineSource
	CloseSource ingest.CloseSource
	Correlator  *correlate.Engine
	Detector    *detect.Engine
	Feed        *storage.TransferFeed
	LiveFeed    *storage.TransferFeed
	Dispatcher  *notify.Dispatcher
	Hub         *api.Hub
	APIServer   *api.API

	lineCh   chan string
	closeCh  chan core.CloseEvent
	recordCh chan core.TransferRecord
	detectCh chan core.TransferRecord
	alertCh  chan *core.Alert

	closers      []func() error
	shutdownOnce sync.Once
}

// NewApp builds the components selected by comps. Nothing runs until Run.
func NewApp(ctx context.Context, cfg *config.Config, comps Components, sugar *zap.SugaredLogger) (*App, error) {
	if !comps.Monitor && !comps.Alerts && !comps.API {
		return nil, errors.New("no components selected")
	}

	a := &App{Config: cfg, Sugar: sugar, Components: comps}

	storageComponents, err := InitStorage(cfg, sugar)
	if err != nil {
		return nil, err
	}
	a.Storage = storageComponents
	writer := a.Storage.Writer

	alertsOn := comps.Alerts && cfg.Alerts.Enabled
	apiOn := comps.API && cfg.API.Enabled
	if comps.Alerts && !cfg.Alerts.Enabled {
		sugar.Warn("Anomaly engine disabled by alerts.enabled")
	}

	if apiOn {
		a.Hub = api.NewHub(sugar)
		writer.OnTransfer(a.Hub.BroadcastTransfer)
		writer.OnAlert(a.Hub.BroadcastAlert)
	}

	if alertsOn || (comps.Monitor && cfg.Syslog.Enabled) {
		a.Dispatcher, a.closers = InitDispatcher(ctx, cfg, comps.Monitor, sugar)
		if comps.Monitor {
			writer.OnTransfer(a.Dispatcher.NotifyTransfer)
		}
		if alertsOn {
			writer.OnAlert(a.Dispatcher.NotifyAlert)
		}
	}

	if comps.Monitor {
		if err := a.initMonitor(); err != nil {
			a.Shutdown()
			return nil, err
		}
	}

	if alertsOn {
		if err := a.initAlerts(ctx); err != nil {
			a.Shutdown()
			return nil, err
		}
	}

	// A dashboard without a local monitor follows the database instead
	if a.Hub != nil && !comps.Monitor {
		a.LiveFeed, err = storage.NewTransferFeed(ctx, a.Storage.Transfers, cfg.Alerts.CheckInterval, sugar)
		if err != nil {
			a.Shutdown()
			return nil, err
		}
	}

	if apiOn {
		a.initAPI()
	}

	sugar.Infow("Application components built",
		"monitor", comps.Monitor,
		"alerts", alertsOn,
		"api", apiOn)
	return a, nil
}

func (a *App) initMonitor() error {
	cfg := a.Config
	lines, err := InitLineSource(cfg, a.Sugar)
	if err != nil {
		return err
	}
	a.LineSource = lines
	a.CloseSource = InitCloseSource(cfg, a.Sugar)

	parser := ingest.NewTFTPDParser(ingest.DefaultMatchTimeout, a.Sugar)
	a.Correlator = correlate.NewEngine(correlate.Config{
		GracePeriod:     cfg.TFTP.GracePeriod,
		TickInterval:    cfg.TFTP.TickInterval,
		MaxUnmatchedAge: cfg.TFTP.MaxUnmatchedAge,
	}, parser, correlate.FileSizer{Root: cfg.TFTP.RootDirectory}, a.Sugar)

	size := cfg.TFTP.ChannelBufferSize
	a.lineCh = make(chan string, size)
	a.closeCh = make(chan core.CloseEvent, size)
	a.recordCh = make(chan core.TransferRecord, size)
	return nil
}

func (a *App) initAlerts(ctx context.Context) error {
	cfg := a.Config
	detector, err := detect.NewEngineFromConfig(cfg, a.Sugar)
	if err != nil {
		return fmt.Errorf("failed to build anomaly engine: %w", err)
	}
	a.Detector = detector
	a.detectCh = make(chan core.TransferRecord, cfg.TFTP.ChannelBufferSize)
	a.alertCh = make(chan *core.Alert, cfg.TFTP.ChannelBufferSize)

	if a.Components.Monitor && cfg.Alerts.Source == config.AlertSourceStream {
		a.Storage.Writer.OnTransfer(a.forwardToDetector)
		a.Sugar.Info("Anomaly engine reading the in-process transfer stream")
		return nil
	}

	a.Feed, err = storage.NewTransferFeed(ctx, a.Storage.Transfers, cfg.Alerts.CheckInterval, a.Sugar)
	if err != nil {
		return err
	}
	a.Sugar.Infow("Anomaly engine reading stored transfers", "after_id", a.Feed.LastID())
	return nil
}

func (a *App) initAPI() {
	opts := []api.Option{api.WithHub(a.Hub)}
	if a.Correlator != nil {
		opts = append(opts, api.WithCorrelationStats(a.Correlator.Stats))
	}
	if a.Detector != nil {
		opts = append(opts, api.WithDetectionStats(a.Detector.Stats))
	}
	a.APIServer = api.NewAPI(api.Config{
		Addr:     a.Config.APIAddr(),
		Services: a.Config.API.Services,
	}, a.Storage.Transfers, a.Storage.Alerts, a.Sugar, opts...)
}

// forwardToDetector runs on the writer goroutine and must not block it
func (a *App) forwardToDetector(rec core.TransferRecord) {
	select {
	case a.detectCh <- rec:
	default:
		metrics.QueueDropped.WithLabelValues("detect").Inc()
		a.Sugar.Warnw("Dropped transfer due to full anomaly engine queue",
			"filename", rec.Filename,
			"client_ip", rec.ClientIP)
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. A failed source is returned as an error; clean cancellation
// returns nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	start := func(name string, fn func() error) {
		g.Go(goroutine.Supervise(name, a.Sugar, fn))
	}

	start("storage-writer", func() error { return a.Storage.Writer.Run(gctx) })

	if a.Dispatcher != nil {
		start("notify-dispatcher", func() error { return a.Dispatcher.Run(gctx) })
	}

	if a.Correlator != nil {
		start("log-source", func() error { return a.LineSource.Run(gctx, a.lineCh) })
		start("close-source", func() error { return a.CloseSource.Run(gctx, a.closeCh) })
		start("correlation-engine", func() error {
			return a.Correlator.Run(gctx, a.closeCh, a.lineCh, a.recordCh)
		})
		start("transfer-persist", func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case rec := <-a.recordCh:
					a.Storage.Writer.SubmitTransfer(rec)
				}
			}
		})
	}

	if a.Detector != nil {
		if a.Feed != nil {
			start("transfer-feed", func() error { return a.Feed.Run(gctx, a.detectCh) })
		}
		start("anomaly-engine", func() error { return a.Detector.Run(gctx, a.detectCh, a.alertCh) })
		start("alert-fanout", func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case alert := <-a.alertCh:
					a.Storage.Writer.SubmitAlert(alert)
				}
			}
		})
	}

	if a.Hub != nil {
		start("websocket-hub", func() error { return a.Hub.Run(gctx) })
	}

	if a.LiveFeed != nil {
		live := make(chan core.TransferRecord, a.Config.TFTP.ChannelBufferSize)
		start("live-feed", func() error { return a.LiveFeed.Run(gctx, live) })
		start("live-broadcast", func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case rec := <-live:
					a.Hub.BroadcastTransfer(rec)
				}
			}
		})
	}

	if a.APIServer != nil {
		start("reporting-api", func() error { return a.APIServer.Run(gctx) })
	}

	a.Sugar.Info("All components started")
	err := g.Wait()
	if err != nil {
		a.Sugar.Errorw("Component failed, stopping", "error", err)
		return err
	}
	a.Sugar.Info("All components stopped")
	return nil
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM
func WaitForShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown releases the sink connections and the database. It is safe to
// call more than once and must only be called after Run has returned.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.Sugar.Info("Shutting down...")

		for _, closeFn := range a.closers {
			if err := closeFn(); err != nil {
				a.Sugar.Warnw("Failed to close sink connection", "error", err)
			}
		}

		if a.Storage != nil && a.Storage.SQLite != nil {
			if err := a.Storage.SQLite.Close(); err != nil {
				a.Sugar.Errorw("Failed to close SQLite database", "error", err)
			}
		}

		a.Sugar.Info("Shutdown complete")
	})
}
