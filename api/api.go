// Package api serves the reporting dashboard API: transfer statistics,
// recent transfers and alerts, host and service state, engine pool sizes,
// Prometheus metrics and a websocket live feed.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"tftpwatch/core"
	"tftpwatch/correlate"
	"tftpwatch/detect"
	"tftpwatch/storage"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Per-client request limits
const (
	defaultRequestsPerSecond = 20
	defaultBurst             = 40
	maxTrackedClients        = 4096
)

// TransferReader is the transfer query surface the API needs
type TransferReader interface {
	RecentTransfers(ctx context.Context, limit int) ([]core.TransferRecord, error)
	HourlyCounts(ctx context.Context, since time.Time) ([]storage.HourlyCount, error)
	TopFiles(ctx context.Context, limit int) ([]storage.FileCount, error)
	Statistics(ctx context.Context, dayStart time.Time) (storage.Statistics, error)
}

// AlertReader is the alert query surface the API needs
type AlertReader interface {
	RecentAlerts(ctx context.Context, kind core.AlertKind, limit int) ([]*core.Alert, error)
	CountAlertsByKind(ctx context.Context) (map[core.AlertKind]int64, error)
}

// Config holds listener and probe settings
type Config struct {
	Addr     string
	Services []string
	// RequestsPerSecond and Burst limit each client IP
	RequestsPerSecond float64
	Burst             int
}

// API holds the reporting server
type API struct {
	cfg       Config
	router    *mux.Router
	server    *http.Server
	transfers TransferReader
	alerts    AlertReader
	probe     SystemProbe
	hub       *Hub
	now       func() time.Time
	logger    *zap.SugaredLogger

	correlationStats func() correlate.Stats
	detectionStats   func() detect.EngineStats

	limiters *lru.Cache[string, *rate.Limiter]
}

// Option configures the API
type Option func(*API)

// WithCorrelationStats exposes correlation pool sizes on /api/correlation
func WithCorrelationStats(fn func() correlate.Stats) Option {
	return func(a *API) { a.correlationStats = fn }
}

// WithDetectionStats exposes anomaly engine counters on /api/correlation
func WithDetectionStats(fn func() detect.EngineStats) Option {
	return func(a *API) { a.detectionStats = fn }
}

// WithProbe replaces the host probe
func WithProbe(p SystemProbe) Option {
	return func(a *API) { a.probe = p }
}

// WithHub attaches the live feed hub served on /ws
func WithHub(h *Hub) Option {
	return func(a *API) { a.hub = h }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

// NewAPI creates the API server
func NewAPI(cfg Config, transfers TransferReader, alerts AlertReader, logger *zap.SugaredLogger, opts ...Option) *API {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	limiters, _ := lru.New[string, *rate.Limiter](maxTrackedClients)

	a := &API{
		cfg:       cfg,
		router:    mux.NewRouter(),
		transfers: transfers,
		alerts:    alerts,
		probe:     NewHostProbe(),
		now:       time.Now,
		logger:    logger,
		limiters:  limiters,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.metricsMiddleware)
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/api/stats", a.getStats).Methods("GET")
	a.router.HandleFunc("/api/transfers", a.getTransfers).Methods("GET")
	a.router.HandleFunc("/api/hourly", a.getHourly).Methods("GET")
	a.router.HandleFunc("/api/top-files", a.getTopFiles).Methods("GET")
	a.router.HandleFunc("/api/alerts", a.getAlerts).Methods("GET")
	a.router.HandleFunc("/api/correlation", a.getCorrelation).Methods("GET")
	a.router.HandleFunc("/api/server", a.getServer).Methods("GET")
	a.router.HandleFunc("/api/services", a.getServices).Methods("GET")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
	if a.hub != nil {
		a.router.Handle("/ws", a.hub)
	}
}

// Handler returns the routed handler
func (a *API) Handler() http.Handler {
	return a.router
}

// Run listens on the configured address until ctx is done
func (a *API) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve handles connections on ln until ctx is done, then shuts down
// gracefully
func (a *API) Serve(ctx context.Context, ln net.Listener) error {
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infow("Reporting API listening", "addr", ln.Addr().String())
		errCh <- a.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warnw("Reporting API shutdown incomplete", "error", err)
		}
		a.logger.Info("Reporting API stopped")
		return nil
	}
}
