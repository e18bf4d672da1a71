// Package detect evaluates finalized transfers against anomaly rules.
package detect

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tftpwatch/config"
	"tftpwatch/core"
	"tftpwatch/metrics"

	"go.uber.org/zap"
)

// EngineStats is a snapshot of engine counters
type EngineStats struct {
	Processed     uint64 `json:"processed"`
	AlertsRaised  uint64 `json:"alerts_raised"`
	AlertsDropped uint64 `json:"alerts_dropped"`
	LastRecordID  int64  `json:"last_record_id"`
	Detectors     int    `json:"detectors"`
}

// Engine runs every registered detector on each transfer record, one record
// at a time
type Engine struct {
	mu        sync.RWMutex
	detectors []Detector
	now       func() time.Time
	logger    *zap.SugaredLogger

	processed atomic.Uint64
	raised    atomic.Uint64
	dropped   atomic.Uint64
	lastID    atomic.Int64
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine with no detectors
func NewEngine(logger *zap.SugaredLogger, opts ...Option) *Engine {
	e := &Engine{now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewEngineFromConfig creates an engine with the detectors enabled by cfg.
// The unauthorized source rule is always active; with an empty allow-list
// every transfer raises it. An empty critical file list disables that rule.
func NewEngineFromConfig(cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) (*Engine, error) {
	e := NewEngine(logger, opts...)

	if len(cfg.Alerts.AuthorizedIPs) == 0 {
		logger.Warnw("No authorized IPs configured, every transfer will raise an unauthorized source alert")
	}
	e.RegisterDetector(NewUnauthorizedSourceDetector(cfg.Alerts.AuthorizedIPs))
	if len(cfg.Alerts.CriticalFiles) > 0 {
		e.RegisterDetector(NewCriticalResourceDetector(cfg.Alerts.CriticalFiles))
	}

	tracker, err := NewRateTracker(cfg.Alerts.TimeWindow, cfg.Alerts.MaxTrackedClients)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate tracker: %w", err)
	}
	e.RegisterDetector(NewRateLimitDetector(cfg.Alerts.MaxRequests, tracker))

	logger.Infow("Anomaly engine configured",
		"authorized_ips", cfg.Alerts.AuthorizedIPs,
		"critical_files", cfg.Alerts.CriticalFiles,
		"max_requests", cfg.Alerts.MaxRequests,
		"time_window", cfg.Alerts.TimeWindow)
	return e, nil
}

// RegisterDetector adds a detector to the engine
func (e *Engine) RegisterDetector(d Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detectors = append(e.detectors, d)
}

// Evaluate runs every detector on rec. Detector errors are logged and do not
// stop the remaining detectors.
func (e *Engine) Evaluate(rec core.TransferRecord) []*core.Alert {
	e.mu.RLock()
	detectors := e.detectors
	e.mu.RUnlock()

	now := e.now()
	var alerts []*core.Alert
	for _, d := range detectors {
		alert, err := d.Check(rec, now)
		if err != nil {
			e.logger.Errorw("Detector failed", "kind", d.Kind(), "transfer_id", rec.ID, "error", err)
			continue
		}
		if alert == nil {
			continue
		}
		metrics.AlertsGenerated.WithLabelValues(string(alert.Kind)).Inc()
		e.logger.Warnw("Anomaly detected",
			"kind", alert.Kind,
			"client_ip", rec.ClientIP,
			"filename", rec.Filename,
			"transfer_id", rec.ID)
		alerts = append(alerts, alert)
	}

	e.processed.Add(1)
	e.raised.Add(uint64(len(alerts)))
	if rec.ID > 0 {
		e.lastID.Store(rec.ID)
	}
	return alerts
}

// Run evaluates records until ctx is done or records is closed. Alerts are
// handed to out without blocking; when out is full the alert is dropped.
func (e *Engine) Run(ctx context.Context, records <-chan core.TransferRecord, out chan<- *core.Alert) error {
	e.logger.Infow("Anomaly engine started", "detectors", e.Stats().Detectors)
	for {
		select {
		case <-ctx.Done():
			e.logger.Infow("Anomaly engine stopped", "processed", e.processed.Load())
			return nil
		case rec, ok := <-records:
			if !ok {
				e.logger.Infow("Anomaly engine input closed", "processed", e.processed.Load())
				return nil
			}
			for _, alert := range e.Evaluate(rec) {
				select {
				case out <- alert:
				default:
					e.dropped.Add(1)
					metrics.QueueDropped.WithLabelValues("alerts").Inc()
					e.logger.Warnw("Dropped alert due to full alert channel", "kind", alert.Kind, "alert_id", alert.ID)
				}
			}
		}
	}
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	n := len(e.detectors)
	e.mu.RUnlock()
	return EngineStats{
		Processed:     e.processed.Load(),
		AlertsRaised:  e.raised.Load(),
		AlertsDropped: e.dropped.Load(),
		LastRecordID:  e.lastID.Load(),
		Detectors:     n,
	}
}
