// Package correlate fuses filesystem close events and daemon log lines into
// finalized transfer records.
package correlate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"tftpwatch/core"
	"tftpwatch/ingest"
	"tftpwatch/metrics"

	"go.uber.org/zap"
)

// DefaultMaxRetained caps each unmatched pool independently of age
const DefaultMaxRetained = 10000

// Config holds the timing parameters of the engine
type Config struct {
	GracePeriod     time.Duration
	TickInterval    time.Duration
	MaxUnmatchedAge time.Duration
	MaxRetained     int
}

// Stats is a point-in-time snapshot of the engine pools
type Stats struct {
	UnmatchedRequests int    `json:"unmatched_requests"`
	UnmatchedCloses   int    `json:"unmatched_closes"`
	PendingErrors     int    `json:"pending_errors"`
	PendingTransfers  int    `json:"pending_transfers"`
	Finalized         uint64 `json:"finalized"`
	Evicted           uint64 `json:"evicted"`
}

type pendingEntry struct {
	transfer core.PendingTransfer
	request  core.RequestEvent
}

// Engine owns all correlation state. The Handle* and Tick methods are not
// safe for concurrent use; Run serializes every producer onto one goroutine.
type Engine struct {
	cfg    Config
	parser ingest.Parser
	sizes  SizeLookup
	now    func() time.Time
	logger *zap.SugaredLogger

	requests []core.RequestEvent
	closes   []core.CloseEvent
	errors   []core.ErrorEvent
	pending  []pendingEntry

	finalized uint64
	evicted   uint64
	stats     atomic.Pointer[Stats]
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a correlation engine
func NewEngine(cfg Config, parser ingest.Parser, sizes SizeLookup, logger *zap.SugaredLogger, opts ...Option) *Engine {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = core.DefaultGracePeriod
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = core.DefaultTickInterval
	}
	if cfg.MaxUnmatchedAge <= 0 {
		cfg.MaxUnmatchedAge = core.DefaultMaxUnmatchedAge
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = DefaultMaxRetained
	}
	e := &Engine{
		cfg:    cfg,
		parser: parser,
		sizes:  sizes,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.publishStats()
	return e
}

// Run consumes close events and log lines until ctx is done, finalizing
// transfers on every tick and sending them to out. It returns an error
// wrapping ingest.ErrSourceClosed if an input channel is closed while running.
func (e *Engine) Run(ctx context.Context, closes <-chan core.CloseEvent, lines <-chan string, out chan<- core.TransferRecord) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Infow("Correlation engine started",
		"grace_period", e.cfg.GracePeriod,
		"tick_interval", e.cfg.TickInterval,
		"max_unmatched_age", e.cfg.MaxUnmatchedAge)

	for {
		select {
		case <-ctx.Done():
			e.logger.Infow("Correlation engine stopped, discarding in-flight state",
				"pending_transfers", len(e.pending),
				"unmatched_requests", len(e.requests),
				"unmatched_closes", len(e.closes))
			return nil

		case ev, ok := <-closes:
			if !ok {
				return fmt.Errorf("%w: close event stream ended", ingest.ErrSourceClosed)
			}
			e.HandleClose(ev)

		case line, ok := <-lines:
			if !ok {
				return fmt.Errorf("%w: log line stream ended", ingest.ErrSourceClosed)
			}
			e.HandleLine(line)

		case <-ticker.C:
			for _, rec := range e.Tick() {
				select {
				case out <- rec:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// HandleClose records a close event and tries to pair it right away. An
// unpaired close is retained and retried on every tick.
func (e *Engine) HandleClose(ev core.CloseEvent) {
	if ev.SeenAt.IsZero() {
		ev.SeenAt = e.now()
	}
	if !e.match(ev, e.now()) {
		e.closes = append(e.closes, ev)
		e.capPools()
	}
	e.publishStats()
}

// HandleLine parses a log line and retains the request or error it carries
func (e *Engine) HandleLine(line string) {
	res := e.parser.Parse(line, e.now())
	switch {
	case res.Request != nil:
		req := *res.Request
		req.Matched = false
		e.requests = append(e.requests, req)
		e.logger.Debugw("Request recognized",
			"correlation_id", req.CorrelationID,
			"type", req.Direction.RequestType(),
			"filename", req.Filename,
			"client_ip", req.ClientIP)
	case res.Error != nil:
		e.errors = append(e.errors, *res.Error)
		e.logger.Debugw("Transfer error recognized",
			"correlation_id", res.Error.CorrelationID,
			"reason", res.Error.Reason)
	default:
		return
	}
	e.capPools()
	e.publishStats()
}

// Tick runs a matching pass over retained close events, finalizes every
// pending transfer whose grace period has elapsed and evicts stale unmatched
// entries. Records are returned in finalization order.
func (e *Engine) Tick() []core.TransferRecord {
	now := e.now()

	retained := e.closes[:0]
	for _, ev := range e.closes {
		if !e.match(ev, now) {
			retained = append(retained, ev)
		}
	}
	clear(e.closes[len(retained):])
	e.closes = retained

	var records []core.TransferRecord
	remaining := e.pending[:0]
	for _, p := range e.pending {
		if p.transfer.FinalizeAt.After(now) {
			remaining = append(remaining, p)
			continue
		}
		records = append(records, e.finalize(p, now))
	}
	clear(e.pending[len(remaining):])
	e.pending = remaining

	e.evictStale(now)
	e.publishStats()
	return records
}

// Stats returns the latest pool snapshot. Safe for concurrent use.
func (e *Engine) Stats() Stats {
	return *e.stats.Load()
}

// match pairs ev with the most recently added unmatched request for the same
// filename. Direction must agree with the close kind.
func (e *Engine) match(ev core.CloseEvent, now time.Time) bool {
	idx := -1
	for i := len(e.requests) - 1; i >= 0; i-- {
		if e.requests[i].Filename == ev.Filename {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	req := e.requests[idx]
	if !req.Direction.Completes(ev.Kind) {
		return false
	}

	e.requests = append(e.requests[:idx], e.requests[idx+1:]...)
	req.Matched = true

	p := core.PendingTransfer{
		Filename:      ev.Filename,
		CorrelationID: req.CorrelationID,
		Direction:     req.Direction,
		ClientIP:      req.ClientIP,
		Size:          e.sizes.Size(ev.Filename),
		ClosedAt:      ev.SeenAt,
		FinalizeAt:    now.Add(e.cfg.GracePeriod),
	}
	e.pending = append(e.pending, pendingEntry{transfer: p, request: req})

	e.logger.Debugw("Close matched to request",
		"filename", p.Filename,
		"correlation_id", p.CorrelationID,
		"direction", p.Direction,
		"finalize_at", p.FinalizeAt)
	return true
}

// finalize turns a pending transfer into a record, consuming the first error
// reported for its correlation id after the request was seen. tftpd forks a
// process per request and PIDs are reused, so an error logged before the
// request belongs to an earlier transfer with the same PID and is skipped.
func (e *Engine) finalize(p pendingEntry, now time.Time) core.TransferRecord {
	var failure *core.ErrorEvent
	for i := range e.errors {
		errEv := e.errors[i]
		if errEv.CorrelationID != p.transfer.CorrelationID || errEv.SeenAt.Before(p.request.SeenAt) {
			continue
		}
		failure = &errEv
		e.errors = append(e.errors[:i], e.errors[i+1:]...)
		break
	}

	rec := p.transfer.Finalize(failure, now)
	e.finalized++

	metrics.TransfersFinalized.WithLabelValues(string(rec.Direction), string(rec.Status)).Inc()
	if rec.Size != nil {
		metrics.TransferSize.Observe(float64(*rec.Size))
	}
	e.logger.Infow("Transfer finalized",
		"type", rec.Direction.RequestType(),
		"filename", rec.Filename,
		"client_ip", rec.ClientIP,
		"size", rec.SizeString(),
		"status", rec.Status,
		"reason", rec.FailureReason)
	return rec
}

// evictStale drops unmatched entries older than MaxUnmatchedAge
func (e *Engine) evictStale(now time.Time) {
	cutoff := now.Add(-e.cfg.MaxUnmatchedAge)

	var n int
	e.requests, n = evictBefore(e.requests, cutoff, func(r core.RequestEvent) time.Time { return r.SeenAt })
	e.recordEviction("requests", n)
	e.closes, n = evictBefore(e.closes, cutoff, func(c core.CloseEvent) time.Time { return c.SeenAt })
	e.recordEviction("closes", n)
	e.errors, n = evictBefore(e.errors, cutoff, func(c core.ErrorEvent) time.Time { return c.SeenAt })
	e.recordEviction("errors", n)
}

// capPools evicts the oldest entries of any pool over MaxRetained
func (e *Engine) capPools() {
	if over := len(e.requests) - e.cfg.MaxRetained; over > 0 {
		e.requests = append(e.requests[:0], e.requests[over:]...)
		e.recordEviction("requests", over)
	}
	if over := len(e.closes) - e.cfg.MaxRetained; over > 0 {
		e.closes = append(e.closes[:0], e.closes[over:]...)
		e.recordEviction("closes", over)
	}
	if over := len(e.errors) - e.cfg.MaxRetained; over > 0 {
		e.errors = append(e.errors[:0], e.errors[over:]...)
		e.recordEviction("errors", over)
	}
}

func (e *Engine) recordEviction(pool string, n int) {
	if n == 0 {
		return
	}
	e.evicted += uint64(n)
	metrics.CorrelationEvicted.WithLabelValues(pool).Add(float64(n))
	e.logger.Debugw("Evicted unmatched entries", "pool", pool, "count", n)
}

func (e *Engine) publishStats() {
	s := &Stats{
		UnmatchedRequests: len(e.requests),
		UnmatchedCloses:   len(e.closes),
		PendingErrors:     len(e.errors),
		PendingTransfers:  len(e.pending),
		Finalized:         e.finalized,
		Evicted:           e.evicted,
	}
	e.stats.Store(s)

	metrics.CorrelationPool.WithLabelValues("requests").Set(float64(s.UnmatchedRequests))
	metrics.CorrelationPool.WithLabelValues("closes").Set(float64(s.UnmatchedCloses))
	metrics.CorrelationPool.WithLabelValues("errors").Set(float64(s.PendingErrors))
	metrics.CorrelationPool.WithLabelValues("pending").Set(float64(s.PendingTransfers))
}

// evictBefore removes entries seen before cutoff, keeping order
func evictBefore[T any](items []T, cutoff time.Time, seenAt func(T) time.Time) ([]T, int) {
	kept := items[:0]
	for _, it := range items {
		if seenAt(it).Before(cutoff) {
			continue
		}
		kept = append(kept, it)
	}
	n := len(items) - len(kept)
	clear(items[len(kept):])
	return kept, n
}
