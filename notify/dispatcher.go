package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"tftpwatch/core"
	"tftpwatch/metrics"
	"tftpwatch/util"
	"tftpwatch/util/goroutine"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher defaults
const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 10 * time.Second
	DefaultMaxFailures = 3
	DefaultOpenTimeout = 60 * time.Second
)

// DispatcherConfig configures queueing and per-sink protection
type DispatcherConfig struct {
	// QueueSize bounds each sink's queue
	QueueSize   int
	SendTimeout time.Duration
	// MaxFailures consecutive failures open a sink's circuit for OpenTimeout
	MaxFailures uint32
	OpenTimeout time.Duration
}

// SinkOption configures a registered sink
type SinkOption func(*guardedSink)

// WithRateLimit caps deliveries to perMinute messages per minute
func WithRateLimit(perMinute int) SinkOption {
	return func(g *guardedSink) {
		if perMinute > 0 {
			g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
}

// guardedSink owns one queue and one worker, so a sink stuck in a slow send
// only delays its own messages
type guardedSink struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
	queue   chan Message
}

// Dispatcher queues messages for alert sinks and transfer notice sinks and
// delivers them with one worker per sink. Callers never block and never see
// delivery errors; failures are logged and counted.
type Dispatcher struct {
	cfg         DispatcherConfig
	sinks       []*guardedSink
	alertSinks  []*guardedSink
	noticeSinks []*guardedSink
	logger      *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher with no sinks
func NewDispatcher(cfg DispatcherConfig, logger *zap.SugaredLogger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	return &Dispatcher{
		cfg:    cfg,
		logger: logger,
	}
}

// AddAlertSink registers a sink that receives alerts. Must be called before Run.
func (d *Dispatcher) AddAlertSink(s Sink, opts ...SinkOption) {
	d.alertSinks = append(d.alertSinks, d.guard(s, opts))
}

// AddNoticeSink registers a sink that receives transfer notices. Must be
// called before Run.
func (d *Dispatcher) AddNoticeSink(s Sink, opts ...SinkOption) {
	d.noticeSinks = append(d.noticeSinks, d.guard(s, opts))
}

// Sinks returns the names of the alert and notice sinks
func (d *Dispatcher) Sinks() (alerts, notices []string) {
	for _, g := range d.alertSinks {
		alerts = append(alerts, g.sink.Name())
	}
	for _, g := range d.noticeSinks {
		notices = append(notices, g.sink.Name())
	}
	return alerts, notices
}

// guard wraps s once. A sink registered for both alerts and notices shares
// its queue, breaker and limiter between the two roles.
func (d *Dispatcher) guard(s Sink, opts []SinkOption) *guardedSink {
	for _, g := range d.sinks {
		if g.sink == s {
			for _, opt := range opts {
				opt(g)
			}
			return g
		}
	}

	name := s.Name()
	maxFailures := d.cfg.MaxFailures
	metrics.SinkCircuitState.WithLabelValues(name).Set(0)

	g := &guardedSink{
		sink:    s,
		queue:   make(chan Message, d.cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Inf, 0),
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     d.cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.SinkCircuitState.WithLabelValues(name).Set(float64(to))
				d.logger.Warnw("Sink circuit breaker state changed",
					"sink", name,
					"from", from.String(),
					"to", to.String())
			},
		}),
	}
	for _, opt := range opts {
		opt(g)
	}
	d.sinks = append(d.sinks, g)
	return g
}

// Queued returns the number of messages waiting across all sink queues
func (d *Dispatcher) Queued() int {
	n := 0
	for _, g := range d.sinks {
		n += len(g.queue)
	}
	return n
}

// NotifyAlert queues an alert for every alert sink
func (d *Dispatcher) NotifyAlert(alert *core.Alert) {
	if alert == nil {
		return
	}
	msg := AlertMessage(alert)
	for _, g := range d.alertSinks {
		d.enqueue(g, msg)
	}
}

// NotifyTransfer queues the notices of a finalized transfer for every notice sink
func (d *Dispatcher) NotifyTransfer(rec core.TransferRecord) {
	if len(d.noticeSinks) == 0 {
		return
	}
	for _, msg := range TransferNotices(rec) {
		for _, g := range d.noticeSinks {
			d.enqueue(g, msg)
		}
	}
}

func (d *Dispatcher) enqueue(g *guardedSink, msg Message) {
	select {
	case g.queue <- msg:
	default:
		metrics.QueueDropped.WithLabelValues("notify").Inc()
		d.logger.Warnw("Dropped notification due to full notify queue",
			"sink", g.sink.Name(),
			"subject", msg.Subject)
	}
}

// Run starts one delivery worker per sink and blocks until ctx is done and
// every worker has returned. Messages still queued at shutdown are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	alerts, notices := d.Sinks()
	d.logger.Infow("Notification dispatcher started", "alert_sinks", alerts, "notice_sinks", notices)

	var wg sync.WaitGroup
	for _, g := range d.sinks {
		wg.Add(1)
		go func(g *guardedSink) {
			defer wg.Done()
			d.runSink(ctx, g)
		}(g)
	}
	wg.Wait()

	if n := d.Queued(); n > 0 {
		d.logger.Warnw("Notification dispatcher stopped with undelivered messages", "count", n)
	}
	return nil
}

func (d *Dispatcher) runSink(ctx context.Context, g *guardedSink) {
	defer goroutine.Recover("notify-"+g.sink.Name(), d.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-g.queue:
			d.deliver(ctx, g, msg)
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, g *guardedSink, msg Message) {
	name := g.sink.Name()

	if !g.limiter.Allow() {
		metrics.NotificationsSent.WithLabelValues(name, "rate_limited").Inc()
		d.logger.Warnw("Notification dropped by sink rate limit", "sink", name, "subject", msg.Subject)
		return
	}

	ctx, cancel := context.WithTimeout(parent, d.cfg.SendTimeout)
	defer cancel()

	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, g.sink.Send(ctx, msg)
	})
	switch {
	case err == nil:
		metrics.NotificationsSent.WithLabelValues(name, "ok").Inc()
		d.logger.Debugw("Notification sent", "sink", name, "subject", msg.Subject)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.NotificationsSent.WithLabelValues(name, "rejected").Inc()
		d.logger.Warnw("Notification rejected by open circuit", "sink", name, "subject", msg.Subject)
	default:
		metrics.NotificationsSent.WithLabelValues(name, "error").Inc()
		d.logger.Errorw("Failed to send notification", "sink", name, "subject", msg.Subject, "error", util.SanitizeError(err))
	}
}
