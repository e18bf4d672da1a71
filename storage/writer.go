package storage

import (
	"context"
	"time"

	"tftpwatch/core"
	"tftpwatch/metrics"
	"tftpwatch/util/goroutine"

	"go.uber.org/zap"
)

const (
	// DefaultWriterQueueSize is used when the configured size is not positive
	DefaultWriterQueueSize = 1000
	writeTimeout           = 5 * time.Second
	drainTimeout           = 10 * time.Second
)

// TransferHook observes every transfer the writer handles. Hooks run on the
// writer goroutine and must not block.
type TransferHook func(rec core.TransferRecord)

// AlertHook observes every alert the writer handles
type AlertHook func(alert *core.Alert)

// Writer persists transfers and alerts from buffered queues on one
// goroutine. Submissions never block: a full queue drops the write and logs.
type Writer struct {
	transfers  *TransferStorage
	alerts     *AlertStorage
	transferCh chan core.TransferRecord
	alertCh    chan *core.Alert

	transferHooks []TransferHook
	alertHooks    []AlertHook

	logger *zap.SugaredLogger
}

// NewWriter creates a writer with queues of queueSize entries
func NewWriter(transfers *TransferStorage, alerts *AlertStorage, queueSize int, logger *zap.SugaredLogger) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultWriterQueueSize
	}
	return &Writer{
		transfers:  transfers,
		alerts:     alerts,
		transferCh: make(chan core.TransferRecord, queueSize),
		alertCh:    make(chan *core.Alert, queueSize),
		logger:     logger,
	}
}

// OnTransfer registers a hook called with each transfer after its insert.
// Must be called before Run.
func (w *Writer) OnTransfer(h TransferHook) {
	w.transferHooks = append(w.transferHooks, h)
}

// OnAlert registers a hook called with each alert after its insert.
// Must be called before Run.
func (w *Writer) OnAlert(h AlertHook) {
	w.alertHooks = append(w.alertHooks, h)
}

// SubmitTransfer queues rec for insertion. When the queue is full the record
// is not persisted but is still handed to the hooks, without an id, so
// downstream consumers never depend on storage keeping up.
func (w *Writer) SubmitTransfer(rec core.TransferRecord) bool {
	select {
	case w.transferCh <- rec:
		return true
	default:
		metrics.QueueDropped.WithLabelValues("storage_transfers").Inc()
		w.logger.Warnw("Dropped transfer write due to full storage queue",
			"filename", rec.Filename,
			"client_ip", rec.ClientIP)
		w.runTransferHooks(rec)
		return false
	}
}

// SubmitAlert queues alert for insertion, dropping it when the queue is full
func (w *Writer) SubmitAlert(alert *core.Alert) bool {
	if alert == nil {
		return false
	}
	select {
	case w.alertCh <- alert:
		return true
	default:
		metrics.QueueDropped.WithLabelValues("storage_alerts").Inc()
		w.logger.Warnw("Dropped alert write due to full storage queue",
			"alert_id", alert.ID,
			"kind", alert.Kind)
		w.runAlertHooks(alert)
		return false
	}
}

// Run drains the queues until ctx is done, then flushes what is still queued
func (w *Writer) Run(ctx context.Context) error {
	defer goroutine.Recover("storage-writer", w.logger)

	w.logger.Infow("Storage writer started", "queue_size", cap(w.transferCh))
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case rec := <-w.transferCh:
			w.writeTransfer(context.Background(), rec)
		case alert := <-w.alertCh:
			w.writeAlert(context.Background(), alert)
		}
	}
}

func (w *Writer) drain() {
	deadline := time.Now().Add(drainTimeout)
	flushed := 0
	for time.Now().Before(deadline) {
		select {
		case rec := <-w.transferCh:
			w.writeTransfer(context.Background(), rec)
		case alert := <-w.alertCh:
			w.writeAlert(context.Background(), alert)
		default:
			w.logger.Infow("Storage writer stopped", "flushed", flushed)
			return
		}
		flushed++
	}
	w.logger.Warnw("Storage writer stopped before queue was empty",
		"flushed", flushed,
		"transfers_left", len(w.transferCh),
		"alerts_left", len(w.alertCh))
}

func (w *Writer) writeTransfer(parent context.Context, rec core.TransferRecord) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()

	id, err := w.transfers.InsertTransfer(ctx, rec)
	if err != nil {
		metrics.StorageWrites.WithLabelValues("file_transfers", "error").Inc()
		w.logger.Errorw("Failed to persist transfer",
			"filename", rec.Filename,
			"client_ip", rec.ClientIP,
			"error", err)
	} else {
		metrics.StorageWrites.WithLabelValues("file_transfers", "ok").Inc()
		rec = rec.WithID(id)
	}
	w.runTransferHooks(rec)
}

func (w *Writer) writeAlert(parent context.Context, alert *core.Alert) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()

	if err := w.alerts.InsertAlert(ctx, alert); err != nil {
		metrics.StorageWrites.WithLabelValues("alerts", "error").Inc()
		w.logger.Errorw("Failed to persist alert",
			"alert_id", alert.ID,
			"kind", alert.Kind,
			"error", err)
	} else {
		metrics.StorageWrites.WithLabelValues("alerts", "ok").Inc()
	}
	w.runAlertHooks(alert)
}

func (w *Writer) runTransferHooks(rec core.TransferRecord) {
	for _, h := range w.transferHooks {
		h(rec)
	}
}

func (w *Writer) runAlertHooks(alert *core.Alert) {
	for _, h := range w.alertHooks {
		h(alert)
	}
}
