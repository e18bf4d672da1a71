package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"tftpwatch/core"

	"go.uber.org/zap"
)

const (
	// DefaultFeedInterval is the poll interval when none is configured
	DefaultFeedInterval = 10 * time.Second
	defaultFeedBatch    = 500
)

// TransferFeed replays newly stored transfers in id order. It starts after
// the highest id present when it is created, so history is never replayed.
type TransferFeed struct {
	transfers *TransferStorage
	interval  time.Duration
	batch     int
	lastID    atomic.Int64
	logger    *zap.SugaredLogger
}

// NewTransferFeed creates a feed positioned after the current max id
func NewTransferFeed(ctx context.Context, transfers *TransferStorage, interval time.Duration, logger *zap.SugaredLogger) (*TransferFeed, error) {
	if interval <= 0 {
		interval = DefaultFeedInterval
	}
	maxID, err := transfers.MaxID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover last transfer id: %w", err)
	}
	f := &TransferFeed{
		transfers: transfers,
		interval:  interval,
		batch:     defaultFeedBatch,
		logger:    logger,
	}
	f.lastID.Store(maxID)
	logger.Infow("Transfer feed positioned", "last_id", maxID, "interval", interval)
	return f, nil
}

// LastID returns the id of the last transfer handed out
func (f *TransferFeed) LastID() int64 {
	return f.lastID.Load()
}

// Poll sends every transfer stored since the last poll to out. It returns
// the number of records sent.
func (f *TransferFeed) Poll(ctx context.Context, out chan<- core.TransferRecord) (int, error) {
	sent := 0
	for {
		records, err := f.transfers.TransfersAfter(ctx, f.lastID.Load(), f.batch)
		if err != nil {
			return sent, err
		}
		for _, rec := range records {
			select {
			case out <- rec:
			case <-ctx.Done():
				return sent, ctx.Err()
			}
			f.lastID.Store(rec.ID)
			sent++
		}
		if len(records) < f.batch {
			return sent, nil
		}
	}
}

// Run polls every interval until ctx is done. Query failures are logged and
// retried on the next poll.
func (f *TransferFeed) Run(ctx context.Context, out chan<- core.TransferRecord) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := f.Poll(ctx, out)
			if err != nil && ctx.Err() == nil {
				f.logger.Errorw("Failed to poll new transfers", "last_id", f.LastID(), "error", err)
				continue
			}
			if n > 0 {
				f.logger.Debugw("Transfer feed delivered records", "count", n, "last_id", f.LastID())
			}
		}
	}
}
