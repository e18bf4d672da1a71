package ingest

import (
	"context"
	"errors"

	"tftpwatch/core"
)

// ErrSourceClosed is returned when an event stream ends while the monitor
// is still running. Callers treat it as fatal.
var ErrSourceClosed = errors.New("event source closed")

// LineSource streams raw daemon log lines. Run blocks until ctx is done
// (returning nil) or the underlying stream ends (returning an error
// wrapping ErrSourceClosed).
type LineSource interface {
	Name() string
	Run(ctx context.Context, out chan<- string) error
}

// CloseSource streams file close notifications from the TFTP root. Run has
// the same contract as LineSource.Run.
type CloseSource interface {
	Name() string
	Run(ctx context.Context, out chan<- core.CloseEvent) error
}

// send delivers v unless ctx is cancelled first. Sources block rather than
// drop so that no close or request is silently lost.
func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
