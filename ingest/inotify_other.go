//go:build !linux

package ingest

import (
	"context"
	"errors"
	"fmt"

	"tftpwatch/core"

	"go.uber.org/zap"
)

// InotifySource is only available on Linux
type InotifySource struct {
	root   string
	logger *zap.SugaredLogger
}

// NewInotifySource creates a close-event source for root
func NewInotifySource(root string, logger *zap.SugaredLogger) *InotifySource {
	return &InotifySource{root: root, logger: logger}
}

// Name implements CloseSource
func (s *InotifySource) Name() string {
	return "inotify"
}

// Run implements CloseSource and always fails outside Linux
func (s *InotifySource) Run(ctx context.Context, out chan<- core.CloseEvent) error {
	return fmt.Errorf("%w: %v", ErrSourceClosed, errors.New("inotify is not supported on this platform"))
}
