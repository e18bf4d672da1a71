//go:build linux

package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"tftpwatch/core"
	"tftpwatch/metrics"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pollTimeout is how often the read loop wakes up to check for cancellation
const pollTimeout = 500 * time.Millisecond

// InotifySource watches the TFTP root for IN_CLOSE_WRITE and IN_CLOSE_NOWRITE.
// Only files directly inside the root are reported.
type InotifySource struct {
	root   string
	now    func() time.Time
	logger *zap.SugaredLogger
}

// NewInotifySource creates a close-event source for root
func NewInotifySource(root string, logger *zap.SugaredLogger) *InotifySource {
	return &InotifySource{root: filepath.Clean(root), now: time.Now, logger: logger}
}

// Name implements CloseSource
func (s *InotifySource) Name() string {
	return "inotify"
}

// Run implements CloseSource
func (s *InotifySource) Run(ctx context.Context, out chan<- core.CloseEvent) error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return fmt.Errorf("%w: inotify init: %v", ErrSourceClosed, err)
	}
	defer unix.Close(fd)

	if _, err := unix.InotifyAddWatch(fd, s.root, unix.IN_CLOSE_WRITE|unix.IN_CLOSE_NOWRITE); err != nil {
		return fmt.Errorf("%w: watching %s: %v", ErrSourceClosed, s.root, err)
	}
	s.logger.Infow("Filesystem watch started", "root", s.root)

	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.Poll(fds, int(pollTimeout/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("%w: inotify poll: %v", ErrSourceClosed, err)
		}
		if n == 0 {
			continue
		}

		n, err = unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("%w: inotify read: %v", ErrSourceClosed, err)
		}

		events, err := s.decode(buf[:n])
		for _, ev := range events {
			metrics.EventsIngested.WithLabelValues("inotify").Inc()
			if !send(ctx, out, ev) {
				return nil
			}
		}
		if err != nil {
			return err
		}
	}
}

// decode converts a buffer of raw inotify records to close events. It
// returns an error once the watch itself is gone (root removed or unmounted).
func (s *InotifySource) decode(buf []byte) ([]core.CloseEvent, error) {
	var events []core.CloseEvent
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := int(raw.Len)
		start := offset + unix.SizeofInotifyEvent
		offset = start + nameLen
		if offset > len(buf) {
			break
		}

		mask := raw.Mask
		if mask&unix.IN_Q_OVERFLOW != 0 {
			s.logger.Warnw("Inotify queue overflow, close events were lost", "root", s.root)
			continue
		}
		if mask&unix.IN_IGNORED != 0 {
			return events, fmt.Errorf("%w: watch on %s removed", ErrSourceClosed, s.root)
		}
		if mask&unix.IN_ISDIR != 0 || nameLen == 0 {
			continue
		}

		name := strings.TrimRight(string(buf[start:offset]), "\x00")
		kind := core.CloseNoWrite
		if mask&unix.IN_CLOSE_WRITE != 0 {
			kind = core.CloseWrite
		}
		events = append(events, core.CloseEvent{Filename: name, Kind: kind, SeenAt: s.now()})
	}
	return events, nil
}
