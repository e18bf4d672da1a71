package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tftpwatch/metrics"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileSource follows a log file like tail -F: it starts at the current end,
// reads appended lines on write notifications and reopens the file when it
// is rotated or truncated.
type FileSource struct {
	path   string
	logger *zap.SugaredLogger

	file    *os.File
	reader  *bufio.Reader
	offset  int64
	partial string
}

// NewFileSource creates a tailing source for path
func NewFileSource(path string, logger *zap.SugaredLogger) *FileSource {
	return &FileSource{path: filepath.Clean(path), logger: logger}
}

// Name implements LineSource
func (f *FileSource) Name() string {
	return "file"
}

// Run implements LineSource
func (f *FileSource) Run(ctx context.Context, out chan<- string) error {
	if err := f.open(true); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceClosed, err)
	}
	defer f.close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so rotations (rename + create) are seen
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("%w: failed to watch %s: %v", ErrSourceClosed, filepath.Dir(f.path), err)
	}
	f.logger.Infow("Log file source started", "path", f.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("%w: file watcher stopped", ErrSourceClosed)
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				f.close()
				if err := f.open(false); err != nil {
					f.logger.Warnw("Failed to reopen rotated log file", "path", f.path, "error", err)
					continue
				}
				if !f.drain(ctx, out) {
					return nil
				}
			case event.Has(fsnotify.Write):
				if f.file == nil {
					if err := f.open(false); err != nil {
						continue
					}
				}
				f.rewindIfTruncated()
				if !f.drain(ctx, out) {
					return nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("%w: file watcher stopped", ErrSourceClosed)
			}
			f.logger.Warnw("File watcher error", "path", f.path, "error", err)
		}
	}
}

func (f *FileSource) open(atEnd bool) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	f.offset = 0
	if atEnd {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to seek %s: %w", f.path, err)
		}
		f.offset = end
	}
	f.file = file
	f.reader = bufio.NewReader(file)
	f.partial = ""
	return nil
}

func (f *FileSource) close() {
	if f.file != nil {
		f.file.Close()
		f.file = nil
		f.reader = nil
	}
}

func (f *FileSource) rewindIfTruncated() {
	info, err := f.file.Stat()
	if err != nil || info.Size() >= f.offset {
		return
	}
	f.logger.Infow("Log file truncated, reading from start", "path", f.path)
	if _, err := f.file.Seek(0, io.SeekStart); err == nil {
		f.offset = 0
		f.reader.Reset(f.file)
		f.partial = ""
	}
}

// drain emits every complete line appended since the last read
func (f *FileSource) drain(ctx context.Context, out chan<- string) bool {
	for {
		chunk, err := f.reader.ReadString('\n')
		f.offset += int64(len(chunk))
		if err != nil {
			f.partial += chunk
			if !errors.Is(err, io.EOF) {
				f.logger.Warnw("Log file read error", "path", f.path, "error", err)
			}
			return true
		}
		line := strings.TrimSpace(f.partial + chunk)
		f.partial = ""
		if line == "" {
			continue
		}
		metrics.EventsIngested.WithLabelValues("file").Inc()
		if !send(ctx, out, line) {
			return false
		}
	}
}
