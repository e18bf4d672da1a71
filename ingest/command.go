package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"tftpwatch/metrics"

	"go.uber.org/zap"
)

// CommandSource runs a long-lived command and emits each stdout line
type CommandSource struct {
	name   string
	path   string
	args   []string
	logger *zap.SugaredLogger
}

// NewCommandSource creates a source reading the stdout of path args...
func NewCommandSource(name, path string, args []string, logger *zap.SugaredLogger) *CommandSource {
	return &CommandSource{name: name, path: path, args: args, logger: logger}
}

// NewJournalSource follows a systemd unit with journalctl, starting at the
// current end of the journal.
func NewJournalSource(unit string, logger *zap.SugaredLogger) *CommandSource {
	return NewCommandSource("journal", "journalctl", []string{"-u", unit, "-f", "-n", "0", "-o", "short"}, logger)
}

// Name implements LineSource
func (c *CommandSource) Name() string {
	return c.name
}

// Run implements LineSource
func (c *CommandSource) Run(ctx context.Context, out chan<- string) error {
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open %s stdout: %w", c.name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start %s: %v", ErrSourceClosed, c.path, err)
	}
	c.logger.Infow("Log source started", "source", c.name, "command", c.path+" "+strings.Join(c.args, " "))

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		metrics.EventsIngested.WithLabelValues(c.name).Inc()
		if !send(ctx, out, line) {
			break
		}
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if scanErr != nil {
		return fmt.Errorf("%w: reading %s output: %v", ErrSourceClosed, c.name, scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("%w: %s exited: %v", ErrSourceClosed, c.path, waitErr)
	}
	return fmt.Errorf("%w: %s exited", ErrSourceClosed, c.path)
}
