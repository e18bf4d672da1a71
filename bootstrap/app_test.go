package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tftpwatch/config"
	"tftpwatch/core"
	"tftpwatch/ingest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedLines struct {
	lines []string
	err   error
}

func (s *scriptedLines) Name() string { return "scripted-lines" }

func (s *scriptedLines) Run(ctx context.Context, out chan<- string) error {
	for _, line := range s.lines {
		select {
		case out <- line:
		case <-ctx.Done():
			return nil
		}
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

type scriptedCloses struct {
	events []core.CloseEvent
}

func (s *scriptedCloses) Name() string { return "scripted-closes" }

func (s *scriptedCloses) Run(ctx context.Context, out chan<- core.CloseEvent) error {
	for _, ev := range s.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "tftp")
	require.NoError(t, os.MkdirAll(root, 0755))

	body := fmt.Sprintf(`
tftp:
  root_directory: %s
  grace_period: 300ms
  tick_interval: 50ms
sources:
  log:
    mode: file
    file_path: %s
alerts:
  authorized_ips: ["10.0.0.1"]
  check_interval: 100ms
storage:
  sqlite_path: %s
api:
  enabled: false
%s`, root, filepath.Join(dir, "tftpd.log"), filepath.Join(dir, "data", "tftpwatch.db"), extra)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := InitConfig(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	return cfg
}

func TestNewApp_NoComponents(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := NewApp(context.Background(), cfg, Components{}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestNewApp_BuildsSelectedComponents(t *testing.T) {
	cfg := testConfig(t, "")
	app, err := NewApp(context.Background(), cfg, Components{Monitor: true, Alerts: true}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer app.Shutdown()

	assert.IsType(t, &ingest.FileSource{}, app.LineSource)
	assert.NotNil(t, app.CloseSource)
	assert.NotNil(t, app.Correlator)
	assert.NotNil(t, app.Detector)
	assert.Nil(t, app.Feed, "stream mode reads records in-process")
	assert.Nil(t, app.Dispatcher, "no sink enabled")
	assert.Nil(t, app.APIServer)
}

func TestNewApp_AlertsOnlyUsesDatabaseFeed(t *testing.T) {
	cfg := testConfig(t, "")
	app, err := NewApp(context.Background(), cfg, Components{Alerts: true}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer app.Shutdown()

	assert.Nil(t, app.Correlator)
	assert.NotNil(t, app.Feed)
	assert.Equal(t, int64(0), app.Feed.LastID())
}

func TestNewApp_SyslogNotices(t *testing.T) {
	cfg := testConfig(t, `
syslog:
  enabled: true
  host: 127.0.0.1
  port: 5514
`)
	app, err := NewApp(context.Background(), cfg, Components{Monitor: true, Alerts: true}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer app.Shutdown()

	require.NotNil(t, app.Dispatcher)
	alertSinks, noticeSinks := app.Dispatcher.Sinks()
	assert.Equal(t, []string{"syslog"}, alertSinks)
	assert.Equal(t, []string{"syslog"}, noticeSinks)
}

func TestApp_RunEndToEnd(t *testing.T) {
	cfg := testConfig(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.TFTP.RootDirectory, "boot.img"), []byte("12345"), 0644))

	app, err := NewApp(context.Background(), cfg, Components{Monitor: true, Alerts: true}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer app.Shutdown()

	app.LineSource = &scriptedLines{lines: []string{
		"Mar 14 10:15:00 tftp-srv in.tftpd[4242]: RRQ from 10.0.0.9 filename boot.img",
	}}
	app.CloseSource = &scriptedCloses{events: []core.CloseEvent{
		{Filename: "boot.img", Kind: core.CloseNoWrite},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	var stored []core.TransferRecord
	require.Eventually(t, func() bool {
		stored, err = app.Storage.Transfers.RecentTransfers(context.Background(), 10)
		return err == nil && len(stored) == 1
	}, 5*time.Second, 50*time.Millisecond)

	rec := stored[0]
	assert.Equal(t, "boot.img", rec.Filename)
	assert.Equal(t, "10.0.0.9", rec.ClientIP)
	assert.Equal(t, core.TransferSuccess, rec.Status)
	require.NotNil(t, rec.Size)
	assert.Equal(t, int64(5), *rec.Size)

	var alerts []*core.Alert
	require.Eventually(t, func() bool {
		alerts, err = app.Storage.Alerts.RecentAlerts(context.Background(), "", 10)
		return err == nil && len(alerts) == 1
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, core.AlertUnauthorizedSource, alerts[0].Kind)
	assert.Equal(t, rec.ID, alerts[0].TransferID)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestApp_SourceFailureStopsRun(t *testing.T) {
	cfg := testConfig(t, "")
	app, err := NewApp(context.Background(), cfg, Components{Monitor: true}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer app.Shutdown()

	app.LineSource = &scriptedLines{err: fmt.Errorf("%w: journalctl exited", ingest.ErrSourceClosed)}
	app.CloseSource = &scriptedCloses{}

	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(context.Background()) }()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, ingest.ErrSourceClosed)
		assert.Contains(t, err.Error(), "log-source")
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not stop after a source failure")
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	cfg := testConfig(t, "")
	app, err := NewApp(context.Background(), cfg, Components{API: true}, zap.NewNop().Sugar())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		app.Shutdown()
		app.Shutdown()
	})
}
