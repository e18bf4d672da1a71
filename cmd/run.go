package cmd

import (
	"fmt"

	"tftpwatch/bootstrap"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor, the anomaly engine and the reporting API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComponents(cmd, bootstrap.AllComponents())
		},
	}
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Correlate TFTP transfers and store them",
		Long: `Watch the TFTP root and the daemon log, finalize transfers and store them in
SQLite. Transfer notices go to syslog when syslog is enabled. With
alerts.source=stream the anomaly engine also runs in this process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComponents(cmd, bootstrap.Components{Monitor: true, Alerts: true})
		},
	}
}

func newAlertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alert",
		Short: "Evaluate stored transfers and send alerts",
		Long: `Poll the transfer table for rows added after startup, evaluate them against
the anomaly rules and deliver alerts to the configured sinks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComponents(cmd, bootstrap.Components{Alerts: true})
		},
	}
}

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the reporting API and live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComponents(cmd, bootstrap.Components{API: true})
		},
	}
}

// runComponents builds the app and blocks until SIGINT/SIGTERM or a
// component failure
func runComponents(cmd *cobra.Command, comps bootstrap.Components) error {
	logger, sugar, err := bootstrap.InitLogger(debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	sugar.Infow("tftpwatch starting", "command", cmd.Name())

	cfg, err := bootstrap.InitConfig(configFile, sugar)
	if err != nil {
		return err
	}

	ctx, stop := bootstrap.WaitForShutdown(cmd.Context())
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg, comps, sugar)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Shutdown()

	return app.Run(ctx)
}
