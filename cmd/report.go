package cmd

import (
	"context"
	"fmt"
	"time"

	"tftpwatch/bootstrap"
	"tftpwatch/core"
	"tftpwatch/storage"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const reportTimeout = 30 * time.Second

// report is everything the report command prints
type report struct {
	GeneratedAt  time.Time                `json:"generated_at"`
	Statistics   storage.Statistics       `json:"statistics"`
	Transfers    []core.TransferRecord    `json:"transfers"`
	TopFiles     []storage.FileCount      `json:"top_files"`
	AlertsByKind map[core.AlertKind]int64 `json:"alerts_by_kind"`
	Alerts       []*core.Alert            `json:"alerts"`
}

func newReportCmd() *cobra.Command {
	var limit, topFiles int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print transfer statistics and recent activity from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || topFiles < 1 {
				return fmt.Errorf("--limit and --top must be positive")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), reportTimeout)
			defer cancel()

			sugar := cliLogger()
			cfg, err := bootstrap.InitConfig(configFile, sugar)
			if err != nil {
				return err
			}
			sqlite, err := bootstrap.InitSQLite(cfg, sugar)
			if err != nil {
				return err
			}
			defer sqlite.Close()

			rep, err := buildReport(ctx, storage.NewTransferStorage(sqlite), storage.NewAlertStorage(sqlite), time.Now(), limit, topFiles)
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			renderReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of recent transfers and alerts to show")
	cmd.Flags().IntVar(&topFiles, "top", 5, "Number of most requested files to show")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	return cmd
}

func buildReport(ctx context.Context, transfers *storage.TransferStorage, alerts *storage.AlertStorage, now time.Time, limit, topFiles int) (*report, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	rep := &report{GeneratedAt: now}
	var err error
	if rep.Statistics, err = transfers.Statistics(ctx, dayStart); err != nil {
		return nil, fmt.Errorf("failed to read statistics: %w", err)
	}
	if rep.Transfers, err = transfers.RecentTransfers(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to read transfers: %w", err)
	}
	if rep.TopFiles, err = transfers.TopFiles(ctx, topFiles); err != nil {
		return nil, fmt.Errorf("failed to read top files: %w", err)
	}
	if rep.AlertsByKind, err = alerts.CountAlertsByKind(ctx); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	if rep.Alerts, err = alerts.RecentAlerts(ctx, "", limit); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return rep, nil
}

// cliLogger keeps one-shot commands quiet unless --debug is set
func cliLogger() *zap.SugaredLogger {
	if !debug {
		return zap.NewNop().Sugar()
	}
	_, sugar, _ := bootstrap.InitLogger(true)
	return sugar
}
