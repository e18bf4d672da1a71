// Package cmd provides the tftpwatch command-line interface.
package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	configFile string
	debug      bool
	noColor    bool
	outputJSON bool
)

// NewRootCmd creates the tftpwatch command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tftpwatch",
		Short: "Monitor TFTP transfers and alert on suspicious activity",
		Long: `tftpwatch correlates filesystem close events with tftpd log lines to record
every TFTP transfer, raises alerts for unauthorized clients, critical files and
request floods, and serves a reporting API.

Run the whole pipeline with 'tftpwatch run', or split it across processes with
'monitor', 'alert' and 'dashboard' sharing one SQLite database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newRunCmd(),
		newMonitorCmd(),
		newAlertCmd(),
		newDashboardCmd(),
		newReportCmd(),
		newConfigCmd(),
		newParseCmd(),
	)
	return rootCmd
}
