package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"tftpwatch/core"

	"github.com/fatih/color"
)

const tableWidth = 100

// renderReport prints the report as sections of plain tables
func renderReport(w io.Writer, rep *report) {
	headerColor.Fprintf(w, "TFTP TRANSFER REPORT  %s\n", formatTime(rep.GeneratedAt))
	headerColor.Fprintln(w, strings.Repeat("=", tableWidth))

	printSection(w, "Today")
	s := rep.Statistics
	printField(w, "Transfers", fmt.Sprintf("%d", s.TodayTotal))
	printField(w, "Successful", successColor.Sprintf("%d", s.TodaySuccess))
	printField(w, "Failed", formatFailures(s.TodayFailed))
	printField(w, "Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate))
	printField(w, "Active IPs", fmt.Sprintf("%d", s.ActiveIPs))
	printField(w, "All-time transfers", fmt.Sprintf("%d", s.TotalAllTime))
	fmt.Fprintln(w)

	renderTransfersTable(w, rep.Transfers)
	fmt.Fprintln(w)

	printSection(w, "Most requested files")
	if len(rep.TopFiles) == 0 {
		warningColor.Fprintln(w, "  No transfers recorded")
	}
	for i, f := range rep.TopFiles {
		fmt.Fprintf(w, "  %2d. %-60s %d\n", i+1, truncate(f.Filename, 60), f.Count)
	}
	fmt.Fprintln(w)

	renderAlerts(w, rep.AlertsByKind, rep.Alerts)
	headerColor.Fprintln(w, strings.Repeat("=", tableWidth))
}

func renderTransfersTable(w io.Writer, transfers []core.TransferRecord) {
	printSection(w, "Recent transfers")
	if len(transfers) == 0 {
		warningColor.Fprintln(w, "  No transfers recorded")
		return
	}

	fmt.Fprintf(w, "  %-8s %-19s %-9s %-15s %-30s %-10s %s\n",
		"ID", "Time", "Type", "Client", "File", "Size", "Status")
	fmt.Fprintln(w, "  "+strings.Repeat("-", tableWidth-2))
	for _, t := range transfers {
		fmt.Fprintf(w, "  %-8d %-19s %-9s %-15s %-30s %-10s %s\n",
			t.ID, formatTime(t.OccurredAt), t.Direction, t.ClientIP,
			truncate(t.Filename, 30), t.SizeString(), formatStatus(t))
	}
}

func renderAlerts(w io.Writer, byKind map[core.AlertKind]int64, alerts []*core.Alert) {
	printSection(w, "Alerts")
	if len(byKind) == 0 {
		successColor.Fprintln(w, "  No alerts raised")
		return
	}

	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		printField(w, k, fmt.Sprintf("%d", byKind[core.AlertKind(k)]))
	}

	if len(alerts) > 0 {
		fmt.Fprintln(w)
		for _, a := range alerts {
			fmt.Fprintf(w, "  %s  %s  %s\n",
				formatTime(a.RaisedAt), errorColor.Sprintf("%-24s", a.Kind), a.Subject)
		}
	}
	fmt.Fprintln(w)
}

// printSection prints a section header
func printSection(w io.Writer, title string) {
	headerColor.Fprintf(w, "  %s\n", title)
	headerColor.Fprintln(w, "  "+strings.Repeat("─", len(title)))
}

// printField prints a key-value field
func printField(w io.Writer, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-25s %s\n", key+":", value)
}

// formatStatus returns a colored transfer status
func formatStatus(t core.TransferRecord) string {
	if t.Failed() {
		return color.New(color.FgRed).Sprintf("FAILED (%s)", t.FailureReason)
	}
	return color.New(color.FgGreen).Sprint("SUCCESS")
}

func formatFailures(n int64) string {
	if n == 0 {
		return fmt.Sprintf("%d", n)
	}
	return errorColor.Sprintf("%d", n)
}

// formatTime formats a timestamp in local time
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
