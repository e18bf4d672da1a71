package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"tftpwatch/ingest"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// parsedLine is the JSON form of one parse result
type parsedLine struct {
	Line          string `json:"line"`
	Event         string `json:"event"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Direction     string `json:"direction,omitempty"`
	ClientIP      string `json:"client_ip,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [line...]",
		Short: "Run the tftpd log parser on lines from arguments or stdin",
		Long: `Show how each daemon log line is classified: a read/write request, a transfer
error, or ignored. Useful for checking a log format before deploying.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := ingest.NewTFTPDParser(ingest.DefaultMatchTimeout, cliLogger())

			var input io.Reader = cmd.InOrStdin()
			if len(args) > 0 {
				input = strings.NewReader(strings.Join(args, "\n"))
			}

			scanner := bufio.NewScanner(input)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			enc := json.NewEncoder(cmd.OutOrStdout())
			for scanner.Scan() {
				line := scanner.Text()
				if strings.TrimSpace(line) == "" {
					continue
				}
				result := classify(parser, line)
				if outputJSON {
					if err := enc.Encode(result); err != nil {
						return err
					}
					continue
				}
				renderParsed(cmd.OutOrStdout(), result)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output one JSON object per line")
	return cmd
}

func classify(parser ingest.Parser, line string) parsedLine {
	out := parsedLine{Line: line, Event: "ignored"}
	res := parser.Parse(line, time.Now())
	switch {
	case res.Request != nil:
		out.Event = "request"
		out.CorrelationID = res.Request.CorrelationID
		out.Direction = string(res.Request.Direction)
		out.ClientIP = res.Request.ClientIP
		out.Filename = res.Request.Filename
	case res.Error != nil:
		out.Event = "error"
		out.CorrelationID = res.Error.CorrelationID
		out.Reason = res.Error.Reason
	}
	return out
}

func renderParsed(w io.Writer, p parsedLine) {
	switch p.Event {
	case "request":
		successColor.Fprintf(w, "%-8s", "REQUEST")
		fmt.Fprintf(w, " pid=%s %s ip=%s file=%s\n", p.CorrelationID, p.Direction, p.ClientIP, p.Filename)
	case "error":
		errorColor.Fprintf(w, "%-8s", "ERROR")
		fmt.Fprintf(w, " pid=%s reason=%q\n", p.CorrelationID, p.Reason)
	default:
		warningColor.Fprintf(w, "%-8s", "IGNORED")
		fmt.Fprintf(w, " %s\n", truncate(p.Line, 80))
	}
}
