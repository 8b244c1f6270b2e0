package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sentraguard/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withApp(cmd.Context(), func(a *app) error {
			rep := a.scanner.Run(cmd.Context())
			if format != "table" {
				return encode(cmd.OutOrStdout(), format, struct {
					scan.Report `yaml:",inline"`
					Messages    []string `json:"errors,omitempty" yaml:"errors,omitempty"`
				}{rep, rep.Messages()})
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		})
	},
}

func init() {
	scanCmd.Flags().String("format", "table", "Output format (table, json, yaml)")
}

func printReport(w io.Writer, rep scan.Report) {
	fmt.Fprintf(w, "Scan cycle %s\n\n", rep.CycleID)
	fmt.Fprintf(w, "  Bots scanned         : %d\n", rep.BotsScanned)
	fmt.Fprintf(w, "  Indicators           : %s\n", humanize.Comma(int64(rep.Indicators)))
	fmt.Fprintf(w, "  Alerts stored        : %s\n", humanize.Comma(int64(rep.Stored)))
	fmt.Fprintf(w, "  Automatic responses  : %d\n", rep.AutoResponses)
	fmt.Fprintf(w, "  Detector failures    : %d\n", rep.DetectorFailures)
	fmt.Fprintf(w, "  Persistence failures : %d\n", rep.PersistenceFailures)
	fmt.Fprintf(w, "  Duration             : %s\n", rep.Duration)
	if rep.Restored != nil {
		fmt.Fprintf(w, "  Restored shutdown    : %s\n", rep.Restored)
	}
	if len(rep.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, msg := range rep.Messages() {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
}
