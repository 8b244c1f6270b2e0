package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sentraguard/internal/scan"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bots, recent alerts and the shutdown state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withApp(cmd.Context(), func(a *app) error {
			st, err := a.scanner.Status(cmd.Context())
			if err != nil {
				return err
			}
			if format != "table" {
				return encode(cmd.OutOrStdout(), format, st)
			}
			printStatus(cmd.OutOrStdout(), st, time.Now())
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().String("format", "table", "Output format (table, json, yaml)")
}

func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown format %q", format)
}

func printStatus(w io.Writer, st *scan.Status, now time.Time) {
	fmt.Fprintf(w, "Sentraguard Status - %s\n\n", st.GeneratedAt.Local().Format("2006-01-02 15:04:05"))

	fmt.Fprintf(w, "State: %s\n", st.State)
	if s := st.Shutdown; s != nil {
		fmt.Fprintf(w, "  Level        : %s\n", s.Level)
		fmt.Fprintf(w, "  Reason       : %s\n", s.Reason)
		fmt.Fprintf(w, "  Triggered by : %s (%s)\n", s.TriggeredBy, humanize.RelTime(s.TriggeredAt, now, "ago", "from now"))
		if s.AutoRestoreAt != nil {
			fmt.Fprintf(w, "  Auto restore : %s\n", humanize.RelTime(*s.AutoRestoreAt, now, "ago", "from now"))
		} else {
			fmt.Fprintln(w, "  Auto restore : manual restore required")
		}
	}

	fmt.Fprintln(w, "\nBots:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tCATEGORY\tSTATUS\tSCANS\tALERTS\tLAST ACTIVITY\tUPTIME")
	for _, b := range st.Bots {
		last := "never"
		if b.LastActivity != nil {
			last = humanize.RelTime(*b.LastActivity, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.Name, b.Category, b.Status,
			humanize.Comma(b.ScansCompleted), humanize.Comma(b.AlertsGenerated),
			last, b.Uptime(now).Truncate(time.Second))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nAlerts (last hour): %d\n", len(st.RecentAlerts))
	if len(st.RecentAlerts) == 0 {
		return
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  WHEN\tSEVERITY\tTYPE\tCONFIDENCE\tREVIEW\tAUTO RESPONSE")
	for _, al := range st.RecentAlerts {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d%%\t%t\t%t\n",
			humanize.RelTime(al.CreatedAt, now, "ago", "from now"), al.Severity, al.ThreatType,
			al.ConfidenceScore, al.RequiresHumanReview, al.AutoResponseTaken)
	}
	tw.Flush()
}
