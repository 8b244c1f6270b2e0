package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sentraguard/internal/bots"
	"sentraguard/internal/detect"
	"sentraguard/internal/shutdown"
)

var botsCmd = &cobra.Command{
	Use:   "bots",
	Short: "Manage detector bots",
}

func botStatusCmd(use string, status bots.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <category>",
		Short: fmt.Sprintf("Set the bot of a detector family to %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := detect.Category(args[0])
			if !category.Valid() {
				return fmt.Errorf("unknown category %q", args[0])
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.bots.EnsureDefaults(cmd.Context(), bots.Defaults()); err != nil {
					return err
				}
				if err := a.bots.SetStatus(cmd.Context(), bots.IDFor(category), status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", bots.IDFor(category), status)
				return nil
			})
		},
	}
}

var botsSensitivityCmd = &cobra.Command{
	Use:   "sensitivity <category> <low|medium|high>",
	Short: "Set the sensitivity of a detector family",
	Long: `Set the sensitivity of a detector family.

high halves the family's minimum event counts, low doubles them and medium
uses the configured thresholds. Windows and confidence scores do not change.
The next scan cycle picks up the new level.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := detect.Category(args[0])
		if !category.Valid() {
			return fmt.Errorf("unknown category %q", args[0])
		}
		level := bots.Sensitivity(args[1])
		if !level.Valid() {
			return fmt.Errorf("unknown sensitivity %q", args[1])
		}
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.bots.EnsureDefaults(cmd.Context(), bots.Defaults()); err != nil {
				return err
			}
			return a.bots.SetSensitivity(cmd.Context(), bots.IDFor(category), level)
		})
	},
}

var emergenciesCmd = &cobra.Command{
	Use:   "emergencies",
	Short: "List recent emergency events",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")
		format, _ := cmd.Flags().GetString("format")
		return withApp(cmd.Context(), func(a *app) error {
			evts, err := a.shutdowns.ListEmergencies(cmd.Context(), time.Now().UTC().Add(-since))
			if err != nil {
				return err
			}
			if format != "table" {
				return encode(cmd.OutOrStdout(), format, evts)
			}
			printEmergencies(cmd, evts)
			return nil
		})
	},
}

func printEmergencies(cmd *cobra.Command, evts []shutdown.EmergencyEvent) {
	w := cmd.OutOrStdout()
	if len(evts) == 0 {
		fmt.Fprintln(w, "no emergency events")
		return
	}
	now := time.Now()
	for _, e := range evts {
		state := "open"
		if e.ResolvedAt != nil {
			state = "resolved " + humanize.RelTime(*e.ResolvedAt, now, "ago", "from now")
		}
		kind := "recorded"
		if e.AutoShutdown {
			kind = "auto shutdown"
		} else if e.ShutdownID != nil {
			kind = "manual shutdown"
		}
		fmt.Fprintf(w, "%s  %-24s %-9s %-18s %-15s %s\n",
			humanize.Time(e.CreatedAt), e.ThreatType, e.Severity, e.TriggerSource, kind, state)
	}
}

func init() {
	botsCmd.AddCommand(
		botStatusCmd("enable", bots.StatusActive),
		botStatusCmd("disable", bots.StatusDisabled),
		botsSensitivityCmd,
	)
	emergenciesCmd.Flags().Duration("since", 24*time.Hour, "how far back to list")
	emergenciesCmd.Flags().String("format", "table", "Output format (table, json, yaml)")
}
