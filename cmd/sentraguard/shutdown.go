package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentraguard/internal/shutdown"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Manually enter a partial or complete shutdown",
	Long: `Shutdown is restricted to super_admin, admin and security_admin users; the
actor's role is read from the user store on every call. A partial shutdown
restores itself after --restore-after (default SENTRAGUARD_AUTO_RESTORE).
A complete shutdown stays until restored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		level, _ := cmd.Flags().GetString("level")
		reason, _ := cmd.Flags().GetString("reason")
		after, _ := cmd.Flags().GetDuration("restore-after")
		return withApp(cmd.Context(), func(a *app) error {
			st, err := a.machine.RequestShutdown(cmd.Context(), shutdown.Request{
				Level:        shutdown.Level(level),
				Reason:       reason,
				TriggeredBy:  actor,
				RestoreAfter: after,
			})
			if st == nil {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s entered by %s (id %s)\n", st.State(), st.TriggeredBy, st.ID)
			if st.AutoRestoreAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "auto restore at %s\n", st.AutoRestoreAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Return the platform to operational",
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		return withApp(cmd.Context(), func(a *app) error {
			st, err := a.machine.Restore(cmd.Context(), actor)
			if err != nil {
				return err
			}
			if st == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "already operational")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s shutdown %s\n", st.Level, st.ID)
			return nil
		})
	},
}

func init() {
	shutdownCmd.Flags().String("actor", "", "username requesting the shutdown")
	shutdownCmd.Flags().String("level", string(shutdown.LevelPartial), "shutdown level (partial, complete)")
	shutdownCmd.Flags().String("reason", "", "reason recorded with the shutdown")
	shutdownCmd.Flags().Duration("restore-after", 0, "auto restore window for a partial shutdown")
	_ = shutdownCmd.MarkFlagRequired("actor")
	_ = shutdownCmd.MarkFlagRequired("reason")

	restoreCmd.Flags().String("actor", "", "username restoring the platform")
	_ = restoreCmd.MarkFlagRequired("actor")
}
