package main

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "sentraguard",
	Short: "Threat detection and emergency response engine",
	Long: `Sentraguard scans the security event log with four detector families,
stores alerts for what it finds and enters a self-healing partial shutdown
when an emergency is detected.

Configuration is read from SENTRAGUARD_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, scanCmd, statusCmd, shutdownCmd, restoreCmd, botsCmd, emergenciesCmd)
}
