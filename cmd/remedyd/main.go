// Package main is the entry point for the remediation engine daemon.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "remedyd",
	Short: "Intent remediation orchestration engine",
	Long: `remedyd turns business-metric regressions into governed remediation:
it diagnoses an intent, proposes fix plans, simulates them, and rolls the
winning plan out step by step under guardrails, rolling back on breach.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("remedyd %s (commit=%s, built=%s)\n", version, commit, date)
	},
}
