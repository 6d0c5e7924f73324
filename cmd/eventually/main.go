// Package main is the entry point for the eventually CLI.
//
// The CLI waits for HTTP targets to reach an expected status, using the
// same polling engine tests use, so a CI job can block until its services
// are ready instead of sleeping.
//
// Usage:
//
//	eventually wait -c targets.yaml     # Wait until every target is ready
//	eventually validate -c targets.yaml # Validate configuration
//	eventually version                  # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "eventually",
	Short: "Wait for eventually-consistent services",
	Long: `eventually polls HTTP targets until each reaches its expected status,
tolerating connection errors and slow starts along the way.

Quick start:
  1. Create a config file (eventually.yaml)
  2. Run: eventually wait -c eventually.yaml

Example config:
  time_scale: 1
  long_timeout: 1m
  targets:
    - name: API
      url: http://localhost:8080/health
      expect: json:status

Set EVENTUALLY_TIME_SCALE to stretch every timeout on slow machines, or
EVENTUALLY_DEBUG=true to wait forever while debugging.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this eventually binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "eventually %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
