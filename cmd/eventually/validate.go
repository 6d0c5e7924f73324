package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/eventually/config"
)

// validateCmd validates a config file without probing anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an eventually configuration file without probing any target.

This command parses the YAML, applies environment overrides, expands
environment variables, and validates all fields.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  eventually validate -c eventually.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Targets)
	fromGrids := 0
	for _, g := range cfg.Grids {
		size := 1
		for _, vals := range g.Dimensions {
			size *= len(vals)
		}
		fromGrids += size
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Debug:          %t\n", cfg.Debug)
	fmt.Fprintf(out, "  Time scale:     %g\n", *cfg.TimeScale)
	fmt.Fprintf(out, "  Timeouts:       short %s, long %s\n", cfg.ShortTimeout.Duration(), cfg.LongTimeout.Duration())
	fmt.Fprintf(out, "  Poll delay:     %s\n", cfg.PollDelay.Duration())
	fmt.Fprintf(out, "  Parallel width: %d\n", cfg.ParallelWidth)
	fmt.Fprintf(out, "  Targets:        %d direct + %d from grids = %d total\n",
		direct, fromGrids, direct+fromGrids)

	return nil
}
