package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/eventually"
	"github.com/jpalmerr/eventually/config"
	"github.com/jpalmerr/eventually/internal/httpprobe"
)

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

// waitCmd blocks until every configured target is ready.
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait until every target reaches its expected status",
	Long: `Wait until every configured target reaches its expected status.

Targets are checked concurrently, at most parallel_width at a time. Each
target is polled until it reports its status or its wait budget runs out;
connection errors and unexpected statuses along the way are retried.

Exit codes:
  0 - Every target is ready
  1 - At least one target never became ready (diagnostics printed)

Example:
  eventually wait -c eventually.yaml
  EVENTUALLY_TIME_SCALE=3 eventually wait -c eventually.yaml --log-level debug`,
	RunE: runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)

	waitCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	waitCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = waitCmd.MarkFlagRequired("config")
}

// targetResult is the outcome of waiting for one target.
type targetResult struct {
	name    string
	status  httpprobe.Status
	elapsed time.Duration
	err     error
}

func runWait(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(cmd.ErrOrStderr(), level)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	e, targets, err := config.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets configured")
	}

	logger.Info("waiting for targets",
		"targets", len(targets),
		"parallel_width", cfg.ParallelWidth,
		"time_scale", e.Settings().TimeScale(),
		"debug", e.Settings().Debug(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := httpprobe.NewClient()
	defer client.Close()

	results, err := waitForTargets(ctx, e, client, targets, cfg.ParallelWidth)
	if err != nil {
		return fmt.Errorf("wait aborted: %w", err)
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %s (%s)\n%s\n", r.name, r.elapsed.Round(time.Millisecond), indent(r.err.Error()))
			continue
		}
		fmt.Fprintf(out, "ok    %s: %s (%s)\n", r.name, r.status, r.elapsed.Round(time.Millisecond))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d targets not ready", failed, len(results))
	}
	logger.Info("all targets ready", "targets", len(results))
	return nil
}

// waitForTargets asserts every target concurrently and collects one result
// per target, in configuration order. A target that never becomes ready is
// reported in its result; only an interruption or a stuck batch aborts.
func waitForTargets(ctx context.Context, e *eventually.Engine, client *httpprobe.Client, targets []config.Target, width int) ([]targetResult, error) {
	// each call may take its target's whole budget plus one in-flight request
	var perCall time.Duration
	for _, t := range targets {
		perCall = max(perCall, t.Wait+t.Request.Timeout)
	}

	return eventually.Parallel(ctx, e, len(targets), width, perCall, func(ctx context.Context, i int) (targetResult, error) {
		t := targets[i]
		start := time.Now()

		status, err := eventually.AssertThat(ctx, e, t.Wait,
			fmt.Sprintf("%s (%s %s) reports %s", t.Name, methodOrGet(t.Request.Method), t.Request.URL, t.Want),
			client.Probe(t.Request, t.Extract),
			eventually.EqualTo(t.Want),
			eventually.Describe("wait for "+t.Name),
		)

		var ie *eventually.InterruptedError
		if errors.As(err, &ie) {
			return targetResult{}, err
		}
		return targetResult{name: t.Name, status: status, elapsed: time.Since(start), err: err}, nil
	})
}

func methodOrGet(method string) string {
	if method == "" {
		return "GET"
	}
	return method
}

func indent(s string) string {
	return "      " + strings.ReplaceAll(s, "\n", "\n      ")
}
