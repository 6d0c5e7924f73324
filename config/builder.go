package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"text/template"
	"time"

	"github.com/jpalmerr/eventually"
	"github.com/jpalmerr/eventually/internal/httpprobe"
)

// Target is a resolved HTTP target ready to be probed.
type Target struct {
	// Name identifies the target.
	Name string

	// Request is sent once per attempt.
	Request httpprobe.Request

	// Extract maps each response to a status.
	Extract httpprobe.Extractor

	// Want is the status the target must reach.
	Want httpprobe.Status

	// Wait is the unscaled budget for reaching Want.
	Wait time.Duration
}

// Apply copies the timing knobs into s. Later changes to s are picked up by
// every engine that reads it.
func (c *Config) Apply(s *eventually.Settings) {
	s.SetDebug(c.Debug)
	if c.TimeScale != nil {
		s.SetTimeScale(*c.TimeScale)
	}
	s.SetShortTimeout(c.ShortTimeout.Duration())
	s.SetLongTimeout(c.LongTimeout.Duration())
}

// Build creates an engine configured from cfg, logging to logger, and
// resolves every target and grid into a flat list of [Target] values.
//
// The engine gets private settings, so building several configs in one
// process never mixes their time scales.
func Build(cfg *Config, logger *slog.Logger) (*eventually.Engine, []Target, error) {
	settings := eventually.NewSettings()
	cfg.Apply(settings)

	opts := []eventually.Option{
		eventually.WithSettings(settings),
		eventually.WithPollDelay(cfg.PollDelay.Duration()),
		eventually.WithStaleRetry(cfg.StaleAttempts, cfg.StaleDelay.Duration()),
	}
	if logger != nil {
		opts = append(opts, eventually.WithLogger(logger))
	}

	e, err := eventually.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	targets, err := BuildTargets(cfg)
	if err != nil {
		return nil, nil, err
	}
	return e, targets, nil
}

// BuildTargets converts the parsed targets and grids into [Target] values.
// Grid dimensions are expanded via cartesian product.
func BuildTargets(cfg *Config) ([]Target, error) {
	var targets []Target

	for _, tc := range cfg.Targets {
		t, err := buildTarget(cfg, tc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	for _, gc := range cfg.Grids {
		gridTargets, err := buildGridTargets(cfg, gc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, gridTargets...)
	}

	return targets, nil
}

func buildTarget(cfg *Config, tc TargetConfig) (Target, error) {
	extract, err := httpprobe.ParseExtractor(tc.Expect)
	if err != nil {
		return Target{}, fmt.Errorf("target (%s): %w", tc.Name, err)
	}

	want := httpprobe.StatusUp
	if tc.Status != "" {
		if want, err = httpprobe.ParseStatus(tc.Status); err != nil {
			return Target{}, fmt.Errorf("target (%s): %w", tc.Name, err)
		}
	}

	timeout := tc.Timeout.Duration()
	if timeout == 0 {
		timeout = defaultTargetTimeout
	}
	wait := tc.Wait.Duration()
	if wait == 0 {
		wait = cfg.LongTimeout.Duration()
	}

	return Target{
		Name: tc.Name,
		Request: httpprobe.Request{
			Method:  tc.Method,
			URL:     tc.URL,
			Headers: tc.Headers,
			Timeout: timeout,
		},
		Extract: extract,
		Want:    want,
		Wait:    wait,
	}, nil
}

// buildGridTargets expands a GridConfig into one target per combination.
func buildGridTargets(cfg *Config, gc GridConfig) ([]Target, error) {
	// missingkey=error fails fast on template variables no dimension defines
	tmpl, err := template.New("url").Option("missingkey=error").Parse(gc.URLTemplate)
	if err != nil {
		return nil, err
	}

	var targets []Target
	for _, combo := range cartesianProduct(gc.Dimensions) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, combo); err != nil {
			return nil, fmt.Errorf("grid (%s) with dimensions %v: template execution failed: %w", gc.Name, combo, err)
		}
		if err := validateURL(buf.String()); err != nil {
			return nil, fmt.Errorf("grid (%s) with dimensions %v: %w", gc.Name, combo, err)
		}

		t, err := buildTarget(cfg, TargetConfig{
			Name:    buildGridName(gc.Name, combo),
			URL:     buf.String(),
			Method:  gc.Method,
			Timeout: gc.Timeout,
			Wait:    gc.Wait,
			Headers: gc.Headers,
			Expect:  gc.Expect,
			Status:  gc.Status,
		})
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	return targets, nil
}

// buildGridName appends the combination's values, in key order, to the base name.
func buildGridName(baseName string, combo map[string]string) string {
	name := baseName
	for _, k := range sortedKeys(combo) {
		name += " " + combo[k]
	}
	return name
}

// cartesianProduct generates all combinations of dimension values, in a
// deterministic order.
func cartesianProduct(dimensions map[string][]string) []map[string]string {
	if len(dimensions) == 0 {
		return nil
	}

	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []map[string]string{{}}
	for _, key := range keys {
		var next []map[string]string
		for _, combo := range result {
			for _, val := range dimensions[key] {
				c := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					c[k] = v
				}
				c[key] = val
				next = append(next, c)
			}
		}
		result = next
	}

	return result
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
