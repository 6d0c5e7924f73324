// Package config provides YAML configuration for the eventually command.
//
// A configuration file sets the engine's timing knobs and lists the HTTP
// targets the wait command checks.
//
// Example configuration:
//
//	time_scale: 2
//	long_timeout: 1m
//
//	targets:
//	  - name: API
//	    url: http://localhost:8080/health
//	    expect: json:status
//
//	grids:
//	  - name: Shard
//	    url_template: "http://{{.shard}}.db.internal:9000/ready"
//	    dimensions:
//	      shard: [a, b, c]
//	    expect: contains:ready
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/eventually/internal/httpprobe"
)

// Environment variables that override the file, so a CI job can slow
// everything down or a developer can pause in a debugger without editing it.
const (
	EnvDebug     = "EVENTUALLY_DEBUG"
	EnvTimeScale = "EVENTUALLY_TIME_SCALE"
)

const (
	defaultShortTimeout  = 5 * time.Second
	defaultLongTimeout   = 30 * time.Second
	defaultPollDelay     = 250 * time.Millisecond
	defaultStaleAttempts = 3
	defaultStaleDelay    = 100 * time.Millisecond
	defaultParallelWidth = 4
	defaultTargetTimeout = 10 * time.Second
)

// Config is the root configuration structure.
//
// It maps directly to the YAML file. Use [Load] or [Parse] to create one.
type Config struct {
	// Debug makes every timeout unbounded.
	Debug bool `yaml:"debug"`

	// TimeScale multiplies every timeout and delay. Defaults to 1.
	// A scale of 0 makes every wait a single attempt.
	TimeScale *float64 `yaml:"time_scale"`

	// ShortTimeout and LongTimeout are the budgets behind AssertThatSoon and
	// AssertThatLater. Default to 5s and 30s.
	ShortTimeout Duration `yaml:"short_timeout"`
	LongTimeout  Duration `yaml:"long_timeout"`

	// PollDelay is the pause between probe attempts. Defaults to 250ms.
	PollDelay Duration `yaml:"poll_delay"`

	// StaleAttempts and StaleDelay configure stale-reference retries.
	// Default to 3 attempts 100ms apart.
	StaleAttempts int      `yaml:"stale_attempts"`
	StaleDelay    Duration `yaml:"stale_delay"`

	// ParallelWidth is how many targets are checked at once. Defaults to 4.
	ParallelWidth int `yaml:"parallel_width"`

	// Targets are individual HTTP targets.
	Targets []TargetConfig `yaml:"targets"`

	// Grids define targets that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// TargetConfig defines one HTTP target.
type TargetConfig struct {
	// Name identifies the target in output and failure messages.
	Name string `yaml:"name"`

	// URL is the endpoint to probe.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout bounds a single request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Wait is how long the target may take to reach Status.
	// Defaults to long_timeout.
	Wait Duration `yaml:"wait"`

	// Headers are sent with each request. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Expect is the extractor shorthand: default, http, json:<path>,
	// contains:<text> or regex:<pattern>.
	Expect string `yaml:"expect"`

	// Status is the status the target must reach. Defaults to up.
	Status string `yaml:"status"`
}

// GridConfig defines targets that expand via cartesian product.
//
// For example, with dimensions {env: [prod, staging], svc: [api, web]},
// the grid expands to 4 targets: prod/api, prod/web, staging/api, staging/web.
type GridConfig struct {
	// Name is the base name for generated targets.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for the target URLs. Dimension keys are
	// available as template variables: {{.env}}, {{.svc}}
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	Method  string            `yaml:"method"`
	Timeout Duration          `yaml:"timeout"`
	Wait    Duration          `yaml:"wait"`
	Headers map[string]string `yaml:"headers"`
	Expect  string            `yaml:"expect"`
	Status  string            `yaml:"status"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part, if present
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Defaults are applied, then the EVENTUALLY_DEBUG and EVENTUALLY_TIME_SCALE
// environment variables override the file, then environment references in
// URLs and header values are expanded and everything is validated.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TimeScale == nil {
		one := 1.0
		c.TimeScale = &one
	}
	if c.ShortTimeout == 0 {
		c.ShortTimeout = Duration(defaultShortTimeout)
	}
	if c.LongTimeout == 0 {
		c.LongTimeout = Duration(defaultLongTimeout)
	}
	if c.PollDelay == 0 {
		c.PollDelay = Duration(defaultPollDelay)
	}
	if c.StaleAttempts == 0 {
		c.StaleAttempts = defaultStaleAttempts
	}
	if c.StaleDelay == 0 {
		c.StaleDelay = Duration(defaultStaleDelay)
	}
	if c.ParallelWidth == 0 {
		c.ParallelWidth = defaultParallelWidth
	}
}

// ApplyEnv overrides Debug and TimeScale from EVENTUALLY_DEBUG and
// EVENTUALLY_TIME_SCALE as reported by lookup (usually os.LookupEnv).
// Unset variables leave the config untouched.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", EnvDebug, v)
		}
		c.Debug = debug
	}
	if v, ok := lookup(EnvTimeScale); ok && v != "" {
		scale, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid number %q", EnvTimeScale, v)
		}
		c.TimeScale = &scale
	}
	return nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if scale := *c.TimeScale; math.IsNaN(scale) || scale < 0 {
		return fmt.Errorf("time_scale must be a non-negative number, got %v", scale)
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"short_timeout", c.ShortTimeout},
		{"long_timeout", c.LongTimeout},
		{"poll_delay", c.PollDelay},
		{"stale_delay", c.StaleDelay},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%s cannot be negative, got %s", d.name, d.d.Duration())
		}
	}

	if c.StaleAttempts < 0 {
		return fmt.Errorf("stale_attempts must be positive, got %d", c.StaleAttempts)
	}
	if c.ParallelWidth < 0 {
		return fmt.Errorf("parallel_width must be positive, got %d", c.ParallelWidth)
	}

	seen := make(map[string]struct{}, len(c.Targets))
	for i := range c.Targets {
		tc := &c.Targets[i]
		ctx := fmt.Sprintf("targets[%d]", i)

		if tc.Name == "" {
			return fmt.Errorf("%s: name is required", ctx)
		}
		ctx = fmt.Sprintf("targets[%d] (%s)", i, tc.Name)

		if _, dup := seen[tc.Name]; dup {
			return fmt.Errorf("%s: duplicate target name", ctx)
		}
		seen[tc.Name] = struct{}{}

		if tc.URL == "" {
			return fmt.Errorf("%s: url is required", ctx)
		}
		expanded, err := expandEnvVars(tc.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", ctx, err)
		}
		tc.URL = expanded

		if err := validateURL(tc.URL); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}

		if err := expandHeaders(tc.Headers); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}

		if err := validateRequest(tc.Method, tc.Timeout, tc.Wait, tc.Expect, tc.Status); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}
		ctx := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", ctx)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", ctx, err)
		}
		g.URLTemplate = expanded

		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", ctx, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", ctx)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", ctx, dimName)
			}
			values := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := values[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", ctx, dimName, v)
				}
				values[v] = struct{}{}
			}
		}

		if err := expandHeaders(g.Headers); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}

		if err := validateRequest(g.Method, g.Timeout, g.Wait, g.Expect, g.Status); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
	}

	if len(c.Targets) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one target or grid must be defined")
	}

	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}
	return nil
}

func expandHeaders(headers map[string]string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		headers[k] = expanded
	}
	return nil
}

func validateRequest(method string, timeout, wait Duration, expect, status string) error {
	switch method {
	case "", "GET", "HEAD", "POST":
	default:
		return errors.New("method must be GET, HEAD, or POST")
	}
	if timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", timeout.Duration())
	}
	if wait < 0 {
		return fmt.Errorf("wait cannot be negative, got %s", wait.Duration())
	}
	if _, err := httpprobe.ParseExtractor(expect); err != nil {
		return err
	}
	if status != "" {
		if _, err := httpprobe.ParseStatus(status); err != nil {
			return err
		}
	}
	return nil
}
