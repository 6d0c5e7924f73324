package config

import (
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
targets:
  - name: Test
    url: https://example.com
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.Debug {
		t.Error("Debug = true, want false")
	}
	if *cfg.TimeScale != 1 {
		t.Errorf("TimeScale = %v, want 1", *cfg.TimeScale)
	}
	if cfg.ShortTimeout.Duration() != 5*time.Second {
		t.Errorf("ShortTimeout = %v, want 5s", cfg.ShortTimeout.Duration())
	}
	if cfg.LongTimeout.Duration() != 30*time.Second {
		t.Errorf("LongTimeout = %v, want 30s", cfg.LongTimeout.Duration())
	}
	if cfg.PollDelay.Duration() != 250*time.Millisecond {
		t.Errorf("PollDelay = %v, want 250ms", cfg.PollDelay.Duration())
	}
	if cfg.StaleAttempts != 3 {
		t.Errorf("StaleAttempts = %d, want 3", cfg.StaleAttempts)
	}
	if cfg.StaleDelay.Duration() != 100*time.Millisecond {
		t.Errorf("StaleDelay = %v, want 100ms", cfg.StaleDelay.Duration())
	}
	if cfg.ParallelWidth != 4 {
		t.Errorf("ParallelWidth = %d, want 4", cfg.ParallelWidth)
	}
	if len(cfg.Targets) != 1 {
		t.Errorf("len(Targets) = %d, want 1", len(cfg.Targets))
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
debug: true
time_scale: 2.5
short_timeout: 2s
long_timeout: 1m
poll_delay: 50ms
stale_attempts: 5
stale_delay: 10ms
parallel_width: 8

targets:
  - name: API
    url: https://api.example.com/health
    method: POST
    timeout: 3s
    wait: 20s
    headers:
      Authorization: Bearer token123
    expect: json:data.status
    status: degraded
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if *cfg.TimeScale != 2.5 {
		t.Errorf("TimeScale = %v, want 2.5", *cfg.TimeScale)
	}
	if cfg.ShortTimeout.Duration() != 2*time.Second {
		t.Errorf("ShortTimeout = %v, want 2s", cfg.ShortTimeout.Duration())
	}
	if cfg.LongTimeout.Duration() != time.Minute {
		t.Errorf("LongTimeout = %v, want 1m", cfg.LongTimeout.Duration())
	}
	if cfg.PollDelay.Duration() != 50*time.Millisecond {
		t.Errorf("PollDelay = %v, want 50ms", cfg.PollDelay.Duration())
	}
	if cfg.StaleAttempts != 5 {
		t.Errorf("StaleAttempts = %d, want 5", cfg.StaleAttempts)
	}
	if cfg.ParallelWidth != 8 {
		t.Errorf("ParallelWidth = %d, want 8", cfg.ParallelWidth)
	}

	tc := cfg.Targets[0]
	if tc.Method != "POST" {
		t.Errorf("Method = %q, want POST", tc.Method)
	}
	if tc.Timeout.Duration() != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", tc.Timeout.Duration())
	}
	if tc.Wait.Duration() != 20*time.Second {
		t.Errorf("Wait = %v, want 20s", tc.Wait.Duration())
	}
	if tc.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("Headers[Authorization] = %q", tc.Headers["Authorization"])
	}
	if tc.Expect != "json:data.status" {
		t.Errorf("Expect = %q, want json:data.status", tc.Expect)
	}
	if tc.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", tc.Status)
	}
}

// TestParse_ZeroTimeScale verifies an explicit zero is kept rather than
// replaced by the default.
func TestParse_ZeroTimeScale(t *testing.T) {
	yaml := `
time_scale: 0
targets:
  - name: Test
    url: https://example.com
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if *cfg.TimeScale != 0 {
		t.Errorf("TimeScale = %v, want 0", *cfg.TimeScale)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvTimeScale, "3")

	yaml := `
debug: false
time_scale: 1
targets:
  - name: Test
    url: https://example.com
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true from environment")
	}
	if *cfg.TimeScale != 3 {
		t.Errorf("TimeScale = %v, want 3 from environment", *cfg.TimeScale)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantDebug bool
		wantScale float64
		wantErr   string
	}{
		{name: "nothing set", env: nil, wantScale: 1},
		{name: "empty values ignored", env: map[string]string{EnvDebug: "", EnvTimeScale: ""}, wantScale: 1},
		{name: "debug 1", env: map[string]string{EnvDebug: "1"}, wantDebug: true, wantScale: 1},
		{name: "fractional scale", env: map[string]string{EnvTimeScale: "0.5"}, wantScale: 0.5},
		{name: "bad debug", env: map[string]string{EnvDebug: "yes please"}, wantErr: EnvDebug},
		{name: "bad scale", env: map[string]string{EnvTimeScale: "fast"}, wantErr: EnvTimeScale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			one := 1.0
			cfg := &Config{TimeScale: &one}
			err := cfg.ApplyEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ApplyEnv() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnv() error = %v", err)
			}
			if cfg.Debug != tt.wantDebug {
				t.Errorf("Debug = %v, want %v", cfg.Debug, tt.wantDebug)
			}
			if *cfg.TimeScale != tt.wantScale {
				t.Errorf("TimeScale = %v, want %v", *cfg.TimeScale, tt.wantScale)
			}
		})
	}
}

func TestParse_GridConfig(t *testing.T) {
	yaml := `
grids:
  - name: Platform
    url_template: "https://{{.env}}.example.com/{{.svc}}/health"
    dimensions:
      env: [prod, staging]
      svc: [api, web]
    timeout: 2s
    expect: contains:ok
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cfg.Grids) != 1 {
		t.Fatalf("len(Grids) = %d, want 1", len(cfg.Grids))
	}
	g := cfg.Grids[0]
	if len(g.Dimensions["env"]) != 2 || len(g.Dimensions["svc"]) != 2 {
		t.Errorf("Dimensions = %v", g.Dimensions)
	}
	if g.Expect != "contains:ok" {
		t.Errorf("Expect = %q, want contains:ok", g.Expect)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_API_HOST", "api.example.com")
	t.Setenv("TEST_TOKEN", "secret123")

	yaml := `
targets:
  - name: API
    url: https://${TEST_API_HOST}/health
    headers:
      Authorization: Bearer ${TEST_TOKEN}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tc := cfg.Targets[0]
	if tc.URL != "https://api.example.com/health" {
		t.Errorf("URL = %q, want https://api.example.com/health", tc.URL)
	}
	if tc.Headers["Authorization"] != "Bearer secret123" {
		t.Errorf("Headers[Authorization] = %q, want Bearer secret123", tc.Headers["Authorization"])
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
targets:
  - name: API
    url: https://${EVENTUALLY_TEST_NOT_SET_12345}/health
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for missing environment variable")
	}
	if !strings.Contains(err.Error(), "EVENTUALLY_TEST_NOT_SET_12345") {
		t.Errorf("error %q should name the missing variable", err.Error())
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no targets",
			yaml:    `time_scale: 2`,
			wantErr: "at least one target or grid",
		},
		{
			name: "negative time scale",
			yaml: `
time_scale: -1
targets: [{name: A, url: "https://a.example.com"}]`,
			wantErr: "time_scale must be a non-negative number",
		},
		{
			name: "NaN time scale",
			yaml: `
time_scale: .nan
targets: [{name: A, url: "https://a.example.com"}]`,
			wantErr: "time_scale",
		},
		{
			name: "negative poll delay",
			yaml: `
poll_delay: -1s
targets: [{name: A, url: "https://a.example.com"}]`,
			wantErr: "poll_delay cannot be negative",
		},
		{
			name: "negative stale attempts",
			yaml: `
stale_attempts: -2
targets: [{name: A, url: "https://a.example.com"}]`,
			wantErr: "stale_attempts must be positive",
		},
		{
			name: "negative parallel width",
			yaml: `
parallel_width: -1
targets: [{name: A, url: "https://a.example.com"}]`,
			wantErr: "parallel_width must be positive",
		},
		{
			name:    "target missing name",
			yaml:    `targets: [{url: "https://a.example.com"}]`,
			wantErr: "targets[0]: name is required",
		},
		{
			name:    "target missing url",
			yaml:    `targets: [{name: A}]`,
			wantErr: "targets[0] (A): url is required",
		},
		{
			name:    "target bad scheme",
			yaml:    `targets: [{name: A, url: "ftp://a.example.com"}]`,
			wantErr: "url scheme must be http or https",
		},
		{
			name:    "target no scheme",
			yaml:    `targets: [{name: A, url: "a.example.com"}]`,
			wantErr: "url scheme must be http or https",
		},
		{
			name: "duplicate target name",
			yaml: `
targets:
  - {name: A, url: "https://a.example.com"}
  - {name: A, url: "https://b.example.com"}`,
			wantErr: "targets[1] (A): duplicate target name",
		},
		{
			name:    "bad method",
			yaml:    `targets: [{name: A, url: "https://a.example.com", method: DELETE}]`,
			wantErr: "method must be GET, HEAD, or POST",
		},
		{
			name:    "negative wait",
			yaml:    `targets: [{name: A, url: "https://a.example.com", wait: -5s}]`,
			wantErr: "wait cannot be negative",
		},
		{
			name:    "bad expect",
			yaml:    `targets: [{name: A, url: "https://a.example.com", expect: "xml:status"}]`,
			wantErr: "unknown extractor",
		},
		{
			name:    "bad status",
			yaml:    `targets: [{name: A, url: "https://a.example.com", status: sideways}]`,
			wantErr: "unknown status",
		},
		{
			name:    "grid missing dimensions",
			yaml:    `grids: [{name: G, url_template: "https://{{.x}}.example.com"}]`,
			wantErr: "grids[0] (G): at least one dimension is required",
		},
		{
			name:    "grid invalid template",
			yaml:    `grids: [{name: G, url_template: "https://{{.x", dimensions: {x: [a]}}]`,
			wantErr: "invalid url_template",
		},
		{
			name:    "grid duplicate dimension value",
			yaml:    `grids: [{name: G, url_template: "https://{{.x}}.example.com", dimensions: {x: [a, a]}}]`,
			wantErr: `dimension "x" has duplicate value "a"`,
		},
		{
			name:    "grid empty dimension",
			yaml:    `grids: [{name: G, url_template: "https://{{.x}}.example.com", dimensions: {x: []}}]`,
			wantErr: `dimension "x" has no values`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("targets: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("expected YAML parse error, got %v", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"250ms", 250 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			yaml := "poll_delay: " + tt.input + "\ntargets: [{name: A, url: \"https://a.example.com\"}]"
			cfg, err := Parse([]byte(yaml))
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "invalid duration") {
					t.Errorf("expected invalid duration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.PollDelay.Duration() != tt.want {
				t.Errorf("PollDelay = %v, want %v", cfg.PollDelay.Duration(), tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("EVENTUALLY_TEST_SET", "value")
	t.Setenv("EVENTUALLY_TEST_EMPTY", "")

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "no vars", false},
		{"${EVENTUALLY_TEST_SET}", "value", false},
		{"a-${EVENTUALLY_TEST_SET}-b", "a-value-b", false},
		{"${EVENTUALLY_TEST_EMPTY:-fallback}", "", false},
		{"${EVENTUALLY_TEST_UNSET:-fallback}", "fallback", false},
		{"${EVENTUALLY_TEST_UNSET:-}", "", false},
		{"${EVENTUALLY_TEST_UNSET}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expandEnvVars(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/eventually.yaml")
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("expected read error, got %v", err)
	}
}
