package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, `scan:
  fixtures: [101, 102]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.Timeout != DefaultUpstreamTimeout {
		t.Errorf("upstream.timeout: got %v, want %v", cfg.Upstream.Timeout, DefaultUpstreamTimeout)
	}
	if cfg.Upstream.RateLimitCooldown != DefaultRateLimitCooldown {
		t.Errorf("rate_limit_cooldown: got %v, want %v", cfg.Upstream.RateLimitCooldown, DefaultRateLimitCooldown)
	}
	if cfg.Upstream.Header != DefaultKeyHeader {
		t.Errorf("header: got %q, want %q", cfg.Upstream.Header, DefaultKeyHeader)
	}
	if cfg.Scan.Interval != DefaultScanInterval {
		t.Errorf("scan.interval: got %v, want %v", cfg.Scan.Interval, DefaultScanInterval)
	}
	if cfg.Alerts.HistorySize != DefaultHistorySize {
		t.Errorf("history_size: got %d, want %d", cfg.Alerts.HistorySize, DefaultHistorySize)
	}
	if len(cfg.Scan.Fixtures) != 2 || cfg.Scan.Fixtures[1] != 102 {
		t.Errorf("fixtures: got %v", cfg.Scan.Fixtures)
	}
	if !cfg.Upstream.StatisticsEnabled() {
		t.Error("statistics should default to enabled")
	}
}

func TestLoad_Rules(t *testing.T) {
	p := writeConfig(t, `alerts:
  history_size: 50
  rules:
    - id: danger
      signal: dangerous_attacks
      comparator: ">="
      threshold: 5
    - id: pressure-red
      signal: pressure
      comparator: ">="
      threshold: 70
      policy: cooldown
      cooldown: 2m
      severity: critical
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Alerts.HistorySize != 50 {
		t.Errorf("history_size: got %d, want 50", cfg.Alerts.HistorySize)
	}
	if len(cfg.Alerts.Rules) != 2 {
		t.Fatalf("rules: got %d, want 2", len(cfg.Alerts.Rules))
	}
	r := cfg.Alerts.Rules[0]
	if r.Policy != PolicyRecross || r.Severity != "warning" {
		t.Errorf("rule defaults: got policy=%q severity=%q", r.Policy, r.Severity)
	}
	r = cfg.Alerts.Rules[1]
	if r.Policy != PolicyCooldown || r.Cooldown != 2*time.Minute {
		t.Errorf("rule 2: got policy=%q cooldown=%v", r.Policy, r.Cooldown)
	}
}

func TestUpstreamKey_FromEnv(t *testing.T) {
	t.Setenv("PW_TEST_KEY", "secret")
	p := writeConfig(t, `upstream:
  key_env: PW_TEST_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Upstream.Key(); got != "secret" {
		t.Errorf("Key: got %q, want secret", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad comparator", `alerts:
  rules:
    - {id: a, signal: pressure, comparator: "~", threshold: 1}
`, "comparator"},
		{"duplicate id", `alerts:
  rules:
    - {id: a, signal: pressure, comparator: ">", threshold: 1}
    - {id: a, signal: xg, comparator: ">", threshold: 1}
`, "duplicated"},
		{"cooldown without duration", `alerts:
  rules:
    - {id: a, signal: pressure, comparator: ">", threshold: 1, policy: cooldown}
`, "positive cooldown"},
		{"unknown policy", `alerts:
  rules:
    - {id: a, signal: pressure, comparator: ">", threshold: 1, policy: sometimes}
`, "policy"},
		{"port out of range", "http:\n  port: 70000\n", "http.port"},
		{"zero concurrency", "scan:\n  concurrency: 0\n", "concurrency"},
		{"inverted window", "scan:\n  min_minute: 60\n  max_minute: 30\n", "window"},
		{"bad webhook", "alerts:\n  webhooks:\n    - type: fax\n", "webhooks"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"negative weight", "signals:\n  xg_delta: -1\n", "signals.xg_delta"},
		{"bad yaml", "scan: [\n", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "alerts:\n  rules: []\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, p, func(c *Config) { //nolint:errcheck
		select {
		case got <- c:
		default:
		}
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	updated := `alerts:
  rules:
    - {id: danger, signal: dangerous_attacks, comparator: ">=", threshold: 5}
`
	if err := os.WriteFile(p, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// A truncating write may surface one event for the empty file first.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-got:
			if len(cfg.Alerts.Rules) == 1 && cfg.Alerts.Rules[0].ID == "danger" {
				return
			}
		case <-deadline:
			t.Fatal("onChange not called with the updated rules")
		}
	}
}

func TestWatch_SkipsInvalidAndUnchanged(t *testing.T) {
	base := "alerts:\n  rules: []\n"
	p := writeConfig(t, base)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, p, func(c *Config) { got <- c }) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)

	// Unchanged content, then a file that fails validation.
	for _, content := range []string{base, "scan: {concurrency: -1}\n"} {
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(300 * time.Millisecond)
	}
	select {
	case c := <-got:
		t.Fatalf("onChange called for unchanged or invalid file: %+v", c.Scan)
	default:
	}

	if err := os.WriteFile(p, []byte("scan: {concurrency: 2}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-got:
		if c.Scan.Concurrency != 2 {
			t.Errorf("concurrency = %d, want 2", c.Scan.Concurrency)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onChange not called for the valid update")
	}
}
