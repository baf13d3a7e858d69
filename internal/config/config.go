package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBaseURL           = "https://v3.football.api-sports.io"
	DefaultKeyHeader         = "x-apisports-key"
	DefaultUpstreamTimeout   = 15 * time.Second
	DefaultRateLimitCooldown = 60 * time.Second
	DefaultRequestsPerMinute = 30

	DefaultScanInterval  = 12 * time.Second
	DefaultConcurrency   = 4
	DefaultMinMinute     = 8
	DefaultMaxMinute     = 90
	DefaultTerminalGrace = 10 * time.Minute

	DefaultHistorySize    = 200
	DefaultHTTPPort       = 8080
	DefaultStreamInterval = 5 * time.Second
	DefaultRedisStream    = "pitchwatch.alerts"
)

// Fire policies for threshold rules.
const (
	PolicyRecross  = "recross"
	PolicyCooldown = "cooldown"
)

// Config is the top-level configuration parsed from config.yaml.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Scan     ScanConfig     `yaml:"scan"`
	Signals  SignalWeights  `yaml:"signals"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	HTTP     HTTPConfig     `yaml:"http"`
	Stream   StreamConfig   `yaml:"stream"`
	Log      LogConfig      `yaml:"log"`
}

// UpstreamConfig describes how to reach the fixture provider.
type UpstreamConfig struct {
	// BaseURL is the provider root, e.g. https://v3.football.api-sports.io.
	BaseURL string `yaml:"base_url"`

	// KeyEnv is the name of the environment variable that holds the API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the request header the key is sent in (default x-apisports-key).
	Header string `yaml:"header"`

	// Timeout bounds every upstream request. Default: 15s.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimitCooldown is how long all upstream calls are suspended after
	// the provider answers HTTP 429. Default: 60s.
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`

	// RequestsPerMinute paces outgoing requests. Zero disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Statistics enables the per-fixture statistics request that supplies
	// dangerous attacks, shots on target and xG.
	Statistics *bool `yaml:"statistics"`
}

// Key returns the API key resolved from the environment.
func (u UpstreamConfig) Key() string {
	if u.KeyEnv == "" {
		return ""
	}
	return os.Getenv(u.KeyEnv)
}

// StatisticsEnabled reports whether the statistics request is made. Defaults to true.
func (u UpstreamConfig) StatisticsEnabled() bool {
	return u.Statistics == nil || *u.Statistics
}

// ScanConfig controls which fixtures are scanned and how often.
type ScanConfig struct {
	// Interval between automatic scans. Default: 12s.
	Interval time.Duration `yaml:"interval"`

	// Fixtures is the explicit set of fixture ids to monitor.
	Fixtures []int64 `yaml:"fixtures"`

	// DiscoverLive asks the provider for all live fixtures when Fixtures is empty.
	DiscoverLive bool `yaml:"discover_live"`

	// Concurrency bounds the number of fixtures fetched in parallel.
	Concurrency int `yaml:"concurrency"`

	// MinMinute and MaxMinute bound the match minutes in which alerts are evaluated.
	MinMinute int `yaml:"min_minute"`
	MaxMinute int `yaml:"max_minute"`

	// TerminalGrace is how long a finished fixture stays visible before it is dropped.
	TerminalGrace time.Duration `yaml:"terminal_grace"`
}

// SignalWeights tunes the pressure index. Unset weights take the defaults
// from the signal package; a weight of 0 turns its term off. Zero level
// thresholds take the defaults.
type SignalWeights struct {
	AttackRate   *float64 `yaml:"attack_rate"`
	DangerDelta  *float64 `yaml:"danger_delta"`
	ShotsOTDelta *float64 `yaml:"shots_on_target_delta"`
	XGDelta      *float64 `yaml:"xg_delta"`
	YellowAt     float64  `yaml:"yellow_at"`
	RedAt        float64  `yaml:"red_at"`
}

// AlertsConfig holds alert rules, history size and delivery targets.
type AlertsConfig struct {
	// HistorySize is the capacity of the in-memory alert ring. Default: 200.
	HistorySize int `yaml:"history_size"`

	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Telegram TelegramConfig  `yaml:"telegram"`
	Redis    RedisConfig     `yaml:"redis"`
}

// AlertRule defines one threshold rule.
type AlertRule struct {
	// ID is the rule identifier and half of the alert dedup key.
	ID string `yaml:"id"`

	// Signal names the snapshot signal the rule reads, e.g. "dangerous_attacks".
	Signal string `yaml:"signal"`

	// Comparator is one of: > >= < <= ==.
	Comparator string `yaml:"comparator"`

	Threshold float64 `yaml:"threshold"`

	// Cooldown is the minimum time between fires under the cooldown policy.
	Cooldown time.Duration `yaml:"cooldown"`

	// Policy is recross (default) or cooldown.
	Policy string `yaml:"policy"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// MinElapsed suppresses the rule before this match minute.
	MinElapsed int `yaml:"min_elapsed"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// TelegramConfig enables alert delivery to a Telegram chat.
type TelegramConfig struct {
	TokenEnv  string `yaml:"token_env"`
	ChatIDEnv string `yaml:"chat_id_env"`
}

// Token returns the bot token resolved from the environment.
func (t TelegramConfig) Token() string {
	if t.TokenEnv == "" {
		return ""
	}
	return os.Getenv(t.TokenEnv)
}

// ChatID returns the target chat id resolved from the environment.
func (t TelegramConfig) ChatID() string {
	if t.ChatIDEnv == "" {
		return ""
	}
	return os.Getenv(t.ChatIDEnv)
}

// RedisConfig enables publishing alerts to a Redis stream.
type RedisConfig struct {
	// Addr is host:port. Empty disables the publisher.
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	Stream      string `yaml:"stream"`
}

// Password returns the Redis password resolved from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// HTTPConfig controls the REST API listener.
type HTTPConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StreamConfig controls the WebSocket push interval.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// Load reads and parses the YAML config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyRuleDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:           DefaultBaseURL,
			KeyEnv:            "API_FOOTBALL_KEY",
			Header:            DefaultKeyHeader,
			Timeout:           DefaultUpstreamTimeout,
			RateLimitCooldown: DefaultRateLimitCooldown,
			RequestsPerMinute: DefaultRequestsPerMinute,
		},
		Scan: ScanConfig{
			Interval:      DefaultScanInterval,
			Concurrency:   DefaultConcurrency,
			MinMinute:     DefaultMinMinute,
			MaxMinute:     DefaultMaxMinute,
			TerminalGrace: DefaultTerminalGrace,
		},
		Alerts: AlertsConfig{
			HistorySize: DefaultHistorySize,
			Redis:       RedisConfig{Stream: DefaultRedisStream},
		},
		HTTP:   HTTPConfig{Port: DefaultHTTPPort},
		Stream: StreamConfig{Interval: DefaultStreamInterval},
		Log:    LogConfig{Level: "info"},
	}
}

func applyRuleDefaults(cfg *Config) {
	for i := range cfg.Alerts.Rules {
		r := &cfg.Alerts.Rules[i]
		if r.Policy == "" {
			r.Policy = PolicyRecross
		}
		if r.Severity == "" {
			r.Severity = "warning"
		}
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if cfg.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.Upstream.RateLimitCooldown < 0 {
		return fmt.Errorf("upstream.rate_limit_cooldown must not be negative")
	}
	if cfg.Upstream.RequestsPerMinute < 0 {
		return fmt.Errorf("upstream.requests_per_minute must not be negative")
	}
	if cfg.Scan.Interval <= 0 {
		return fmt.Errorf("scan.interval must be positive")
	}
	if cfg.Scan.Concurrency < 1 {
		return fmt.Errorf("scan.concurrency must be at least 1")
	}
	if cfg.Scan.MinMinute < 0 || cfg.Scan.MaxMinute < cfg.Scan.MinMinute {
		return fmt.Errorf("scan minute window [%d, %d] is invalid", cfg.Scan.MinMinute, cfg.Scan.MaxMinute)
	}
	for name, w := range map[string]*float64{
		"attack_rate":           cfg.Signals.AttackRate,
		"danger_delta":          cfg.Signals.DangerDelta,
		"shots_on_target_delta": cfg.Signals.ShotsOTDelta,
		"xg_delta":              cfg.Signals.XGDelta,
	} {
		if w != nil && *w < 0 {
			return fmt.Errorf("signals.%s must not be negative", name)
		}
	}
	if cfg.Alerts.HistorySize < 1 {
		return fmt.Errorf("alerts.history_size must be at least 1")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range [1, 65535]", cfg.HTTP.Port)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}

	seen := make(map[string]bool, len(cfg.Alerts.Rules))
	for i, r := range cfg.Alerts.Rules {
		if r.ID == "" {
			return fmt.Errorf("alerts.rules[%d].id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("alerts.rules[%d].id %q is duplicated", i, r.ID)
		}
		seen[r.ID] = true
		if r.Signal == "" {
			return fmt.Errorf("alerts.rules[%d] (%s): signal is required", i, r.ID)
		}
		switch r.Comparator {
		case ">", ">=", "<", "<=", "==":
		default:
			return fmt.Errorf("alerts.rules[%d] (%s): comparator %q unknown", i, r.ID, r.Comparator)
		}
		switch r.Policy {
		case PolicyRecross:
		case PolicyCooldown:
			if r.Cooldown <= 0 {
				return fmt.Errorf("alerts.rules[%d] (%s): cooldown policy needs a positive cooldown", i, r.ID)
			}
		default:
			return fmt.Errorf("alerts.rules[%d] (%s): policy %q unknown: want recross|cooldown", i, r.ID, r.Policy)
		}
	}

	for i, wh := range cfg.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, wh.Type)
		}
	}
	return nil
}
