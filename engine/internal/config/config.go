package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fleetstats/fleetstats/engine/internal/netstats"
	"github.com/fleetstats/fleetstats/engine/internal/outlier"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
	"github.com/fleetstats/fleetstats/engine/internal/uptime"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort    = 8080
	DefaultRetainRuns  = time.Hour
	DefaultRedisPrefix = "fleetstats:"
	DefaultRedisTTL    = 24 * time.Hour
	DefaultAuthHeader  = "x-api-key"
	DefaultLogLevel    = "info"
)

// Config is the full engine configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Inputs InputsConfig `yaml:"inputs"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Export ExportConfig `yaml:"export"`
	Alerts AlertsConfig `yaml:"alerts"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig holds the statistical thresholds.
type EngineConfig struct {
	// MinSamples is the minimum number of valid samples for a node average.
	// Below 30 a single outage dominates the mean.
	MinSamples int `yaml:"min_samples"`

	// InclusionThreshold is the percentage a node average must exceed to be
	// accumulated into network statistics. It keeps near-dead nodes from
	// dragging the distribution down.
	InclusionThreshold float64 `yaml:"inclusion_threshold"`

	// MinNetworkSamples is the minimum number of accumulated node averages
	// for network statistics to be reported.
	MinNetworkSamples int `yaml:"min_network_samples"`

	HardFloorPct       float64 `yaml:"hard_floor_pct"`
	HighPerformancePct float64 `yaml:"high_performance_pct"`

	// RoleAnalysis enables per-role network series.
	RoleAnalysis bool `yaml:"role_analysis"`

	// Periods and Roles select which history entries are read. An absent
	// roles key means the default roles; an empty list means none.
	Periods []string `yaml:"periods"`
	Roles   []string `yaml:"roles"`

	// Interval triggers a recompute periodically in serve mode. Zero disables
	// periodic runs.
	Interval time.Duration `yaml:"interval"`

	// RetainRuns is how long superseded runs stay readable by run ID.
	RetainRuns time.Duration `yaml:"retain_runs"`
}

// InputsConfig locates the two input datasets.
type InputsConfig struct {
	Snapshots string        `yaml:"snapshots"`
	Histories string        `yaml:"histories"`
	Watch     bool          `yaml:"watch"`
	Debounce  time.Duration `yaml:"debounce"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	HTTPPort int        `yaml:"http_port"`
	Auth     AuthConfig `yaml:"auth"`
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultAuthHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// RedisConfig controls publication of run summaries to Redis.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Address     string        `yaml:"address"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	KeyPrefix   string        `yaml:"key_prefix"`
	TTL         time.Duration `yaml:"ttl"`
}

// Password returns the Redis password resolved from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// ExportConfig controls the Prometheus textfile export. An empty path
// disables it.
type ExportConfig struct {
	Textfile string `yaml:"textfile"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "p50 < 95", "sample_count < 500",
	// "available == false", "missing_history > 100".
	Condition string `yaml:"condition"`

	// Period scopes the rule to one period. Empty evaluates every period.
	Period string `yaml:"period"`

	// Role scopes the rule to one role series. Empty means overall.
	Role string `yaml:"role"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
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

// LogConfig controls the default logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StatOptions converts the engine section into build options.
func (c *Config) StatOptions() statcache.Options {
	e := c.Engine
	return statcache.Options{
		Uptime: uptime.Options{
			MinSamples:         e.MinSamples,
			InclusionThreshold: e.InclusionThreshold,
			ThresholdSet:       true,
			Periods:            e.Periods,
			Roles:              e.Roles,
			RoleAnalysis:       e.RoleAnalysis,
		},
		MinNetworkSamples: e.MinNetworkSamples,
		Classifier: outlier.Classifier{
			HardFloor:       e.HardFloorPct,
			HighPerformance: e.HighPerformancePct,
		},
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Empty paths and missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			MinSamples:         uptime.DefaultMinSamples,
			InclusionThreshold: uptime.DefaultInclusionThreshold,
			MinNetworkSamples:  netstats.DefaultMinSamples,
			HardFloorPct:       outlier.DefaultHardFloor,
			HighPerformancePct: outlier.DefaultHighPerformance,
			RetainRuns:         DefaultRetainRuns,
		},
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
		Redis: RedisConfig{
			KeyPrefix: DefaultRedisPrefix,
			TTL:       DefaultRedisTTL,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	e := cfg.Engine
	if e.MinSamples < 1 {
		return fmt.Errorf("engine.min_samples must be at least 1")
	}
	if e.InclusionThreshold < 0 || e.InclusionThreshold >= 100 {
		return fmt.Errorf("engine.inclusion_threshold %v is out of range [0, 100)", e.InclusionThreshold)
	}
	if e.MinNetworkSamples < 1 {
		return fmt.Errorf("engine.min_network_samples must be at least 1")
	}
	if e.HardFloorPct < 0 || e.HardFloorPct > 100 {
		return fmt.Errorf("engine.hard_floor_pct %v is out of range [0, 100]", e.HardFloorPct)
	}
	if e.HighPerformancePct <= e.HardFloorPct || e.HighPerformancePct > 100 {
		return fmt.Errorf("engine.high_performance_pct %v must be in (hard_floor_pct, 100]", e.HighPerformancePct)
	}
	if err := uniqueNonEmpty("engine.periods", e.Periods); err != nil {
		return err
	}
	if err := uniqueNonEmpty("engine.roles", e.Roles); err != nil {
		return err
	}
	for _, r := range e.Roles {
		if r == "overall" {
			return fmt.Errorf("engine.roles: overall is always computed and must not be listed")
		}
	}
	if e.Interval < 0 || e.RetainRuns < 0 {
		return fmt.Errorf("engine.interval and engine.retain_runs must not be negative")
	}

	if cfg.Inputs.Snapshots == "" {
		return fmt.Errorf("inputs.snapshots is required")
	}
	if cfg.Inputs.Histories == "" {
		return fmt.Errorf("inputs.histories is required")
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}

	if cfg.Redis.Enabled && cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}
	if cfg.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl must not be negative")
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("alerts.rules[%d] %q: condition must be \"field op value\"", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}

func uniqueNonEmpty(field string, vals []string) error {
	seen := make(map[string]struct{}, len(vals))
	for i, v := range vals {
		if v == "" {
			return fmt.Errorf("%s[%d] is empty", field, i)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%s: duplicate %q", field, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}
