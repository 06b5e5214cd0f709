package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvBaseURL overrides backend.base_url when set
const EnvBaseURL = "JARVIS_API_BASE_URL"

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config holds application configuration
type Config struct {
	Backend      BackendConfig      `yaml:"backend"`
	Session      SessionConfig      `yaml:"session"`
	Search       SearchConfig       `yaml:"search"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Logging      LoggingConfig      `yaml:"logging"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`

	// Debug is set from the command line only
	Debug bool `yaml:"-"`
}

// BackendConfig describes the inference-and-retrieval service
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	HealthTimeout time.Duration `yaml:"-"`
	ChatTimeout   time.Duration `yaml:"-"`
	IngestTimeout time.Duration `yaml:"-"`
	SearchTimeout time.Duration `yaml:"-"`
	StatsTimeout  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HealthTimeoutRaw string `yaml:"health_timeout"`
	ChatTimeoutRaw   string `yaml:"chat_timeout"`
	IngestTimeoutRaw string `yaml:"ingest_timeout"`
	SearchTimeoutRaw string `yaml:"search_timeout"`
	StatsTimeoutRaw  string `yaml:"stats_timeout"`
}

// SessionConfig holds the toggles a new session starts with
type SessionConfig struct {
	UseKnowledgeBase bool   `yaml:"use_knowledge_base"`
	CategoryFilter   string `yaml:"category_filter"`
}

// SearchConfig holds knowledge search defaults
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
}

// ConnectivityConfig holds health polling configuration
type ConnectivityConfig struct {
	PollInterval    time.Duration `yaml:"-"`
	PollIntervalRaw string        `yaml:"poll_interval"`
}

// KnowledgeConfig holds ingestion configuration
type KnowledgeConfig struct {
	// LedgerPath is the sqlite DSN for the ingest ledger. ":memory:" keeps
	// nothing after exit.
	LedgerPath      string   `yaml:"ledger_path"`
	WatchExtensions []string `yaml:"watch_extensions"`
	WatchCategory   string   `yaml:"watch_category"`
	MaxFileBytes    int64    `yaml:"max_file_bytes"`

	StatsTTL    time.Duration `yaml:"-"`
	StatsTTLRaw string        `yaml:"stats_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:          "http://localhost:9000/api/v1",
			HealthTimeoutRaw: "5s",
			ChatTimeoutRaw:   "120s",
			IngestTimeoutRaw: "60s",
			SearchTimeoutRaw: "30s",
			StatsTimeoutRaw:  "10s",
		},
		Session: SessionConfig{
			UseKnowledgeBase: true,
		},
		Search: SearchConfig{
			DefaultTopK: 5,
		},
		Connectivity: ConnectivityConfig{
			PollIntervalRaw: "30s",
		},
		Knowledge: KnowledgeConfig{
			LedgerPath:      ":memory:",
			WatchExtensions: []string{".txt", ".md"},
			MaxFileBytes:    1 << 20,
			StatsTTLRaw:     "30s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     LogFormatJSON,
			File:       "logs/jarvis.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Dir:         "logs",
			ServiceName: "jarvis",
		},
	}
}

// Load reads a configuration file and returns a parsed Config. An empty
// path yields the defaults. Environment variables in the format
// ${VAR_NAME} are expanded and missing keys keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expandedData := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url must be http or https, got %q", c.Backend.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.base_url has no host: %q", c.Backend.BaseURL)
	}

	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"backend.health_timeout", c.Backend.HealthTimeout},
		{"backend.chat_timeout", c.Backend.ChatTimeout},
		{"backend.ingest_timeout", c.Backend.IngestTimeout},
		{"backend.search_timeout", c.Backend.SearchTimeout},
		{"backend.stats_timeout", c.Backend.StatsTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("%s must be positive", t.name)
		}
	}

	if c.Search.DefaultTopK < 1 || c.Search.DefaultTopK > 20 {
		return fmt.Errorf("search.default_top_k must be between 1 and 20, got %d", c.Search.DefaultTopK)
	}

	if c.Connectivity.PollInterval <= 0 {
		return errors.New("connectivity.poll_interval must be positive")
	}

	if c.Knowledge.LedgerPath == "" {
		return errors.New("knowledge.ledger_path is required")
	}
	if c.Knowledge.StatsTTL < 0 {
		return errors.New("knowledge.stats_ttl must not be negative")
	}
	if c.Knowledge.MaxFileBytes <= 0 {
		return errors.New("knowledge.max_file_bytes must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Logging.Format != LogFormatJSON && c.Logging.Format != LogFormatText {
		return fmt.Errorf("logging.format must be %q or %q, got %q", LogFormatJSON, LogFormatText, c.Logging.Format)
	}
	if c.Logging.File == "" {
		return errors.New("logging.file is required")
	}

	if c.Telemetry.Enabled && c.Telemetry.Dir == "" {
		return errors.New("telemetry.dir is required when telemetry is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"health_timeout", cfg.Backend.HealthTimeoutRaw, &cfg.Backend.HealthTimeout},
		{"chat_timeout", cfg.Backend.ChatTimeoutRaw, &cfg.Backend.ChatTimeout},
		{"ingest_timeout", cfg.Backend.IngestTimeoutRaw, &cfg.Backend.IngestTimeout},
		{"search_timeout", cfg.Backend.SearchTimeoutRaw, &cfg.Backend.SearchTimeout},
		{"stats_timeout", cfg.Backend.StatsTimeoutRaw, &cfg.Backend.StatsTimeout},
		{"poll_interval", cfg.Connectivity.PollIntervalRaw, &cfg.Connectivity.PollInterval},
		{"stats_ttl", cfg.Knowledge.StatsTTLRaw, &cfg.Knowledge.StatsTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
