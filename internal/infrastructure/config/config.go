package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Logging      LogConfig
	RateLimit    RateLimitConfig
	Idle         IdleConfig
	Revalidation RevalidationConfig
	Producer     ProducerConfig
	Renderer     RendererConfig
	Fetch        FetchConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	H2C  bool   `envconfig:"SERVER_H2C" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// IdleConfig holds idle detection settings.
type IdleConfig struct {
	Threshold       time.Duration `envconfig:"IDLE_THRESHOLD" default:"30s"`
	VisibilityGrace time.Duration `envconfig:"IDLE_VISIBILITY_GRACE" default:"5s"`
	TickInterval    time.Duration `envconfig:"IDLE_TICK_INTERVAL" default:"1s"`
	DebounceWindow  time.Duration `envconfig:"ACTIVITY_DEBOUNCE" default:"100ms"`
}

// RevalidationConfig holds retry and throttle settings.
type RevalidationConfig struct {
	BaseDelay       time.Duration `envconfig:"REVALIDATE_BASE_DELAY" default:"1s"`
	CapDelay        time.Duration `envconfig:"REVALIDATE_CAP_DELAY" default:"30s"`
	MaxRetries      int           `envconfig:"REVALIDATE_MAX_RETRIES" default:"3"`
	FocusThrottle   time.Duration `envconfig:"REVALIDATE_FOCUS_THROTTLE" default:"30s"`
	IdleWindow      time.Duration `envconfig:"REVALIDATE_IDLE_WINDOW" default:"10s"`
	RefreshInterval time.Duration `envconfig:"REVALIDATE_REFRESH_INTERVAL" default:"0s"`
}

// ProducerConfig holds bounded producer settings.
type ProducerConfig struct {
	Timeout time.Duration `envconfig:"PRODUCER_TIMEOUT" default:"30s"`
}

// RendererConfig holds renderer settings.
type RendererConfig struct {
	FrameInterval time.Duration `envconfig:"RENDERER_FRAME_INTERVAL" default:"16ms"`
	Enabled       bool          `envconfig:"RENDERER_ENABLED" default:"true"`
}

// FetchConfig holds upstream fetcher settings.
type FetchConfig struct {
	BaseURL string        `envconfig:"FETCH_BASE_URL"`
	Timeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads a flat file of environment keys (YAML or TOML, by
// extension) underneath the environment: a key already set in the
// environment wins over the file. File keys are exported only for the
// duration of the call.
func LoadFile(path string) (*Config, error) {
	values, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var exported []string
	defer func() {
		for _, key := range exported {
			os.Unsetenv(key)
		}
	}()
	for key, value := range values {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", key, err)
		}
		exported = append(exported, key)
	}

	return Load()
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw := make(map[string]any)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config key %s: nested values are not supported", key)
		default:
			values[strings.ToUpper(key)] = fmt.Sprint(v)
		}
	}
	return values, nil
}

// Validate rejects settings the coordinator cannot run with.
func (c *Config) Validate() error {
	var errs []error

	positive := map[string]time.Duration{
		"IDLE_THRESHOLD":            c.Idle.Threshold,
		"IDLE_VISIBILITY_GRACE":     c.Idle.VisibilityGrace,
		"IDLE_TICK_INTERVAL":        c.Idle.TickInterval,
		"ACTIVITY_DEBOUNCE":         c.Idle.DebounceWindow,
		"REVALIDATE_BASE_DELAY":     c.Revalidation.BaseDelay,
		"REVALIDATE_CAP_DELAY":      c.Revalidation.CapDelay,
		"REVALIDATE_FOCUS_THROTTLE": c.Revalidation.FocusThrottle,
		"PRODUCER_TIMEOUT":          c.Producer.Timeout,
		"RENDERER_FRAME_INTERVAL":   c.Renderer.FrameInterval,
		"FETCH_TIMEOUT":             c.Fetch.Timeout,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}

	if c.Revalidation.CapDelay < c.Revalidation.BaseDelay {
		errs = append(errs, errors.New("REVALIDATE_CAP_DELAY must not be below REVALIDATE_BASE_DELAY"))
	}
	if c.Revalidation.MaxRetries < 0 {
		errs = append(errs, errors.New("REVALIDATE_MAX_RETRIES must not be negative"))
	}
	if c.Revalidation.IdleWindow < 0 {
		errs = append(errs, errors.New("REVALIDATE_IDLE_WINDOW must not be negative"))
	}
	if c.Revalidation.RefreshInterval < 0 {
		errs = append(errs, errors.New("REVALIDATE_REFRESH_INTERVAL must not be negative"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Idle: IdleConfig{
			Threshold:       30 * time.Second,
			VisibilityGrace: 5 * time.Second,
			TickInterval:    time.Second,
			DebounceWindow:  100 * time.Millisecond,
		},
		Revalidation: RevalidationConfig{
			BaseDelay:     time.Second,
			CapDelay:      30 * time.Second,
			MaxRetries:    3,
			FocusThrottle: 30 * time.Second,
			IdleWindow:    10 * time.Second,
		},
		Producer: ProducerConfig{
			Timeout: 30 * time.Second,
		},
		Renderer: RendererConfig{
			FrameInterval: 16 * time.Millisecond,
			Enabled:       true,
		},
		Fetch: FetchConfig{
			Timeout: 10 * time.Second,
		},
	}
}
