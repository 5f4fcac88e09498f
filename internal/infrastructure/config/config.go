package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "SCREENING_"
	envConfigPath     = "SCREENING_CONFIG"
	defaultConfigPath = "configs/config.yaml"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"required"`
	LogLevel    string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	Server    ServerConfig    `koanf:"server"`
	Streaming StreamingConfig `koanf:"streaming"`
	Registry  RegistryConfig  `koanf:"registry"`
	Matcher   MatcherConfig   `koanf:"matcher"`
	Hub       HubConfig       `koanf:"hub"`
	Generator GeneratorConfig `koanf:"generator"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StreamingConfig configures the topic bus. An empty RedisURL means no broker
// is configured and the bus goes straight to simulation mode.
type StreamingConfig struct {
	RedisURL           string        `koanf:"redis_url"`
	RedisPassword      string        `koanf:"redis_password"`
	RedisDB            int           `koanf:"redis_db"`
	ConsumerGroup      string        `koanf:"consumer_group" validate:"required"`
	ConsumerName       string        `koanf:"consumer_name"`
	ConnectTimeout     time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	HealthInterval     time.Duration `koanf:"health_interval" validate:"gt=0"`
	SimulationDelay    time.Duration `koanf:"simulation_delay" validate:"gte=0,lte=1s"`
	SimulationFallback bool          `koanf:"simulation_fallback"`
	StreamMaxLen       int64         `koanf:"stream_max_len" validate:"gte=0"`
	ReadBlock          time.Duration `koanf:"read_block"`
	BufferSize         int           `koanf:"buffer_size" validate:"gt=0"`
	DeadLetterCap      int           `koanf:"dead_letter_cap" validate:"gt=0"`
}

type RegistryConfig struct {
	Enabled      bool          `koanf:"enabled"`
	BaseURL      string        `koanf:"base_url" validate:"required_if=Enabled true"`
	Dataset      string        `koanf:"dataset"`
	Query        string        `koanf:"query"`
	Schema       string        `koanf:"schema"`
	Limit        int           `koanf:"limit" validate:"gt=0,lte=10000"`
	APIKey       string        `koanf:"api_key"`
	Interval     time.Duration `koanf:"interval" validate:"gt=0"`
	Backoff      time.Duration `koanf:"backoff" validate:"gt=0"`
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"gt=0"`
	RateLimitRPS float64       `koanf:"rate_limit_rps" validate:"gt=0"`
}

type MatcherConfig struct {
	Threshold         float64 `koanf:"threshold" validate:"gt=0,lte=100"`
	NearMissThreshold float64 `koanf:"near_miss_threshold" validate:"gte=0,ltefield=Threshold"`
}

type HubConfig struct {
	HistoryCap        int `koanf:"history_cap" validate:"gt=0"`
	ClientBufferSize  int `koanf:"client_buffer_size" validate:"gt=0"`
	MaxMessageSizeKiB int `koanf:"max_message_size_kib" validate:"gt=0"`
}

type GeneratorConfig struct {
	Enabled              bool                    `koanf:"enabled"`
	Seed                 int64                   `koanf:"seed"`
	WatchlistHitRatio    float64                 `koanf:"watchlist_hit_ratio" validate:"gte=0,lte=1"`
	HealthReportInterval time.Duration           `koanf:"health_report_interval" validate:"gt=0"`
	BurstRPS             float64                 `koanf:"burst_rps" validate:"gte=0"`
	Streams              map[string]StreamConfig `koanf:"streams" validate:"dive"`
}

type StreamConfig struct {
	Topic     string        `koanf:"topic" validate:"required"`
	Interval  time.Duration `koanf:"interval" validate:"gt=0"`
	BatchSize int           `koanf:"batch_size" validate:"gt=0,lte=1000"`
	Priority  string        `koanf:"priority" validate:"omitempty,oneof=high normal low"`
	Enabled   bool          `koanf:"enabled"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	ServiceName  string  `koanf:"service_name"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"gte=0,lte=1"`
}

// Defaults returns the built-in configuration used before file and env overrides
func Defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Streaming: StreamingConfig{
			ConsumerGroup:      "screening",
			ConnectTimeout:     3 * time.Second,
			HealthInterval:     30 * time.Second,
			SimulationDelay:    100 * time.Millisecond,
			SimulationFallback: true,
			StreamMaxLen:       10000,
			ReadBlock:          time.Second,
			BufferSize:         1024,
			DeadLetterCap:      256,
		},
		Registry: RegistryConfig{
			Enabled:      false,
			BaseURL:      "https://api.opensanctions.org",
			Dataset:      "sanctions",
			Query:        "*",
			Schema:       "Person",
			Limit:        500,
			Interval:     time.Hour,
			Backoff:      time.Minute,
			FetchTimeout: 10 * time.Second,
			RateLimitRPS: 1,
		},
		Matcher: MatcherConfig{
			Threshold: 90,
		},
		Hub: HubConfig{
			HistoryCap:        100,
			ClientBufferSize:  256,
			MaxMessageSizeKiB: 64,
		},
		Generator: GeneratorConfig{
			Enabled:              true,
			Seed:                 0,
			WatchlistHitRatio:    0.02,
			HealthReportInterval: 30 * time.Second,
			BurstRPS:             0,
			Streams:              DefaultStreams(),
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "sanctions-screening",
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// DefaultStreams is the per-topic cadence the load generator runs with
func DefaultStreams() map[string]StreamConfig {
	return map[string]StreamConfig{
		"transactions": {Topic: "transaction-stream", Interval: 2 * time.Second, BatchSize: 5, Priority: "high", Enabled: true},
		"budget":       {Topic: "budget-updates", Interval: 5 * time.Second, BatchSize: 3, Priority: "normal", Enabled: true},
		"projects":     {Topic: "project-updates", Interval: 10 * time.Second, BatchSize: 2, Priority: "normal", Enabled: true},
		"compliance":   {Topic: "compliance-alerts", Interval: 15 * time.Second, BatchSize: 1, Priority: "high", Enabled: true},
		"risk":         {Topic: "risk-events", Interval: 8 * time.Second, BatchSize: 2, Priority: "high", Enabled: true},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by SCREENING_CONFIG, and SCREENING_* environment variables.
func Load() (*Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit config file path
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	// SCREENING_MATCHER__THRESHOLD=85 -> matcher.threshold
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
