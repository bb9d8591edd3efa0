// Package config provides unified configuration loading for Inkwell.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Inkwell service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Events        EventsConfig        `yaml:"events"`
	Backend       BackendConfig       `yaml:"backend"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Export        ExportConfig        `yaml:"export"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// EventsConfig holds progress event bus settings.
type EventsConfig struct {
	Driver  string      `yaml:"driver"` // memory or redis
	Channel string      `yaml:"channel"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BackendConfig holds generation backend settings.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	VisionModel    string        `yaml:"vision_model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// PipelineConfig holds enhancement pipeline settings.
type PipelineConfig struct {
	ChunkCharLimit   int `yaml:"chunk_char_limit"`
	ChunkConcurrency int `yaml:"chunk_concurrency"`
}

// ExportConfig holds artifact export settings.
type ExportConfig struct {
	CompilerBinary string        `yaml:"compiler_binary"`
	CompileWorkers int           `yaml:"compile_workers"`
	CompileTimeout time.Duration `yaml:"compile_timeout"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   60 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   32 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/inkwell.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Events: EventsConfig{
			Driver:  "memory",
			Channel: "jobs.progress",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Backend: BackendConfig{
			BaseURL:        "https://openrouter.ai/api/v1/chat/completions",
			Model:          "openai/gpt-4o-mini",
			VisionModel:    "openai/gpt-4o",
			MaxTokens:      4000,
			Temperature:    0.8,
			RequestTimeout: 120 * time.Second,
			MaxRetries:     3,
		},
		Pipeline: PipelineConfig{
			ChunkCharLimit:   3800,
			ChunkConcurrency: 3,
		},
		Export: ExportConfig{
			CompilerBinary: "pdflatex",
			CompileWorkers: 2,
			CompileTimeout: 2 * time.Minute,
		},
		Storage: StorageConfig{
			Root: "/tmp/inkwell-artifacts",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Events.Driver != "memory" && c.Events.Driver != "redis" {
		return fmt.Errorf("invalid events driver: %s", c.Events.Driver)
	}

	if c.Pipeline.ChunkCharLimit < 200 {
		return fmt.Errorf("chunk_char_limit must be at least 200")
	}

	if c.Pipeline.ChunkConcurrency < 1 {
		return fmt.Errorf("chunk_concurrency must be at least 1")
	}

	if c.Export.CompileWorkers < 1 {
		return fmt.Errorf("compile_workers must be at least 1")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Events.Driver = "redis"
		cfg.Events.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}

	if v := os.Getenv("INKWELL_MODEL"); v != "" {
		cfg.Backend.Model = v
	}

	if v := os.Getenv("INKWELL_VISION_MODEL"); v != "" {
		cfg.Backend.VisionModel = v
	}

	if v := os.Getenv("INKWELL_STORAGE_ROOT"); v != "" {
		cfg.Storage.Root = v
	}

	if v := os.Getenv("INKWELL_COMPILER"); v != "" {
		cfg.Export.CompilerBinary = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
