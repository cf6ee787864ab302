package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matthewjhunter/newsalert"
	"github.com/matthewjhunter/newsalert/internal/storage"
	"github.com/matthewjhunter/newsalert/internal/tagging"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "./config/config.yaml"

const (
	envDBDriver  = "NEWSALERT_DB_DRIVER"
	envDBDSN     = "NEWSALERT_DB_DSN"
	envAddr      = "NEWSALERT_ADDR"
	envJWTSecret = "NEWSALERT_JWT_SECRET"
	envLogLevel  = "NEWSALERT_LOG_LEVEL"
)

type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Feeds    FeedsConfig    `yaml:"feeds" toml:"feeds"`
	Tagging  TaggingConfig  `yaml:"tagging" toml:"tagging"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// DatabaseConfig selects the article store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver      string      `yaml:"driver" toml:"driver"`
	DSN         string      `yaml:"dsn" toml:"dsn"`
	AutoMigrate bool        `yaml:"auto_migrate" toml:"auto_migrate"`
	Retry       RetryConfig `yaml:"retry" toml:"retry"`
}

// RetryConfig governs reconnection while the database is unreachable at
// startup. MaxAttempts of 0 means retry forever.
type RetryConfig struct {
	Delay       time.Duration `yaml:"delay" toml:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay" toml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" toml:"multiplier"`
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" toml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	// JWTSecret enables bearer auth on mark-read when set.
	JWTSecret string `yaml:"jwt_secret,omitempty" toml:"jwt_secret,omitempty"`
}

type FeedsConfig struct {
	Sources  []string      `yaml:"sources" toml:"sources"`
	OPML     string        `yaml:"opml,omitempty" toml:"opml,omitempty"`
	Interval time.Duration `yaml:"interval" toml:"interval"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
}

type TaggingConfig struct {
	// Rules maps a tag to the title or summary keywords that trigger it.
	Rules  map[string][]string `yaml:"rules" toml:"rules"`
	Ollama OllamaConfig        `yaml:"ollama" toml:"ollama"`
}

type OllamaConfig struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	Model       string  `yaml:"model" toml:"model"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "./newsalert.db"
	cfg.Database.AutoMigrate = true
	cfg.Database.Retry = RetryConfig{
		Delay:      5 * time.Second,
		MaxDelay:   5 * time.Second,
		Multiplier: 1,
	}
	cfg.Server.Addr = ":5000"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Feeds.Sources = []string{
		"https://feeds.bbci.co.uk/news/world/rss.xml",
		"https://rss.nytimes.com/services/xml/rss/nyt/World.xml",
	}
	cfg.Feeds.Interval = 15 * time.Minute
	cfg.Feeds.Timeout = 30 * time.Second
	cfg.Tagging.Rules = tagging.DefaultRules()
	cfg.Tagging.Ollama.BaseURL = "http://localhost:11434"
	cfg.Tagging.Ollama.Model = "llama3"
	cfg.Tagging.Ollama.Temperature = 0.1
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// Load reads the config file at path, falling back to defaults when it
// does not exist, then applies environment overrides. The format follows
// the file extension: .toml is TOML, anything else YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		// Configured rules replace the defaults rather than merging into them.
		cfg.Tagging.Rules = nil
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if len(cfg.Tagging.Rules) == 0 {
			cfg.Tagging.Rules = tagging.DefaultRules()
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envDBDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(envDBDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(envAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(envJWTSecret); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects settings that would fail later in a less obvious way.
func (c *Config) Validate() error {
	if _, err := storage.DialectFor(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if c.Database.Retry.Delay < 0 || c.Database.Retry.MaxAttempts < 0 {
		return fmt.Errorf("database.retry: delay and max_attempts must not be negative")
	}
	if c.Feeds.Interval < 0 || c.Feeds.Timeout < 0 {
		return fmt.Errorf("feeds: interval and timeout must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}

// StoreOptions converts the database section for storage.Open.
func (c *Config) StoreOptions() storage.Options {
	r := c.Database.Retry
	return storage.Options{
		Driver:      c.Database.Driver,
		DSN:         c.Database.DSN,
		AutoMigrate: c.Database.AutoMigrate,
		Retry: storage.RetryPolicy{
			Delay:       r.Delay,
			MaxDelay:    r.MaxDelay,
			Multiplier:  r.Multiplier,
			MaxAttempts: r.MaxAttempts,
		},
	}
}

// EngineConfig converts the config for newsalert.NewEngine.
func (c *Config) EngineConfig(logger *slog.Logger) newsalert.EngineConfig {
	r := c.Database.Retry
	return newsalert.EngineConfig{
		Driver:            c.Database.Driver,
		DSN:               c.Database.DSN,
		AutoMigrate:       c.Database.AutoMigrate,
		RetryDelay:        r.Delay,
		RetryMaxDelay:     r.MaxDelay,
		RetryMultiplier:   r.Multiplier,
		RetryMaxAttempts:  r.MaxAttempts,
		Sources:           c.Feeds.Sources,
		OPMLPath:          c.Feeds.OPML,
		FetchTimeout:      c.Feeds.Timeout,
		TagRules:          c.Tagging.Rules,
		OllamaEnabled:     c.Tagging.Ollama.Enabled,
		OllamaBaseURL:     c.Tagging.Ollama.BaseURL,
		OllamaModel:       c.Tagging.Ollama.Model,
		OllamaTemperature: c.Tagging.Ollama.Temperature,
		Logger:            logger,
	}
}

// Write saves the config to path in the format its extension selects,
// creating the parent directory. An existing file is never overwritten.
func (c *Config) Write(path string) error {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
