// Package config loads and validates the crawler configuration: a YAML file
// as the primary document, a .env file when present, and environment
// variables overriding both.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"newspipe/pkg/models"
)

// Validation errors. All of them are fatal at startup, surfaced before any
// work begins; nothing else in the pipeline escapes to the process boundary.
var (
	ErrNoSeedURLs    = errors.New("config: no seed URLs")
	ErrNoSchemas     = errors.New("config: no schemas")
	ErrBadSchema     = errors.New("config: invalid schema")
	ErrUnknownFollow = errors.New("config: follow references unknown schema")
	ErrUnmatchedSeed = errors.New("config: seed URL matches no schema")
	ErrBadValue      = errors.New("config: invalid value")
)

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Crawl struct {
	SeedURLs          []string `yaml:"seed_urls"`
	Keywords          []string `yaml:"keywords"`
	Concurrency       int      `yaml:"concurrency"`
	MaxRetries        int      `yaml:"max_retries"`
	RequestTimeoutMs  int      `yaml:"request_timeout_ms"`
	PerHostIntervalMs int      `yaml:"per_host_interval_ms"`
	MaxBodyKB         int      `yaml:"max_body_kb"`
	UserAgent         string   `yaml:"user_agent"`
	RespectRobots     bool     `yaml:"respect_robots"`
	Schedule          string   `yaml:"schedule"`
}

func (c Crawl) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c Crawl) PerHostInterval() time.Duration {
	return time.Duration(c.PerHostIntervalMs) * time.Millisecond
}

func (c Crawl) MaxBodyBytes() int64 {
	return int64(c.MaxBodyKB) * 1024
}

type Dedup struct {
	IndexPath string `yaml:"index_path"`
	RedisAddr string `yaml:"redis_addr"`
}

type Output struct {
	JSONLPath       string `yaml:"jsonl_path"`
	CSVPath         string `yaml:"csv_path"`
	PostgresURL     string `yaml:"postgres_url"`
	SQLitePath      string `yaml:"sqlite_path"`
	BatchSize       int    `yaml:"batch_size"`
	FlushIntervalMs int    `yaml:"flush_interval_ms"`
}

func (o Output) FlushInterval() time.Duration {
	return time.Duration(o.FlushIntervalMs) * time.Millisecond
}

type Sentiment struct {
	Enabled     bool   `yaml:"enabled"`
	Provider    string `yaml:"provider"`
	OllamaHost  string `yaml:"ollama_host"`
	OllamaModel string `yaml:"ollama_model"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
}

type Config struct {
	Log       Log                 `yaml:"log"`
	Crawl     Crawl               `yaml:"crawl"`
	Dedup     Dedup               `yaml:"dedup"`
	Output    Output              `yaml:"output"`
	Sentiment Sentiment           `yaml:"sentiment"`
	Telemetry Telemetry           `yaml:"telemetry"`
	Schemas   []models.SiteSchema `yaml:"schemas"`
}

// Default returns the configuration assumed for keys absent from the file.
func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Crawl: Crawl{
			Concurrency:       8,
			MaxRetries:        3,
			RequestTimeoutMs:  10000,
			PerHostIntervalMs: 500,
			MaxBodyKB:         2048,
			UserAgent:         "newspipe/1.0",
			RespectRobots:     true,
		},
		Output:    Output{JSONLPath: "data/articles.jsonl", BatchSize: 20, FlushIntervalMs: 1000},
		Sentiment: Sentiment{Provider: "lexicon", OllamaModel: "mistral"},
		Telemetry: Telemetry{Protocol: "grpc", Insecure: true},
	}
}

// envOverrides names the environment variables recognized on top of the
// file. Empty values leave the file settings alone.
type envOverrides struct {
	DatabaseURL  string `envconfig:"DB_URL"`
	Workers      int    `envconfig:"WORKERS"`
	UserAgent    string `envconfig:"USER_AGENT"`
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	OllamaHost   string `envconfig:"OLLAMA_HOST"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
}

// Load reads the YAML file at path, layers environment overrides on top, and
// validates the result.
func Load(path string) (*Config, error) {
	// In containers the variables are injected directly and no .env file
	// exists, so only complain when one is present but unreadable.
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			slog.Warn(".env file found but could not be loaded", "error", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.applyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(env envOverrides) {
	if env.DatabaseURL != "" {
		c.Output.PostgresURL = env.DatabaseURL
	}
	if env.Workers > 0 {
		c.Crawl.Concurrency = env.Workers
	}
	if env.UserAgent != "" {
		c.Crawl.UserAgent = env.UserAgent
	}
	if env.RedisAddr != "" {
		c.Dedup.RedisAddr = env.RedisAddr
	}
	if env.OllamaHost != "" {
		c.Sentiment.OllamaHost = env.OllamaHost
	}
	if env.OTLPEndpoint != "" {
		c.Telemetry.Endpoint = env.OTLPEndpoint
	}
}

// Validate checks everything that cannot be defaulted away and compiles the
// schema URL patterns so they are shareable afterwards.
func (c *Config) Validate() error {
	if len(c.Crawl.SeedURLs) == 0 {
		return ErrNoSeedURLs
	}
	if len(c.Schemas) == 0 {
		return ErrNoSchemas
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrBadValue, c.Crawl.Concurrency)
	}
	if c.Crawl.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative, got %d", ErrBadValue, c.Crawl.MaxRetries)
	}
	if c.Crawl.RequestTimeoutMs <= 0 {
		return fmt.Errorf("%w: request_timeout_ms must be positive, got %d", ErrBadValue, c.Crawl.RequestTimeoutMs)
	}
	if c.Crawl.PerHostIntervalMs < 0 {
		return fmt.Errorf("%w: per_host_interval_ms must not be negative, got %d", ErrBadValue, c.Crawl.PerHostIntervalMs)
	}
	if c.Output.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrBadValue, c.Output.BatchSize)
	}
	if c.Crawl.Schedule != "" {
		if _, err := cron.ParseStandard(c.Crawl.Schedule); err != nil {
			return fmt.Errorf("%w: schedule: %v", ErrBadValue, err)
		}
	}

	if c.Sentiment.Enabled {
		switch c.Sentiment.Provider {
		case "lexicon":
		case "ollama":
			if c.Sentiment.OllamaHost == "" {
				return fmt.Errorf("%w: sentiment provider ollama needs ollama_host", ErrBadValue)
			}
		default:
			return fmt.Errorf("%w: unknown sentiment provider %q", ErrBadValue, c.Sentiment.Provider)
		}
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("%w: telemetry enabled without endpoint", ErrBadValue)
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("%w: unknown telemetry protocol %q", ErrBadValue, c.Telemetry.Protocol)
		}
	}

	byName := make(map[string]bool, len(c.Schemas))
	for i := range c.Schemas {
		s := &c.Schemas[i]
		if s.Name == "" {
			return fmt.Errorf("%w: schema %d has no name", ErrBadSchema, i)
		}
		if byName[s.Name] {
			return fmt.Errorf("%w: duplicate schema name %q", ErrBadSchema, s.Name)
		}
		byName[s.Name] = true

		if s.Type == "" {
			s.Type = models.SchemaHTML
		}
		switch s.Type {
		case models.SchemaHTML:
			if s.Title.Empty() || s.Link.Empty() {
				return fmt.Errorf("%w: %s needs title and link selectors", ErrBadSchema, s.Name)
			}
		case models.SchemaFeed:
			if s.Render {
				return fmt.Errorf("%w: %s is a feed schema, render does not apply", ErrBadSchema, s.Name)
			}
		default:
			return fmt.Errorf("%w: %s has unknown type %q", ErrBadSchema, s.Name, s.Type)
		}

		if err := s.Compile(); err != nil {
			return fmt.Errorf("%w: %s url_pattern: %v", ErrBadSchema, s.Name, err)
		}
	}

	for i := range c.Schemas {
		if f := c.Schemas[i].Follow; f != "" && !byName[f] {
			return fmt.Errorf("%w: %s follows %q", ErrUnknownFollow, c.Schemas[i].Name, f)
		}
	}

	for _, seed := range c.Crawl.SeedURLs {
		if c.SchemaFor(seed) == nil {
			return fmt.Errorf("%w: %s", ErrUnmatchedSeed, seed)
		}
	}
	return nil
}

// SchemaFor returns the first schema whose URL pattern matches, or nil.
func (c *Config) SchemaFor(url string) *models.SiteSchema {
	for i := range c.Schemas {
		if c.Schemas[i].Matches(url) {
			return &c.Schemas[i]
		}
	}
	return nil
}

// SchemaByName returns the named schema, or nil.
func (c *Config) SchemaByName(name string) *models.SiteSchema {
	for i := range c.Schemas {
		if c.Schemas[i].Name == name {
			return &c.Schemas[i]
		}
	}
	return nil
}
