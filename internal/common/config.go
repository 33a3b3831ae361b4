package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Queue       QueueConfig   `toml:"queue"`
	Storage     StorageConfig `toml:"storage"`
	Objects     ObjectsConfig `toml:"objects"`
	Logging     LoggingConfig `toml:"logging"`
	Completion  CompletionConfig `toml:"completion"`
	Duplicate   DuplicateConfig  `toml:"duplicate"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// QueueConfig configures the queues the Dependency Container registers, one
// per line kind plus the two completion-check sentinels.
type QueueConfig struct {
	Capacity    int  `toml:"capacity"`    // channel buffer per queue (default 256), MemoryQueue only
	Concurrency int  `toml:"concurrency"` // puller goroutines per worker (default 1)
	Durable     bool `toml:"durable"`     // true backs every queue with GoqiteQueue over SQLitePath instead of MemoryQueue
	SQLitePath  string `toml:"sqlite_path"` // database/sql DSN for the durable queue option (default "./data/queue.db")
}

type StorageConfig struct {
	Badger     BadgerConfig     `toml:"badger"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration.
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type FilesystemConfig struct {
	Images      string `toml:"images"`
	Attachments string `toml:"attachments"`
}

// ObjectsConfig configures the default local-filesystem object store that
// process_image uploads recipe photos into.
type ObjectsConfig struct {
	Root          string `toml:"root"`           // directory uploads are written under
	BaseURL       string `toml:"base_url"`       // base URL presigned links are built against
	SigningKey    string `toml:"signing_key"`    // HMAC key for presigned URL signatures
	PresignExpiry string `toml:"presign_expiry"` // e.g. "15m"

	// RateLimitPerSecond caps LocalStorage uploads (0 disables throttling).
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"rate_limit_burst"`
}

// MaintenanceConfig configures the background cache-sweep/dead-letter-reaper
// cron jobs the Dependency Container starts alongside the workers.
type MaintenanceConfig struct {
	CacheSweepCron  string `toml:"cache_sweep_cron"`  // robfig/cron spec, default "@every 1m"
	DeadLetterCron  string `toml:"dead_letter_cron"`  // robfig/cron spec, default "@every 10m"
	DeadLetterTTL   string `toml:"dead_letter_ttl"`   // records older than this are pruned, default "168h" (7 days)
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Format        string   `toml:"format"`          // "json" or "text"
	Output        []string `toml:"output"`          // "stdout", "file"
	TimeFormat    string   `toml:"time_format"`     // Time format for logs (default: "15:04:05.000")
	MinEventLevel string   `toml:"min_event_level"` // Minimum log level to publish as status events
}

// CompletionConfig carries the same knobs as actions.CompletionConfig in a
// TOML-friendly shape (string durations); the container parses these into
// actions.CompletionConfig when assembling the action factory.
type CompletionConfig struct {
	CategorizationTimeout      string `toml:"categorization_timeout"`        // default "60s"
	CompletionCheckBackoffBase string `toml:"completion_check_backoff_base"` // default "100ms"
	CompletionCheckMaxBackoff  string `toml:"completion_check_max_backoff"`  // default "5s"
	CompletionCheckMaxRetries  int    `toml:"completion_check_max_retries"`  // default 60
}

// DuplicateConfig configures the optional Anthropic-backed near-duplicate
// title detector wired into check_duplicates. Disabled (detector nil) by
// default, since duplicate detection beyond exact-title matching is an Open
// Question left to deployment choice.
type DuplicateConfig struct {
	Enabled bool   `toml:"enabled"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			Capacity:    256,
			Concurrency: 4,
			Durable:     false,
			SQLitePath:  "./data/queue.db",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Filesystem: FilesystemConfig{
				Images:      "./data/images",
				Attachments: "./data/attachments",
			},
		},
		Objects: ObjectsConfig{
			Root:               "./data/objects",
			BaseURL:            "http://localhost:8080/files",
			SigningKey:         "",
			PresignExpiry:      "15m",
			RateLimitPerSecond: 0,
			RateLimitBurst:     1,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "text",
			Output:        []string{"stdout", "file"},
			MinEventLevel: "info",
		},
		Completion: CompletionConfig{
			CategorizationTimeout:      "60s",
			CompletionCheckBackoffBase: "100ms",
			CompletionCheckMaxBackoff:  "5s",
			CompletionCheckMaxRetries:  60,
		},
		Duplicate: DuplicateConfig{
			Enabled: false,
			Model:   "claude-haiku-3-5-20241022",
		},
		Maintenance: MaintenanceConfig{
			CacheSweepCron: "@every 1m",
			DeadLetterCron: "@every 10m",
			DeadLetterTTL:  "168h",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones, then applies environment variable overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PEAS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("PEAS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PEAS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if capacity := os.Getenv("PEAS_QUEUE_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			config.Queue.Capacity = c
		}
	}
	if concurrency := os.Getenv("PEAS_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if durable := os.Getenv("PEAS_QUEUE_DURABLE"); durable != "" {
		if d, err := strconv.ParseBool(durable); err == nil {
			config.Queue.Durable = d
		}
	}
	if sqlitePath := os.Getenv("PEAS_QUEUE_SQLITE_PATH"); sqlitePath != "" {
		config.Queue.SQLitePath = sqlitePath
	}

	if badgerPath := os.Getenv("PEAS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if objectsRoot := os.Getenv("PEAS_OBJECTS_ROOT"); objectsRoot != "" {
		config.Objects.Root = objectsRoot
	}
	if objectsBaseURL := os.Getenv("PEAS_OBJECTS_BASE_URL"); objectsBaseURL != "" {
		config.Objects.BaseURL = objectsBaseURL
	}
	if signingKey := os.Getenv("PEAS_OBJECTS_SIGNING_KEY"); signingKey != "" {
		config.Objects.SigningKey = signingKey
	}
	if rate := os.Getenv("PEAS_OBJECTS_RATE_LIMIT_PER_SECOND"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Objects.RateLimitPerSecond = r
		}
	}

	if level := os.Getenv("PEAS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PEAS_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("PEAS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if minEventLevel := os.Getenv("PEAS_LOG_MIN_EVENT_LEVEL"); minEventLevel != "" {
		config.Logging.MinEventLevel = minEventLevel
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Duplicate.APIKey = apiKey
	}
	if apiKey := os.Getenv("PEAS_DUPLICATE_API_KEY"); apiKey != "" {
		config.Duplicate.APIKey = apiKey
	}
	if enabled := os.Getenv("PEAS_DUPLICATE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Duplicate.Enabled = e
		}
	}
	if model := os.Getenv("PEAS_DUPLICATE_MODEL"); model != "" {
		config.Duplicate.Model = model
	}

	if maxRetries := os.Getenv("PEAS_COMPLETION_CHECK_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Completion.CompletionCheckMaxRetries = mr
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a config duration string, falling back to def on an
// empty or invalid value. The completion-check knobs are stored as strings
// so they round-trip cleanly through TOML/env but are consumed as
// time.Duration by the container and the actions package.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are
// allowed. Test URLs are only allowed in development mode.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}

// DeepCloneConfig creates a deep copy of the Config struct, used to prevent
// mutation of a shared configuration instance.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	return &clone
}
