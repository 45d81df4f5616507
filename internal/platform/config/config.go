package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a mailanon run. Values are layered:
// Defaults, then an optional YAML file, then MAILANON_* environment variables,
// then command-line flags applied by the caller.
type Config struct {
	Log       Log       `yaml:"log"`
	Anonymize Anonymize `yaml:"anonymize"`
	Resolve   Resolve   `yaml:"resolve"`
	Provider  Provider  `yaml:"provider"`
	Metrics   Metrics   `yaml:"metrics"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Anonymize configures the normalization and mapping stage.
type Anonymize struct {
	OutputDir        string   `yaml:"output_dir"`
	MappingFile      string   `yaml:"mapping_file"`
	MaxAddressLength int      `yaml:"max_address_length"`
	InputEncoding    string   `yaml:"input_encoding"`
	Concurrency      int      `yaml:"concurrency"`
	SpecialAddresses []string `yaml:"special_addresses"`
	Denylist         []string `yaml:"denylist"`
}

// DuplicatePolicy decides which cache row wins when an identifier repeats.
type DuplicatePolicy string

const (
	FirstWins DuplicatePolicy = "first-wins"
	LastWins  DuplicatePolicy = "last-wins"
)

// Resolve configures the directory resolution stage.
type Resolve struct {
	CacheFile       string          `yaml:"cache_file"`
	DuplicatePolicy DuplicatePolicy `yaml:"duplicate_policy"`
	// Strict makes a missing cache file fatal instead of an empty start.
	Strict         bool          `yaml:"strict"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

// ProviderType names a directory backend.
type ProviderType string

const (
	ProviderNone     ProviderType = "none"
	ProviderCommand  ProviderType = "command"
	ProviderHTTP     ProviderType = "http"
	ProviderRedis    ProviderType = "redis"
	ProviderPostgres ProviderType = "postgres"
)

// Provider selects and configures the external directory collaborator.
type Provider struct {
	Type     ProviderType `yaml:"type"`
	Command  Command      `yaml:"command"`
	HTTP     HTTP         `yaml:"http"`
	Redis    RedisConfig  `yaml:"redis"`
	Postgres Postgres     `yaml:"postgres"`
}

// Command runs an external program that appends to the cache file itself.
// Arguments may contain {input} and {cache} placeholders.
type Command struct {
	Args []string `yaml:"args"`
}

// HTTP points at a directory resolution web service.
type HTTP struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig points at a hash holding a directory export.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	HashKey      string        `yaml:"hash_key"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Postgres points at a table holding a directory export.
type Postgres struct {
	DSN              string `yaml:"dsn"`
	Table            string `yaml:"table"`
	IdentifierColumn string `yaml:"identifier_column"`
	AddressColumn    string `yaml:"address_column"`
}

// Metrics configures the optional prometheus textfile export.
type Metrics struct {
	TextfilePath string `yaml:"textfile_path"`
}

// DefaultMaxAddressLength bounds a single raw address field.
const DefaultMaxAddressLength = 9999

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Anonymize: Anonymize{
			OutputDir:        "anon",
			MappingFile:      "mapping.csv",
			MaxAddressLength: DefaultMaxAddressLength,
			Concurrency:      4,
		},
		Resolve: Resolve{
			CacheFile:       "active-directory.csv",
			DuplicatePolicy: FirstWins,
			RefreshTimeout:  10 * time.Minute,
		},
		Provider: Provider{
			Type: ProviderNone,
			HTTP: HTTP{Timeout: 30 * time.Second},
			Redis: RedisConfig{
				HashKey:      "directory:mail",
				PoolSize:     4,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			Postgres: Postgres{
				Table:            "directory",
				IdentifierColumn: "legacy_exchange_dn",
				AddressColumn:    "mail",
			},
		},
	}
}

// Load reads a YAML file on top of Defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MAILANON_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MAILANON_LOG_LEVEL", &c.Log.Level)
	str("MAILANON_LOG_FORMAT", &c.Log.Format)
	str("MAILANON_OUTPUT_DIR", &c.Anonymize.OutputDir)
	str("MAILANON_MAPPING_FILE", &c.Anonymize.MappingFile)
	str("MAILANON_INPUT_ENCODING", &c.Anonymize.InputEncoding)
	str("MAILANON_CACHE_FILE", &c.Resolve.CacheFile)
	str("MAILANON_HTTP_BASE_URL", &c.Provider.HTTP.BaseURL)
	str("MAILANON_HTTP_TOKEN", &c.Provider.HTTP.Token)
	str("MAILANON_REDIS_URL", &c.Provider.Redis.URL)
	str("MAILANON_REDIS_HASH_KEY", &c.Provider.Redis.HashKey)
	str("MAILANON_POSTGRES_DSN", &c.Provider.Postgres.DSN)
	str("MAILANON_METRICS_FILE", &c.Metrics.TextfilePath)

	if v, ok := lookup("MAILANON_PROVIDER"); ok && v != "" {
		c.Provider.Type = ProviderType(v)
	}
	if v, ok := lookup("MAILANON_DUPLICATE_POLICY"); ok && v != "" {
		c.Resolve.DuplicatePolicy = DuplicatePolicy(v)
	}
	if v, ok := lookup("MAILANON_COMMAND"); ok && v != "" {
		c.Provider.Command.Args = strings.Fields(v)
	}
	if v, ok := lookup("MAILANON_STRICT_CACHE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MAILANON_STRICT_CACHE: %w", err)
		}
		c.Resolve.Strict = b
	}
	if v, ok := lookup("MAILANON_MAX_ADDRESS_LENGTH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAILANON_MAX_ADDRESS_LENGTH: %w", err)
		}
		c.Anonymize.MaxAddressLength = n
	}
	if v, ok := lookup("MAILANON_REFRESH_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MAILANON_REFRESH_TIMEOUT: %w", err)
		}
		c.Resolve.RefreshTimeout = d
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	if c.Anonymize.MaxAddressLength <= 0 {
		return fmt.Errorf("max_address_length must be positive, got %d", c.Anonymize.MaxAddressLength)
	}
	if c.Anonymize.OutputDir == "" || c.Anonymize.MappingFile == "" {
		return errors.New("output_dir and mapping_file are required")
	}
	switch c.Resolve.DuplicatePolicy {
	case FirstWins, LastWins:
	default:
		return fmt.Errorf("invalid duplicate_policy: %s", c.Resolve.DuplicatePolicy)
	}
	switch c.Provider.Type {
	case ProviderNone, "":
	case ProviderCommand:
		if len(c.Provider.Command.Args) == 0 {
			return errors.New("provider.command.args is required for the command provider")
		}
	case ProviderHTTP:
		if c.Provider.HTTP.BaseURL == "" {
			return errors.New("provider.http.base_url is required for the http provider")
		}
	case ProviderRedis:
		if c.Provider.Redis.URL == "" || c.Provider.Redis.HashKey == "" {
			return errors.New("provider.redis.url and hash_key are required for the redis provider")
		}
	case ProviderPostgres:
		if c.Provider.Postgres.DSN == "" {
			return errors.New("provider.postgres.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown provider type: %s", c.Provider.Type)
	}
	return nil
}
