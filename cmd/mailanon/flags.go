package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"mailanon/internal/platform/config"
	dErrors "mailanon/pkg/domain-errors"
)

// cliFlags holds the values given on the command line. Only flags the user
// actually set override the file and environment configuration.
type cliFlags struct {
	fs *flag.FlagSet

	ConfigPath string
	LogLevel   string
	LogFormat  string
	Metrics    string

	// resolve
	Output          string
	CacheFile       string
	Provider        string
	Command         string
	HTTPURL         string
	RedisURL        string
	PostgresDSN     string
	StrictCache     bool
	DuplicatePolicy string
	RefreshTimeout  time.Duration

	// anonymize
	OutputDir        string
	MappingFile      string
	MaxAddressLength int
	Encoding         string
	Concurrency      int
}

func newFlagSet(name string, stderr io.Writer) *cliFlags {
	f := &cliFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.SetOutput(stderr)

	f.fs.StringVar(&f.ConfigPath, "config", "", "Path to YAML configuration file (env: MAILANON_CONFIG)")
	f.fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error (env: MAILANON_LOG_LEVEL)")
	f.fs.StringVar(&f.LogFormat, "log-format", "", "Log format: text, json (env: MAILANON_LOG_FORMAT)")
	f.fs.StringVar(&f.Metrics, "metrics-file", "", "Write prometheus metrics to this textfile (env: MAILANON_METRICS_FILE)")

	switch name {
	case cmdResolve:
		f.fs.StringVar(&f.Output, "output", "resolved.csv", "Resolved CSV to write")
		f.fs.StringVar(&f.CacheFile, "cache", "", "Resolution cache CSV (env: MAILANON_CACHE_FILE)")
		f.fs.StringVar(&f.Provider, "provider", "", "Directory provider: none, command, http, redis, postgres (env: MAILANON_PROVIDER)")
		f.fs.StringVar(&f.Command, "command", "", "Refresh command, {input} and {cache} are substituted (env: MAILANON_COMMAND)")
		f.fs.StringVar(&f.HTTPURL, "http-url", "", "Directory service base URL (env: MAILANON_HTTP_BASE_URL)")
		f.fs.StringVar(&f.RedisURL, "redis-url", "", "Redis URL of the directory export (env: MAILANON_REDIS_URL)")
		f.fs.StringVar(&f.PostgresDSN, "postgres-dsn", "", "PostgreSQL DSN of the directory export (env: MAILANON_POSTGRES_DSN)")
		f.fs.BoolVar(&f.StrictCache, "strict-cache", false, "Fail when the cache file is missing (env: MAILANON_STRICT_CACHE)")
		f.fs.StringVar(&f.DuplicatePolicy, "duplicate-policy", "", "Cache duplicate policy: first-wins, last-wins (env: MAILANON_DUPLICATE_POLICY)")
		f.fs.DurationVar(&f.RefreshTimeout, "refresh-timeout", 0, "Bound on the directory refresh call (env: MAILANON_REFRESH_TIMEOUT)")
	case cmdAnonymize:
		f.fs.StringVar(&f.OutputDir, "out", "", "Output directory (env: MAILANON_OUTPUT_DIR)")
		f.fs.StringVar(&f.MappingFile, "mapping", "", "Mapping table file name inside the output directory (env: MAILANON_MAPPING_FILE)")
		f.fs.IntVar(&f.MaxAddressLength, "max-address-length", 0, "Reject raw address fields longer than this (env: MAILANON_MAX_ADDRESS_LENGTH)")
		f.fs.StringVar(&f.Encoding, "encoding", "", "Input charset, IANA name (env: MAILANON_INPUT_ENCODING)")
		f.fs.IntVar(&f.Concurrency, "concurrency", 0, "Files loaded in parallel")
	}
	return f
}

func (f *cliFlags) parse(args []string) error {
	err := f.fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "parse flags")
}

func (f *cliFlags) args() []string {
	return f.fs.Args()
}

// configure layers defaults, the config file, MAILANON_* variables and the
// flags that were set, in that order.
func (f *cliFlags) configure(lookupEnv func(string) (string, bool)) (config.Config, error) {
	path := f.ConfigPath
	if path == "" {
		if v, ok := lookupEnv("MAILANON_CONFIG"); ok {
			path = v
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log-level":
			cfg.Log.Level = f.LogLevel
		case "log-format":
			cfg.Log.Format = f.LogFormat
		case "metrics-file":
			cfg.Metrics.TextfilePath = f.Metrics
		case "cache":
			cfg.Resolve.CacheFile = f.CacheFile
		case "provider":
			cfg.Provider.Type = config.ProviderType(f.Provider)
		case "command":
			cfg.Provider.Command.Args = strings.Fields(f.Command)
		case "http-url":
			cfg.Provider.HTTP.BaseURL = f.HTTPURL
		case "redis-url":
			cfg.Provider.Redis.URL = f.RedisURL
		case "postgres-dsn":
			cfg.Provider.Postgres.DSN = f.PostgresDSN
		case "strict-cache":
			cfg.Resolve.Strict = f.StrictCache
		case "duplicate-policy":
			cfg.Resolve.DuplicatePolicy = config.DuplicatePolicy(f.DuplicatePolicy)
		case "refresh-timeout":
			cfg.Resolve.RefreshTimeout = f.RefreshTimeout
		case "out":
			cfg.Anonymize.OutputDir = f.OutputDir
		case "mapping":
			cfg.Anonymize.MappingFile = f.MappingFile
		case "max-address-length":
			cfg.Anonymize.MaxAddressLength = f.MaxAddressLength
		case "encoding":
			cfg.Anonymize.InputEncoding = f.Encoding
		case "concurrency":
			cfg.Anonymize.Concurrency = f.Concurrency
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
