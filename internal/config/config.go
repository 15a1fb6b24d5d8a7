// Package config provides catalog configuration management with support for
// command-line flags, environment variables, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Secondary store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Migration strategies, as spelled in configuration.
const (
	StrategyUpsert       = "upsert"
	StrategySkipExisting = "skip-existing"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Primary   PrimaryConfig
	Secondary SecondaryConfig
	Sync      SyncConfig
	Migration MigrationConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	DataDir     string // base directory for the primary store and the outbox
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string // json or pretty; empty picks by environment
}

// PrimaryConfig holds the document store configuration.
type PrimaryConfig struct {
	Path     string
	InMemory bool
	Timeout  time.Duration
	// CompositeIndexes declares indexes as "collection:field[ desc],field[ desc]",
	// e.g. "favorites:userId,createdAt desc".
	CompositeIndexes []string
}

// SecondaryConfig holds the relational store configuration.
type SecondaryConfig struct {
	Driver         string
	DSN            string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxConns       int
	AutoMigrate    bool // apply schema migrations at startup
}

// SyncConfig holds sync engine and outbox configuration.
type SyncConfig struct {
	OutboxEnabled bool
	OutboxPath    string
	Timeout       time.Duration
	PollInterval  time.Duration
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	MaxAttempts   int
	BatchSize     int
	RatePerSecond float64
	Burst         int
}

// MigrationConfig holds defaults for the migration batch processor.
type MigrationConfig struct {
	Strategy string
	Workers  int
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// args are the command-line arguments without the program name.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, pretty)")
	dataDir := fs.String("data-dir", "", "Base directory for local data")

	primaryPath := fs.String("primary-path", "", "Path of the primary document store")
	primaryInMemory := fs.String("primary-in-memory", "", "Run the primary store in memory (default: false)")
	primaryTimeout := fs.String("primary-timeout", "", "Per-call primary store timeout (default: 10s)")
	primaryIndexes := fs.String("primary-indexes", "", "Semicolon separated composite index declarations")

	secondaryDriver := fs.String("secondary-driver", "", "Secondary store driver (postgres, memory)")
	secondaryDSN := fs.String("secondary-dsn", "", "Secondary store connection string")
	secondaryTimeout := fs.String("secondary-timeout", "", "Per-call secondary store timeout (default: 10s)")
	connectTimeout := fs.String("secondary-connect-timeout", "", "Secondary connect timeout (default: 10s)")
	maxConns := fs.String("secondary-max-conns", "", "Secondary pool size (default: 10)")
	autoMigrate := fs.String("secondary-auto-migrate", "", "Apply secondary schema at startup (default: true)")

	outboxEnabled := fs.String("outbox-enabled", "", "Persist sync tasks for retry (default: true)")
	outboxPath := fs.String("outbox-path", "", "Path of the sync outbox database")
	syncTimeout := fs.String("sync-timeout", "", "Per-task secondary write timeout (default: 15s)")
	pollInterval := fs.String("sync-poll-interval", "", "Outbox poll interval (default: 5s)")
	baseBackoff := fs.String("sync-base-backoff", "", "First retry delay (default: 2s)")
	maxBackoff := fs.String("sync-max-backoff", "", "Retry delay cap (default: 5m)")
	maxAttempts := fs.String("sync-max-attempts", "", "Attempts before a task is dead (default: 8)")
	batchSize := fs.String("sync-batch-size", "", "Tasks claimed per poll (default: 50)")
	ratePerSecond := fs.String("sync-rate", "", "Retries per second per kind (default: 20)")
	burst := fs.String("sync-burst", "", "Retry burst per kind (default: 10)")

	strategy := fs.String("migration-strategy", "", "Migration strategy (upsert, skip-existing)")
	workers := fs.String("migration-workers", "", "Concurrent migration workers (default: 4)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			DataDir:     getConfigValue(*dataDir, "DATA_DIR", ""),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Primary: PrimaryConfig{
			Path:             getConfigValue(*primaryPath, "PRIMARY_PATH", ""),
			InMemory:         getBoolConfigValue(*primaryInMemory, "PRIMARY_IN_MEMORY", false),
			CompositeIndexes: splitList(getConfigValue(*primaryIndexes, "PRIMARY_COMPOSITE_INDEXES", "")),
		},
		Secondary: SecondaryConfig{
			Driver:      getConfigValue(*secondaryDriver, "SECONDARY_DRIVER", DriverPostgres),
			DSN:         getConfigValue(*secondaryDSN, "SECONDARY_DSN", ""),
			MaxConns:    getIntConfigValue(*maxConns, "SECONDARY_MAX_CONNS", 10),
			AutoMigrate: getBoolConfigValue(*autoMigrate, "SECONDARY_AUTO_MIGRATE", true),
		},
		Sync: SyncConfig{
			OutboxEnabled: getBoolConfigValue(*outboxEnabled, "SYNC_OUTBOX_ENABLED", true),
			OutboxPath:    getConfigValue(*outboxPath, "SYNC_OUTBOX_PATH", ""),
			MaxAttempts:   getIntConfigValue(*maxAttempts, "SYNC_MAX_ATTEMPTS", 8),
			BatchSize:     getIntConfigValue(*batchSize, "SYNC_BATCH_SIZE", 50),
			Burst:         getIntConfigValue(*burst, "SYNC_BURST", 10),
		},
		Migration: MigrationConfig{
			Strategy: getConfigValue(*strategy, "MIGRATION_STRATEGY", StrategyUpsert),
			Workers:  getIntConfigValue(*workers, "MIGRATION_WORKERS", 4),
		},
	}

	rate, err := getFloatConfigValue(*ratePerSecond, "SYNC_RATE", 20)
	if err != nil {
		return nil, err
	}
	cfg.Sync.RatePerSecond = rate

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dest      *time.Duration
	}{
		{*primaryTimeout, "PRIMARY_TIMEOUT", "10s", &cfg.Primary.Timeout},
		{*secondaryTimeout, "SECONDARY_TIMEOUT", "10s", &cfg.Secondary.Timeout},
		{*connectTimeout, "SECONDARY_CONNECT_TIMEOUT", "10s", &cfg.Secondary.ConnectTimeout},
		{*syncTimeout, "SYNC_TIMEOUT", "15s", &cfg.Sync.Timeout},
		{*pollInterval, "SYNC_POLL_INTERVAL", "5s", &cfg.Sync.PollInterval},
		{*baseBackoff, "SYNC_BASE_BACKOFF", "2s", &cfg.Sync.BaseBackoff},
		{*maxBackoff, "SYNC_MAX_BACKOFF", "5m", &cfg.Sync.MaxBackoff},
	}
	for _, d := range durations {
		v, err := getDurationConfigValue(d.flagValue, d.envKey, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "" && c.Logger.Format != "json" && c.Logger.Format != "pretty" {
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	if !c.Primary.InMemory && c.Primary.Path == "" {
		return errors.New("primary path cannot be empty unless the primary store runs in memory")
	}

	for _, spec := range c.Primary.CompositeIndexes {
		if !strings.Contains(spec, ":") {
			return fmt.Errorf("invalid composite index %q (want collection:field,field)", spec)
		}
	}

	switch c.Secondary.Driver {
	case DriverPostgres:
		if c.Secondary.DSN == "" {
			return errors.New("SECONDARY_DSN is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid secondary driver: %s (must be postgres or memory)", c.Secondary.Driver)
	}

	if c.Secondary.MaxConns < 1 {
		return errors.New("secondary max conns must be at least 1")
	}

	for name, d := range map[string]time.Duration{
		"primary timeout":           c.Primary.Timeout,
		"secondary timeout":         c.Secondary.Timeout,
		"secondary connect timeout": c.Secondary.ConnectTimeout,
		"sync timeout":              c.Sync.Timeout,
		"sync poll interval":        c.Sync.PollInterval,
		"sync base backoff":         c.Sync.BaseBackoff,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		return errors.New("sync max backoff must not be below the base backoff")
	}

	if c.Sync.OutboxEnabled && c.Sync.OutboxPath == "" {
		return errors.New("outbox path cannot be empty when the outbox is enabled")
	}
	if c.Sync.MaxAttempts < 1 {
		return errors.New("sync max attempts must be at least 1")
	}
	if c.Sync.BatchSize < 1 {
		return errors.New("sync batch size must be at least 1")
	}
	if c.Sync.RatePerSecond <= 0 || c.Sync.Burst < 1 {
		return errors.New("sync rate and burst must be positive")
	}

	if c.Migration.Strategy != StrategyUpsert && c.Migration.Strategy != StrategySkipExisting {
		return fmt.Errorf("invalid migration strategy: %s (must be upsert or skip-existing)", c.Migration.Strategy)
	}
	if c.Migration.Workers < 1 {
		return errors.New("migration workers must be at least 1")
	}

	return nil
}

// expandPaths resolves the data directory and the paths derived from it.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	dataDir, err := expandPath(c.App.DataDir, filepath.Join(homeDir, ".elibrary"))
	if err != nil {
		return err
	}
	c.App.DataDir = dataDir

	if !c.Primary.InMemory {
		if c.Primary.Path, err = expandPath(c.Primary.Path, filepath.Join(dataDir, "primary")); err != nil {
			return err
		}
	}
	if c.Sync.OutboxPath, err = expandPath(c.Sync.OutboxPath, filepath.Join(dataDir, "outbox.db")); err != nil {
		return err
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) (float64, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strValue), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return v, nil
}

// getDurationConfigValue returns a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// splitList splits a semicolon separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
