// Package config loads service configuration from defaults, an optional
// TOML file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/sam-warren/cedhtools/internal/printing"
	"github.com/sam-warren/cedhtools/internal/rollup"
)

// FileEnvVar names the environment variable pointing at a TOML config file
const FileEnvVar = "CEDHTOOLS_CONFIG"

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Rollup   RollupConfig   `toml:"rollup"`
	Printing PrintingConfig `toml:"printing"`
	Moxfield MoxfieldConfig `toml:"moxfield"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port               string   `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	AdminToken         string   `toml:"admin_token"` // Empty disables the check
	ShutdownTimeout    string   `toml:"shutdown_timeout"`
	FrontendDistPath   string   `toml:"frontend_dist_path"` // Optional built SPA served at /
}

// DatabaseConfig contains the relational store settings.
type DatabaseConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	DSN    string `toml:"dsn"`    // File path for sqlite, connection string for postgres
	Debug  bool   `toml:"debug"`  // Log every SQL statement
}

type LogConfig struct {
	Level string `toml:"level"`
}

// RollupConfig contains slice and refresh settings.
type RollupConfig struct {
	Windows          []string `toml:"windows"`
	FieldSizes       []int    `toml:"field_sizes"`
	BanDate          string   `toml:"ban_date"` // YYYY-MM-DD start of since_ban
	DefaultWindow    string   `toml:"default_window"`
	MinSampleSize    int      `toml:"min_sample_size"`
	RefreshInterval  string   `toml:"refresh_interval"`
	TriggerInterval  string   `toml:"trigger_interval"`
	Parallelism      int      `toml:"parallelism"`
	RefreshOnStartup bool     `toml:"refresh_on_startup"`
}

type PrintingConfig struct {
	Policy string `toml:"policy"` // "most_used" or "earliest_printed"
}

// MoxfieldConfig contains deck provider client settings.
type MoxfieldConfig struct {
	BaseURL           string  `toml:"base_url"`
	UserAgent         string  `toml:"user_agent"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Timeout           string  `toml:"timeout"`
	CacheTTL          string  `toml:"cache_ttl"`
	CacheSize         int     `toml:"cache_size"`
}

// Default returns the default configuration.
func Default() *Config {
	windows := make([]string, 0, len(rollup.AllWindows()))
	for _, w := range rollup.AllWindows() {
		windows = append(windows, string(w))
	}

	return &Config{
		Server: ServerConfig{
			Port:               "8080",
			CORSAllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			ShutdownTimeout:    "30s",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./cedhtools.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Rollup: RollupConfig{
			Windows:          windows,
			FieldSizes:       rollup.DefaultFieldSizes(),
			BanDate:          rollup.DefaultBanDateValue,
			DefaultWindow:    string(rollup.WindowSinceBan),
			MinSampleSize:    rollup.DefaultMinSample,
			RefreshInterval:  "6h",
			TriggerInterval:  "1m",
			Parallelism:      4,
			RefreshOnStartup: true,
		},
		Printing: PrintingConfig{
			Policy: string(printing.PolicyMostUsed),
		},
		Moxfield: MoxfieldConfig{
			BaseURL:           "https://api2.moxfield.com/v3",
			UserAgent:         "cedhtools/1.0",
			RequestsPerSecond: 1,
			Timeout:           "10s",
			CacheTTL:          "1h",
			CacheSize:         256,
		},
	}
}

// Load builds the configuration. Later sources override earlier ones:
// defaults, the TOML file named by CEDHTOOLS_CONFIG, then the environment
// (including a .env file in the working directory).
func Load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(FileEnvVar); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays settings from a TOML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.Server.CORSAllowedOrigins)
	c.Server.AdminToken = getEnv("ADMIN_TOKEN", c.Server.AdminToken)
	c.Server.FrontendDistPath = getEnv("FRONTEND_DIST_PATH", c.Server.FrontendDistPath)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", getEnv("DB_PATH", c.Database.DSN))

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Rollup.Windows = getEnvList("ROLLUP_WINDOWS", c.Rollup.Windows)
	c.Rollup.BanDate = getEnv("BAN_DATE", c.Rollup.BanDate)
	c.Rollup.DefaultWindow = getEnv("DEFAULT_WINDOW", c.Rollup.DefaultWindow)
	c.Rollup.RefreshInterval = getEnv("REFRESH_INTERVAL", c.Rollup.RefreshInterval)
	c.Rollup.TriggerInterval = getEnv("REFRESH_TRIGGER_INTERVAL", c.Rollup.TriggerInterval)

	var err error
	if c.Rollup.FieldSizes, err = getEnvIntList("FIELD_SIZES", c.Rollup.FieldSizes); err != nil {
		return err
	}
	if c.Rollup.MinSampleSize, err = getEnvInt("MIN_SAMPLE_SIZE", c.Rollup.MinSampleSize); err != nil {
		return err
	}
	if c.Rollup.Parallelism, err = getEnvInt("REFRESH_PARALLELISM", c.Rollup.Parallelism); err != nil {
		return err
	}
	if c.Rollup.RefreshOnStartup, err = getEnvBool("REFRESH_ON_STARTUP", c.Rollup.RefreshOnStartup); err != nil {
		return err
	}

	c.Printing.Policy = getEnv("PRINTING_POLICY", c.Printing.Policy)

	c.Moxfield.BaseURL = getEnv("MOXFIELD_BASE_URL", c.Moxfield.BaseURL)
	c.Moxfield.UserAgent = getEnv("MOXFIELD_USER_AGENT", c.Moxfield.UserAgent)
	c.Moxfield.CacheTTL = getEnv("DECK_CACHE_TTL", c.Moxfield.CacheTTL)
	if v := os.Getenv("MOXFIELD_RATE_LIMIT"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid MOXFIELD_RATE_LIMIT %q: %w", v, err)
		}
		c.Moxfield.RequestsPerSecond = rps
	}

	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}

	if _, err := c.RollupOptions(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.DefaultWindow(); err != nil {
		errs = append(errs, err)
	}
	if _, err := printing.ParsePolicy(c.Printing.Policy); err != nil {
		errs = append(errs, err)
	}

	for name, value := range map[string]string{
		"refresh_interval":   c.Rollup.RefreshInterval,
		"trigger_interval":   c.Rollup.TriggerInterval,
		"shutdown_timeout":   c.Server.ShutdownTimeout,
		"moxfield timeout":   c.Moxfield.Timeout,
		"moxfield cache_ttl": c.Moxfield.CacheTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", name, value, err))
		}
	}
	if c.Moxfield.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("moxfield requests_per_second must be positive, got %v", c.Moxfield.RequestsPerSecond))
	}

	return errors.Join(errs...)
}

// RollupOptions converts the rollup section into slice options.
func (c *Config) RollupOptions() (rollup.Options, error) {
	opts := rollup.Options{MinSampleSize: c.Rollup.MinSampleSize}

	if len(c.Rollup.Windows) == 0 {
		return opts, errors.New("at least one rollup window is required")
	}
	for _, name := range c.Rollup.Windows {
		w, err := rollup.ParseWindow(name)
		if err != nil {
			return opts, err
		}
		opts.Windows = append(opts.Windows, w)
	}

	if len(c.Rollup.FieldSizes) == 0 {
		return opts, errors.New("at least one field size is required")
	}
	for _, size := range c.Rollup.FieldSizes {
		if size < 0 {
			return opts, fmt.Errorf("field size must not be negative, got %d", size)
		}
	}
	opts.FieldSizes = append([]int(nil), c.Rollup.FieldSizes...)

	if c.Rollup.MinSampleSize < 1 {
		return opts, fmt.Errorf("min sample size must be at least 1, got %d", c.Rollup.MinSampleSize)
	}

	banDate, err := time.Parse("2006-01-02", c.Rollup.BanDate)
	if err != nil {
		return opts, fmt.Errorf("invalid ban date %q: %w", c.Rollup.BanDate, err)
	}
	opts.BanDate = banDate

	return opts, nil
}

// DefaultWindow is the window used when a query does not name one. It must
// be one of the configured windows.
func (c *Config) DefaultWindow() (rollup.Window, error) {
	w, err := rollup.ParseWindow(c.Rollup.DefaultWindow)
	if err != nil {
		return "", err
	}
	for _, name := range c.Rollup.Windows {
		if configured, err := rollup.ParseWindow(name); err == nil && configured == w {
			return w, nil
		}
	}
	return "", fmt.Errorf("default window %q is not a configured window", w)
}

// PrintingPolicy returns the validated printing policy.
func (c *Config) PrintingPolicy() printing.Policy {
	p, _ := printing.ParsePolicy(c.Printing.Policy)
	return p
}

// RefresherConfig converts the rollup section into refresher settings.
func (c *Config) RefresherConfig() rollup.RefresherConfig {
	return rollup.RefresherConfig{
		Interval:        mustDuration(c.Rollup.RefreshInterval),
		TriggerInterval: mustDuration(c.Rollup.TriggerInterval),
		Parallelism:     c.Rollup.Parallelism,
		RunOnStart:      c.Rollup.RefreshOnStartup,
	}
}

func (c *Config) ShutdownTimeout() time.Duration {
	return mustDuration(c.Server.ShutdownTimeout)
}

func (c *Config) MoxfieldTimeout() time.Duration {
	return mustDuration(c.Moxfield.Timeout)
}

func (c *Config) DeckCacheTTL() time.Duration {
	return mustDuration(c.Moxfield.CacheTTL)
}

// mustDuration parses a duration already checked by Validate
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvIntList(key string, fallback []int) ([]int, error) {
	parts := getEnvList(key, nil)
	if parts == nil {
		return fallback, nil
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
