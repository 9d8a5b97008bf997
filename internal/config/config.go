// Package config reads the application configuration from the environment
// once at start-up. A .env file in the working directory is honoured;
// variables already set in the environment take precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Page sources.
const (
	SourceJSON = "json"
	SourceRSS  = "rss"
)

// DefaultUserAgent identifies the client when TOPPOSTS_USER_AGENT is unset.
const DefaultUserAgent = "cli:top-posts-client:1.0 (by /u/top-posts-client)"

// Config is the application configuration. Treat it as immutable.
type Config struct {
	// Source
	BaseURL    string
	Listing    string
	TimeWindow string
	PageSize   int
	UserAgent  string
	Source     string

	// Pagination
	Buffer int

	// HTTP
	RequestsPerSecond float64
	MaxRetries        int
	HTTPTimeout       time.Duration

	// Images
	ImageConcurrency int

	// Redis (optional)
	RedisURL string

	// Metrics (optional)
	MetricsAddr string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads the given env file (if present) and the environment.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{
		BaseURL:           getEnvString("TOPPOSTS_BASE_URL", "https://www.reddit.com"),
		Listing:           getEnvString("TOPPOSTS_LISTING", "/top"),
		TimeWindow:        getEnvString("TOPPOSTS_TIME_WINDOW", "day"),
		PageSize:          getEnvInt("TOPPOSTS_PAGE_SIZE", 25),
		UserAgent:         getEnvString("TOPPOSTS_USER_AGENT", DefaultUserAgent),
		Source:            strings.ToLower(getEnvString("TOPPOSTS_SOURCE", SourceJSON)),
		Buffer:            getEnvInt("TOPPOSTS_BUFFER", 5),
		RequestsPerSecond: getEnvFloat("TOPPOSTS_REQUESTS_PER_SECOND", 1),
		MaxRetries:        getEnvInt("TOPPOSTS_MAX_RETRIES", 3),
		HTTPTimeout:       getEnvDuration("TOPPOSTS_HTTP_TIMEOUT", 15*time.Second),
		ImageConcurrency:  getEnvInt("TOPPOSTS_IMAGE_CONCURRENCY", 4),
		RedisURL:          os.Getenv("REDIS_URL"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.Source != SourceJSON && c.Source != SourceRSS {
		problems = append(problems, fmt.Sprintf("TOPPOSTS_SOURCE must be %q or %q (got %q)", SourceJSON, SourceRSS, c.Source))
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		problems = append(problems, fmt.Sprintf("TOPPOSTS_PAGE_SIZE must be between 1 and 100 (got %d)", c.PageSize))
	}
	if c.Buffer < 1 {
		problems = append(problems, fmt.Sprintf("TOPPOSTS_BUFFER must be >= 1 (got %d)", c.Buffer))
	}
	if c.RequestsPerSecond <= 0 {
		problems = append(problems, fmt.Sprintf("TOPPOSTS_REQUESTS_PER_SECOND must be > 0 (got %g)", c.RequestsPerSecond))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("TOPPOSTS_MAX_RETRIES must be >= 0 (got %d)", c.MaxRetries))
	}
	if c.ImageConcurrency < 1 {
		problems = append(problems, fmt.Sprintf("TOPPOSTS_IMAGE_CONCURRENCY must be >= 1 (got %d)", c.ImageConcurrency))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
