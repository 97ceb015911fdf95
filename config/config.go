package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	PollInterval       time.Duration
	RequestRate        float64 // requests per second, 0 disables limiting
	RequestBurst       int
	HistoryLimit       int
	HistoryCacheSize   int
	HistoryCacheTTL    time.Duration
	OutputFile         string
	OutputFormat       string // csv, json, or dual
	Workers            int
	BatchSize          int
	PipelineBufferSize int
	DedupeMaxSize      int
	UserAgent          string
	MetricsAddr        string
	Verbose            bool
}

// DefaultConfig returns defaults for a backend running locally on port 5000.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "http://localhost:5000",
		Timeout:            10 * time.Second,
		MaxRetries:         3,
		RetryBackoff:       500 * time.Millisecond,
		PollInterval:       3 * time.Second,
		RequestRate:        0,
		RequestBurst:       1,
		HistoryLimit:       10,
		HistoryCacheSize:   16,
		HistoryCacheTTL:    30 * time.Second,
		OutputFile:         "output/results.csv",
		OutputFormat:       "csv",
		Workers:            2,
		BatchSize:          64,
		PipelineBufferSize: 512,
		DedupeMaxSize:      100000,
		UserAgent:          "go-scrape-jobs/1.0",
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.RequestRate < 0 {
		return fmt.Errorf("request rate cannot be negative")
	}
	if c.RequestRate > 0 && c.RequestBurst <= 0 {
		return fmt.Errorf("request burst must be positive when a request rate is set")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive")
	}
	if c.HistoryCacheSize < 0 {
		return fmt.Errorf("history cache size cannot be negative")
	}
	if c.HistoryCacheTTL < 0 {
		return fmt.Errorf("history cache ttl cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// ApplyEnv overrides fields from SCRAPEJOBS_* environment variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("SCRAPEJOBS_BASE_URL"); ok {
		c.BaseURL = value
	}
	if value, ok, err := EnvInt("SCRAPEJOBS_MAX_RETRIES"); err != nil {
		return fmt.Errorf("SCRAPEJOBS_MAX_RETRIES: %w", err)
	} else if ok {
		c.MaxRetries = value
	}
	if value, ok, err := EnvDuration("SCRAPEJOBS_RETRY_BACKOFF"); err != nil {
		return fmt.Errorf("SCRAPEJOBS_RETRY_BACKOFF: %w", err)
	} else if ok {
		c.RetryBackoff = value
	}
	if value, ok, err := EnvDuration("SCRAPEJOBS_POLL_INTERVAL"); err != nil {
		return fmt.Errorf("SCRAPEJOBS_POLL_INTERVAL: %w", err)
	} else if ok {
		c.PollInterval = value
	}
	if value, ok, err := EnvDuration("SCRAPEJOBS_TIMEOUT"); err != nil {
		return fmt.Errorf("SCRAPEJOBS_TIMEOUT: %w", err)
	} else if ok {
		c.Timeout = value
	}
	if value, ok, err := EnvFloat("SCRAPEJOBS_RATE"); err != nil {
		return fmt.Errorf("SCRAPEJOBS_RATE: %w", err)
	} else if ok {
		c.RequestRate = value
	}
	if value, ok := EnvString("SCRAPEJOBS_OUTPUT"); ok {
		c.OutputFile = value
	}
	if value, ok := EnvString("SCRAPEJOBS_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// EnvFloat parses key as a float.
func EnvFloat(key string) (float64, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}

// EnvDuration parses key as a Go duration ("3s") or a bare millisecond count ("3000").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, true, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, err
	}
	return d, true, nil
}
