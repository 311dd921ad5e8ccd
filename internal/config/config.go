/**
 * Configuration for the BloodMate donor service
 *
 * Loads configuration from environment variables, optionally layered on top of
 * a YAML file named by CONFIG_FILE. Environment always wins.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	defaultMaxUploadBytes = 10 * 1024 * 1024 // 10MiB
)

// Config holds service configuration
type Config struct {
	// HTTP server
	Port           string        `yaml:"port"`
	PublicBaseURL  string        `yaml:"public_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`

	// Database configuration
	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`
	AutoMigrate    bool   `yaml:"auto_migrate"`

	// Redis configuration (optional: enables lookup cache and page cleanup)
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Upload storage
	UploadDir               string   `yaml:"upload_dir"`
	UploadFilenameStrategy  string   `yaml:"upload_filename_strategy"`
	MaxUploadBytes          int64    `yaml:"max_upload_bytes"`
	AllowedUploadExtensions []string `yaml:"allowed_upload_extensions"`

	// OCR / rasterization
	OCRLanguage        string        `yaml:"ocr_language"`
	TessdataPrefix     string        `yaml:"tessdata_prefix"`
	OCRTimeout         time.Duration `yaml:"ocr_timeout"`
	RasterTimeout      time.Duration `yaml:"raster_timeout"`
	RasterDPI          float64       `yaml:"raster_dpi"`
	OCRPageConcurrency int           `yaml:"ocr_page_concurrency"`
	RasterRetention    time.Duration `yaml:"raster_retention"`

	// Background worker
	WorkerConcurrency int `yaml:"worker_concurrency"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Port:                    "5000",
		RequestTimeout:          2 * time.Minute,
		AllowedOrigins:          []string{"*"},
		DatabaseDriver:          DriverPostgres,
		AutoMigrate:             true,
		CacheTTL:                10 * time.Minute,
		UploadDir:               "uploads",
		UploadFilenameStrategy:  "timestamp",
		MaxUploadBytes:          defaultMaxUploadBytes,
		AllowedUploadExtensions: []string{"png", "jpg", "jpeg", "pdf"},
		OCRLanguage:             "eng",
		OCRTimeout:              60 * time.Second,
		RasterTimeout:           60 * time.Second,
		RasterDPI:               200,
		OCRPageConcurrency:      2,
		RasterRetention:         24 * time.Hour,
		WorkerConcurrency:       2,
		LogLevel:                "info",
		LogFormat:               "console",
	}
}

// LoadConfig loads configuration from CONFIG_FILE (if set) and environment variables
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.PublicBaseURL = getEnvOrDefault("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.AllowedOrigins = getEnvAsListOrDefault("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.DatabaseDriver = getEnvOrDefault("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.UploadDir = getEnvOrDefault("UPLOAD_DIR", cfg.UploadDir)
	cfg.UploadFilenameStrategy = getEnvOrDefault("UPLOAD_FILENAME_STRATEGY", cfg.UploadFilenameStrategy)
	cfg.AllowedUploadExtensions = getEnvAsListOrDefault("ALLOWED_UPLOAD_EXTENSIONS", cfg.AllowedUploadExtensions)
	cfg.OCRLanguage = getEnvOrDefault("OCR_LANGUAGE", cfg.OCRLanguage)
	cfg.TessdataPrefix = getEnvOrDefault("TESSDATA_PREFIX", cfg.TessdataPrefix)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)

	var err error
	if cfg.AutoMigrate, err = getEnvAsBoolOrDefault("AUTO_MIGRATE", cfg.AutoMigrate); err != nil {
		return err
	}
	if cfg.MaxUploadBytes, err = getEnvAsInt64OrDefault("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes); err != nil {
		return err
	}
	if cfg.OCRPageConcurrency, err = getEnvAsIntOrDefault("OCR_PAGE_CONCURRENCY", cfg.OCRPageConcurrency); err != nil {
		return err
	}
	if cfg.WorkerConcurrency, err = getEnvAsIntOrDefault("WORKER_CONCURRENCY", cfg.WorkerConcurrency); err != nil {
		return err
	}
	if cfg.RasterDPI, err = getEnvAsFloatOrDefault("RASTER_DPI", cfg.RasterDPI); err != nil {
		return err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"CACHE_TTL", &cfg.CacheTTL},
		{"OCR_TIMEOUT", &cfg.OCRTimeout},
		{"RASTER_TIMEOUT", &cfg.RasterTimeout},
		{"RASTER_RETENTION", &cfg.RasterRetention},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvAsDurationOrDefault(d.key, *d.dst); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}

	if c.UploadFilenameStrategy != "timestamp" && c.UploadFilenameStrategy != "uuid" {
		return fmt.Errorf("UPLOAD_FILENAME_STRATEGY must be timestamp or uuid, got %q", c.UploadFilenameStrategy)
	}

	if c.MaxUploadBytes < 1024 || c.MaxUploadBytes > 100*1024*1024 { // 1KB to 100MB
		return fmt.Errorf("MAX_UPLOAD_BYTES must be between 1KB and 100MB, got %d", c.MaxUploadBytes)
	}

	if len(c.AllowedUploadExtensions) == 0 {
		return fmt.Errorf("ALLOWED_UPLOAD_EXTENSIONS must not be empty")
	}

	if c.OCRLanguage == "" {
		return fmt.Errorf("OCR_LANGUAGE is required")
	}

	if c.OCRTimeout <= 0 || c.RasterTimeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT and RASTER_TIMEOUT must be positive")
	}

	if c.RasterDPI < 50 || c.RasterDPI > 600 {
		return fmt.Errorf("RASTER_DPI must be between 50 and 600, got %v", c.RasterDPI)
	}

	if c.OCRPageConcurrency < 1 || c.OCRPageConcurrency > 16 {
		return fmt.Errorf("OCR_PAGE_CONCURRENCY must be between 1 and 16, got %d", c.OCRPageConcurrency)
	}

	if c.RasterRetention < 0 {
		return fmt.Errorf("RASTER_RETENTION must not be negative")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsListOrDefault splits a comma separated variable, lower-casing entries
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsInt64OrDefault(key string, defaultValue int64) (int64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}
