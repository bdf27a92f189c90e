/**
 * Configuration for the OCR worker
 *
 * Loads configuration from environment variables.
 */

package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL  string
	QueueName string

	// PostgreSQL configuration
	DatabaseURL string

	// Recognition configuration
	Languages   []string
	PageSegMode int
	EngineMode  int

	// Engine configuration
	WorkerCount     int
	Preprocess      bool
	DetectStructure bool
	EnhanceImages   bool

	// Queue configuration
	Concurrency       int
	ProcessingTimeout int // milliseconds

	// Node environment
	Env string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "ocr:jobs"),
		DatabaseURL:       getEnvOrThrow("DATABASE_URL"),
		Languages:         getEnvAsListOrDefault("OCR_LANGUAGES", []string{"eng"}),
		PageSegMode:       getEnvAsIntOrDefault("OCR_PAGE_SEG_MODE", 3),
		EngineMode:        getEnvAsIntOrDefault("OCR_ENGINE_MODE", 1),
		WorkerCount:       getEnvAsIntOrDefault("OCR_WORKER_COUNT", defaultWorkerCount()),
		Preprocess:        getEnvAsBoolOrDefault("OCR_PREPROCESS", true),
		DetectStructure:   getEnvAsBoolOrDefault("OCR_DETECT_STRUCTURE", true),
		EnhanceImages:     getEnvAsBoolOrDefault("OCR_ENHANCE_IMAGES", false),
		Concurrency:       getEnvAsIntOrDefault("QUEUE_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		Env:               getEnvOrDefault("APP_ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerCount < 1 || c.WorkerCount > 64 {
		return fmt.Errorf("OCR_WORKER_COUNT must be between 1 and 64, got %d", c.WorkerCount)
	}

	if c.Concurrency < 1 || c.Concurrency > 100 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be between 1 and 100, got %d", c.Concurrency)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	return nil
}

// defaultWorkerCount is one less than available hardware parallelism, minimum 1.
func defaultWorkerCount() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or panics when unset
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault gets environment variable as a comma- or plus-separated
// list, or returns default
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	valueStr = strings.ReplaceAll(valueStr, "+", ",")
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}

	if len(values) == 0 {
		return defaultValue
	}
	return values
}
