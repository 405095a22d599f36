// Package config loads the front end configuration from the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

// Config holds all application configuration
type Config struct {
	Port               string
	Address            string
	Env                Environment
	LogLevel           string
	LogDir             string
	LogRetentionWeeks  int   // Number of weeks to keep log files
	MaxLogFileSize     int64 // Maximum log file size in bytes
	MaxRequestBody     int64 // Maximum request body size in bytes
	MaxHeaderSize      int64 // Maximum header size in bytes
	APIURL             string
	RateLimitRate      int64 // Tokens refilled per second
	RateLimitCapacity  int64
	SessionIdleMinutes int
}

// LoadEnvFile loads variables from a .env file without overriding the
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnvWithDefault("PORT", "3000"),
		Address:            getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:                Environment(strings.ToLower(getEnvWithDefault("ENV", string(EnvDevelopment)))),
		LogLevel:           strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogDir:             getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks:  getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:     getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB
		MaxRequestBody:     getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB
		MaxHeaderSize:      getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB
		APIURL:             strings.TrimRight(getEnvWithDefault("API_URL", "http://localhost:8000"), "/"),
		RateLimitRate:      getInt64EnvWithDefault("RATE_LIMIT_RATE", 10),
		RateLimitCapacity:  getInt64EnvWithDefault("RATE_LIMIT_CAPACITY", 200),
		SessionIdleMinutes: getIntEnvWithDefault("SESSION_IDLE_MINUTES", 30),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ListenAddr returns address:port
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, c.Port)
}

func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}
	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		return fmt.Errorf("invalid LOG_DIR: cannot be empty")
	}
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}
	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}
	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}
	if err := validateAPIURL(cfg.APIURL); err != nil {
		return fmt.Errorf("invalid API_URL: %w", err)
	}
	if err := validateRateLimit(cfg.RateLimitRate, cfg.RateLimitCapacity); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}
	if cfg.SessionIdleMinutes < 1 || cfg.SessionIdleMinutes > 24*60 {
		return fmt.Errorf("invalid SESSION_IDLE_MINUTES: must be between 1 and 1440, got: %d", cfg.SessionIdleMinutes)
	}
	return nil
}

func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}
	return nil
}

func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}
	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}
	return nil
}

func validateEnv(env Environment) error {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
		return nil
	case "":
		return fmt.Errorf("ENV cannot be empty")
	}
	return fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", env)
}

func validateLogLevel(logLevel string) error {
	switch logLevel {
	case "debug", "info", "warn", "error":
		return nil
	case "":
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}
	return fmt.Errorf("LOG_LEVEL must be one of: [debug info warn error], got: %s", logLevel)
}

func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}
	if size > 100*1024*1024 {
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}
	return nil
}

func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}
	if weeks > 52 {
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}
	return nil
}

func validateMaxLogFileSize(size int64) error {
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}
	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}
	return nil
}

func validateAPIURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("API_URL must be an absolute URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API_URL scheme must be http or https, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("API_URL must have a host")
	}
	return nil
}

func validateRateLimit(rate, capacity int64) error {
	if rate <= 0 {
		return fmt.Errorf("RATE_LIMIT_RATE must be positive, got: %d", rate)
	}
	if capacity < rate {
		return fmt.Errorf("RATE_LIMIT_CAPACITY (%d) must be at least RATE_LIMIT_RATE (%d)", capacity, rate)
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvVars returns every variable Load reads
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"API_URL",
		"RATE_LIMIT_RATE",
		"RATE_LIMIT_CAPACITY",
		"SESSION_IDLE_MINUTES",
	}
}
