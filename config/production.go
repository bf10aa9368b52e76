// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Gateway    GatewayConfig    `json:"gateway"`
	Commission CommissionConfig `json:"commission"`
	Locks      LockConfig       `json:"locks"`
	Admin      AdminConfig      `json:"admin"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host" env:"DB_HOST" envDefault:"localhost"`
	Port            int           `json:"port" env:"DB_PORT" envDefault:"5432"`
	Name            string        `json:"name" env:"DB_NAME" envDefault:"marketplace_settlement"`
	User            string        `json:"user" env:"DB_USER" envDefault:"postgres"`
	Password        string        `json:"password" env:"DB_PASSWORD"`
	SSLMode         string        `json:"ssl_mode" env:"DB_SSL_MODE" envDefault:"disable"`
	MaxOpenConns    int           `json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
	SlowQueryLog    bool          `json:"slow_query_log" env:"DB_SLOW_QUERY_LOG" envDefault:"true"`
	SlowQueryTime   time.Duration `json:"slow_query_time" env:"DB_SLOW_QUERY_TIME" envDefault:"500ms"`
	AutoMigrate     bool          `json:"auto_migrate" env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type ServerConfig struct {
	Host            string        `json:"host" env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `json:"port" env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	BodyLimit       int           `json:"body_limit" env:"SERVER_BODY_LIMIT" envDefault:"1048576"`
	TrustedProxies  []string      `json:"trusted_proxies" env:"SERVER_TRUSTED_PROXIES" envSeparator:","`
	ProxyHeader     string        `json:"proxy_header" env:"SERVER_PROXY_HEADER"`
}

type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL" envDefault:"info"`     // debug, info, warn, error
	Format     string `json:"format" env:"LOG_FORMAT" envDefault:"json"`   // json, text
	Output     string `json:"output" env:"LOG_OUTPUT" envDefault:"stdout"` // stdout, file, both
	FilePath   string `json:"file_path" env:"LOG_FILE_PATH" envDefault:"logs/settlement.log"`
	MaxSize    int    `json:"max_size" env:"LOG_MAX_SIZE" envDefault:"100"` // MB
	MaxBackups int    `json:"max_backups" env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAge     int    `json:"max_age" env:"LOG_MAX_AGE" envDefault:"30"` // days
	Compress   bool   `json:"compress" env:"LOG_COMPRESS" envDefault:"true"`
	AddSource  bool   `json:"add_source" env:"LOG_ADD_SOURCE" envDefault:"false"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `json:"path" env:"METRICS_PATH" envDefault:"/metrics"`
}

type CacheConfig struct {
	Enabled             bool          `json:"enabled" env:"CACHE_ENABLED" envDefault:"false"`
	RedisURL            string        `json:"redis_url" env:"CACHE_REDIS_URL"`
	RedisDB             int           `json:"redis_db" env:"CACHE_REDIS_DB" envDefault:"0"`
	RedisPrefix         string        `json:"redis_prefix" env:"CACHE_REDIS_PREFIX" envDefault:"settlement:"`
	HealthCheckInterval time.Duration `json:"health_check_interval" env:"CACHE_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// GatewayConfig configures the card payment gateway client
type GatewayConfig struct {
	BaseURL string        `json:"base_url" env:"GATEWAY_BASE_URL" envDefault:"https://api.stripe.com"`
	APIKey  string        `json:"-" env:"GATEWAY_API_KEY"`
	Timeout time.Duration `json:"timeout" env:"GATEWAY_TIMEOUT" envDefault:"20s"`
}

// CommissionConfig configures the legacy per-line commission fallback
type CommissionConfig struct {
	DefaultRateEnabled bool            `json:"default_rate_enabled" env:"COMMISSION_DEFAULT_RATE_ENABLED" envDefault:"false"`
	DefaultRate        decimal.Decimal `json:"default_rate" env:"COMMISSION_DEFAULT_RATE" envDefault:"0"` // percent
	DefaultIncludeTax  bool            `json:"default_include_tax" env:"COMMISSION_DEFAULT_INCLUDE_TAX" envDefault:"false"`
}

// LockConfig configures per split payment locking
type LockConfig struct {
	TTL  time.Duration `json:"ttl" env:"LOCK_TTL" envDefault:"30s"`
	Wait time.Duration `json:"wait" env:"LOCK_WAIT" envDefault:"10s"`
}

// AdminConfig guards the commission rule admin routes; an empty key leaves them open to the trusted network
type AdminConfig struct {
	APIKey string `json:"-" env:"ADMIN_API_KEY"`
}

type DeploymentConfig struct {
	Environment string `json:"environment" env:"APP_ENV" envDefault:"production"`
	Version     string `json:"version" env:"APP_VERSION" envDefault:"dev"`
	CommitHash  string `json:"commit_hash" env:"APP_COMMIT_HASH"`
	BuildTime   string `json:"build_time" env:"APP_BUILD_TIME"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &ProductionConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 && ((strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
			(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`))) {
			value = value[1 : len(value)-1]
		}

		// Set environment variable if not already set
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// ValidateProductionConfig validates the loaded configuration and reports every problem at once
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate logging configuration
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Logging.Level) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
	}
	validOutputs := []string{"stdout", "file", "both"}
	if !slices.Contains(validOutputs, cfg.Logging.Output) {
		errors = append(errors, fmt.Sprintf("LOG_OUTPUT must be one of: %v", validOutputs))
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errors = append(errors, "LOG_FILE_PATH is required when logging to a file")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
	}

	// Validate gateway configuration
	if cfg.Gateway.BaseURL == "" {
		errors = append(errors, "GATEWAY_BASE_URL is required")
	}
	if cfg.Gateway.APIKey == "" {
		errors = append(errors, "GATEWAY_API_KEY is required")
	}
	if cfg.Gateway.Timeout <= 0 {
		errors = append(errors, "GATEWAY_TIMEOUT must be positive")
	}

	// Validate commission fallback
	if cfg.Commission.DefaultRateEnabled {
		if cfg.Commission.DefaultRate.IsNegative() || cfg.Commission.DefaultRate.GreaterThan(decimal.NewFromInt(100)) {
			errors = append(errors, "COMMISSION_DEFAULT_RATE must be between 0 and 100")
		}
	}

	// Validate locks
	if cfg.Locks.TTL <= 0 {
		errors = append(errors, "LOCK_TTL must be positive")
	}
	if cfg.Locks.Wait <= 0 {
		errors = append(errors, "LOCK_WAIT must be positive")
	}
	// a lease that lapses mid gateway call lets a second writer in
	if cfg.Locks.TTL > 0 && cfg.Gateway.Timeout > 0 && cfg.Locks.TTL <= cfg.Gateway.Timeout {
		errors = append(errors, "LOCK_TTL must exceed GATEWAY_TIMEOUT")
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
