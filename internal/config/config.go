package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Auth      AuthConfig      `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Business  BusinessConfig  `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port               string        `mapstructure:"SERVER_PORT"`
	Host               string        `mapstructure:"SERVER_HOST"`
	Env                string        `mapstructure:"ENV"`
	ReadTimeout        time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout       time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	CORSAllowedOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"DATABASE_DRIVER"`
	URL             string        `mapstructure:"DATABASE_URL"`
	Host            string        `mapstructure:"DATABASE_HOST"`
	Port            string        `mapstructure:"DATABASE_PORT"`
	Name            string        `mapstructure:"DATABASE_NAME"`
	User            string        `mapstructure:"DATABASE_USER"`
	Password        string        `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string        `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `mapstructure:"DATABASE_AUTO_MIGRATE"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"REDIS_ENABLED"`
	Host     string        `mapstructure:"REDIS_HOST"`
	Port     string        `mapstructure:"REDIS_PORT"`
	Password string        `mapstructure:"REDIS_PASSWORD"`
	DB       int           `mapstructure:"REDIS_DB"`
	LoanTTL  time.Duration `mapstructure:"CACHE_LOAN_TTL"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"AUTH_ENABLED"`
	JWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
}

type SchedulerConfig struct {
	PayrollCron string `mapstructure:"SCHEDULER_PAYROLL_CRON"`
	Timezone    string `mapstructure:"SCHEDULER_TIMEZONE"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	DefaultIntervalDays       int    `mapstructure:"DEFAULT_INTERVAL_DAYS"`
	MaxIntervalDays           int    `mapstructure:"MAX_INTERVAL_DAYS"`
	MaxInstallments           int    `mapstructure:"MAX_INSTALLMENTS"`
	ScheduleMismatchTolerance string `mapstructure:"SCHEDULE_MISMATCH_TOLERANCE"`
	DefaultPageSize           int    `mapstructure:"DEFAULT_PAGE_SIZE"`
	MaxPageSize               int    `mapstructure:"MAX_PAGE_SIZE"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                 "8080",
	"SERVER_HOST":                 "0.0.0.0",
	"ENV":                         "development",
	"SERVER_READ_TIMEOUT":         "15s",
	"SERVER_WRITE_TIMEOUT":        "15s",
	"CORS_ALLOWED_ORIGINS":        "*",
	"DATABASE_DRIVER":             "postgres",
	"DATABASE_URL":                "",
	"DATABASE_HOST":               "localhost",
	"DATABASE_PORT":               "5432",
	"DATABASE_NAME":               "payroll",
	"DATABASE_USER":               "postgres",
	"DATABASE_PASSWORD":           "",
	"DATABASE_SSLMODE":            "disable",
	"DATABASE_MAX_OPEN_CONNS":     25,
	"DATABASE_MAX_IDLE_CONNS":     5,
	"DATABASE_CONN_MAX_LIFETIME":  "5m",
	"DATABASE_AUTO_MIGRATE":       false,
	"REDIS_ENABLED":               false,
	"REDIS_HOST":                  "localhost",
	"REDIS_PORT":                  "6379",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"CACHE_LOAN_TTL":              "10m",
	"AUTH_ENABLED":                false,
	"AUTH_JWT_SECRET":             "",
	"SCHEDULER_PAYROLL_CRON":      "0 0 2 * * *",
	"SCHEDULER_TIMEZONE":          "UTC",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
	"DEFAULT_INTERVAL_DAYS":       14,
	"MAX_INTERVAL_DAYS":           366,
	"MAX_INSTALLMENTS":            520,
	"SCHEDULE_MISMATCH_TOLERANCE": "0",
	"DEFAULT_PAGE_SIZE":           15,
	"MAX_PAGE_SIZE":               100,
	"HEALTH_CHECK_TIMEOUT":        "5s",
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// Values already present in the environment win over .env
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Read from environment variables
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", file, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case "postgres":
	case "sqlite3":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the sqlite3 driver")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite3, got %q", c.Database.Driver)
	}

	if c.Business.DefaultIntervalDays <= 0 {
		return fmt.Errorf("DEFAULT_INTERVAL_DAYS must be greater than 0")
	}
	if c.Business.MaxIntervalDays < c.Business.DefaultIntervalDays {
		return fmt.Errorf("MAX_INTERVAL_DAYS must not be below DEFAULT_INTERVAL_DAYS")
	}
	if c.Business.MaxInstallments <= 0 {
		return fmt.Errorf("MAX_INSTALLMENTS must be greater than 0")
	}

	if c.Business.DefaultPageSize <= 0 || c.Business.MaxPageSize < c.Business.DefaultPageSize {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be positive and not exceed MAX_PAGE_SIZE")
	}

	tolerance, err := decimal.NewFromString(c.Business.ScheduleMismatchTolerance)
	if err != nil {
		return fmt.Errorf("SCHEDULE_MISMATCH_TOLERANCE must be a valid decimal: %w", err)
	}
	if tolerance.IsNegative() {
		return fmt.Errorf("SCHEDULE_MISMATCH_TOLERANCE must not be negative")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when AUTH_ENABLED is set")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	// Validate health check timeout
	if _, err := time.ParseDuration(c.Health.Timeout); err != nil {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a valid duration: %w", err)
	}

	return nil
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Addr returns host:port of the Redis server.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetCORSAllowedOrigins splits the comma separated origin list
func (c *Config) GetCORSAllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// GetSchedulerLocation returns the scheduler timezone
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Health.Timeout)
	return timeout
}
