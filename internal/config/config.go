package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultAllowedOrigin is the production client admitted when nothing else
// is configured.
const DefaultAllowedOrigin = "https://server-hub-optimised-ten.vercel.app"

// Config holds all configuration for the relay.
type Config struct {
	Port string `env:"PORT" envDefault:"5000"`

	AllowedOrigins        []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"https://server-hub-optimised-ten.vercel.app"`
	AllowedOriginPatterns []string `env:"ALLOWED_ORIGIN_PATTERNS" envSeparator:","`
	AllowedOriginsFile    string   `env:"ALLOWED_ORIGINS_FILE"`
	AllowEmptyOrigin      bool     `env:"ALLOW_EMPTY_ORIGIN" envDefault:"true"`

	SendBuffer       int           `env:"SEND_BUFFER" envDefault:"256"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	PingInterval     time.Duration `env:"PING_INTERVAL" envDefault:"25s"`
	ReadLimit        int64         `env:"READ_LIMIT" envDefault:"65536"`
	UpgradeRateLimit float64       `env:"UPGRADE_RATE_LIMIT" envDefault:"20"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	TracingEnabled     bool   `env:"TRACING_ENABLED" envDefault:"false"`
	TracingServiceName string `env:"TRACING_SERVICE_NAME" envDefault:"relay"`
	TracingZipkinURL   string `env:"TRACING_ZIPKIN_URL" envDefault:"http://localhost:9411/api/v2/spans"`
}

// New loads the optional .env file and parses the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return Parse()
}

// Parse reads the current environment without touching .env.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WRITE_TIMEOUT must be positive, got %s", c.WriteTimeout))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("PING_INTERVAL must be positive, got %s", c.PingInterval))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("READ_LIMIT must be positive, got %d", c.ReadLimit))
	}
	if c.UpgradeRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("UPGRADE_RATE_LIMIT must be positive, got %g", c.UpgradeRateLimit))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string {
	return ":" + c.Port
}
