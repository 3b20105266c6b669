package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the payables service.
type Config struct {
	ServiceName    string `envconfig:"SERVICE_NAME" default:"be-ap-payables"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"dev"`
	Environment    string `envconfig:"ENVIRONMENT" default:"development"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	HTTPPort         int           `envconfig:"HTTP_PORT" default:"8086"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	HTTPIdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// InvoicingTransport selects the Invoicing API client: rest or grpc.
	InvoicingTransport string        `envconfig:"INVOICING_TRANSPORT" default:"rest"`
	InvoicingBaseURL   string        `envconfig:"INVOICING_BASE_URL" default:"http://localhost:9080"`
	InvoicingGRPCAddr  string        `envconfig:"INVOICING_GRPC_ADDR" default:"localhost:9085"`
	InvoicingAPIToken  string        `envconfig:"INVOICING_API_TOKEN"`
	InvoicingTimeout   time.Duration `envconfig:"INVOICING_TIMEOUT" default:"20s"`

	RedisAddr          string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	OffPlatformLockTTL time.Duration `envconfig:"OFF_PLATFORM_LOCK_TTL" default:"10s"`

	NATSURL       string `envconfig:"NATS_URL"`
	EventsSubject string `envconfig:"EVENTS_SUBJECT_PREFIX" default:"payables"`

	DocumentAIProjectID   string `envconfig:"DOCUMENT_AI_PROJECT_ID"`
	DocumentAILocation    string `envconfig:"DOCUMENT_AI_LOCATION" default:"us"`
	DocumentAIProcessorID string `envconfig:"DOCUMENT_AI_PROCESSOR_ID"`
	DocumentAICredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`

	OCRPollInterval    time.Duration `envconfig:"OCR_POLL_INTERVAL" default:"2500ms"`
	OCRPollMaxInterval time.Duration `envconfig:"OCR_POLL_MAX_INTERVAL" default:"5s"`
	OCRPollMaxAttempts int           `envconfig:"OCR_POLL_MAX_ATTEMPTS" default:"60"`
	OCRPollTimeout     time.Duration `envconfig:"OCR_POLL_TIMEOUT" default:"3m"`
	OCRJobTTL          time.Duration `envconfig:"OCR_JOB_TTL" default:"30m"`

	// CurrencyMinorUnitMode is legacy (always two decimals) or iso.
	CurrencyMinorUnitMode string `envconfig:"CURRENCY_MINOR_UNIT_MODE" default:"legacy"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings and bounds.
func (c *Config) Validate() error {
	switch c.InvoicingTransport {
	case "rest", "grpc":
	default:
		return fmt.Errorf("invalid INVOICING_TRANSPORT %q: expected rest or grpc", c.InvoicingTransport)
	}
	switch c.CurrencyMinorUnitMode {
	case "legacy", "iso":
	default:
		return fmt.Errorf("invalid CURRENCY_MINOR_UNIT_MODE %q: expected legacy or iso", c.CurrencyMinorUnitMode)
	}
	if c.OCRPollMaxAttempts <= 0 {
		return errors.New("OCR_POLL_MAX_ATTEMPTS must be positive")
	}
	if c.OCRPollTimeout <= 0 {
		return errors.New("OCR_POLL_TIMEOUT must be positive")
	}
	return nil
}
