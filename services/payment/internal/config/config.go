package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/JRebertt/shortcart-v3/pkg/config"
	"github.com/JRebertt/shortcart-v3/pkg/database"
	"github.com/JRebertt/shortcart-v3/pkg/tracing"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/webhook"
)

// Config holds all configuration for the payment service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"PAYMENT_HTTP_PORT" envDefault:"8005"`
	ShutdownTimeout time.Duration `env:"PAYMENT_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// PostgreSQL
	PostgresHost         string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort         int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser         string `env:"POSTGRES_USER" envDefault:"shortcart"`
	PostgresPass         string `env:"POSTGRES_PASSWORD" envDefault:"shortcart_secret"`
	PostgresDB           string `env:"PAYMENT_DB_NAME" envDefault:"shortcart"`
	PostgresSSL          string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns           int32  `env:"PAYMENT_DB_MAX_CONNS" envDefault:"20"`
	DBMinConns           int32  `env:"PAYMENT_DB_MIN_CONNS" envDefault:"2"`
	SlowQueryThresholdMs int    `env:"PAYMENT_SLOW_QUERY_MS" envDefault:"200"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"PAYMENT_REDIS_DB" envDefault:"0"`

	// Kafka. Without brokers notifications are delivered in-process.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Gateways
	HealthCheckTimeout time.Duration `env:"PAYMENT_HEALTH_CHECK_TIMEOUT" envDefault:"5s"`
	PaymentTimeout     time.Duration `env:"PAYMENT_GATEWAY_TIMEOUT" envDefault:"30s"`
	RegistryTTL        time.Duration `env:"PAYMENT_REGISTRY_TTL" envDefault:"5m"`
	PlatformFeeBP      int64         `env:"PAYMENT_PLATFORM_FEE_BP" envDefault:"50"`
	StatusTTL          time.Duration `env:"PAYMENT_STATUS_TTL" envDefault:"720h"`

	// Provider circuit breaker
	CBTimeout      time.Duration `env:"PAYMENT_CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"PAYMENT_CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32        `env:"PAYMENT_CB_MIN_REQUESTS" envDefault:"5"`

	// Outbound webhooks
	WebhookTimeout      time.Duration   `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`
	WebhookMaxRetries   int             `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookRetryDelays  []time.Duration `env:"WEBHOOK_RETRY_DELAYS" envDefault:"1s,5s,15s" envSeparator:","`
	NotificationTimeout time.Duration   `env:"WEBHOOK_NOTIFICATION_TIMEOUT" envDefault:"2m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load payment config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("PAYMENT_HTTP_PORT %d out of range", c.HTTPPort))
	}
	if c.PlatformFeeBP < 0 || c.PlatformFeeBP > 10_000 {
		errs = append(errs, fmt.Errorf("PAYMENT_PLATFORM_FEE_BP must be within 0..10000, got %d", c.PlatformFeeBP))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within 0..1, got %v", c.OTELSampleRate))
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1 {
		errs = append(errs, fmt.Errorf("PAYMENT_CB_FAILURE_RATIO must be within (0,1], got %v", c.CBFailureRatio))
	}
	if c.WebhookMaxRetries < 0 {
		errs = append(errs, errors.New("WEBHOOK_MAX_RETRIES must not be negative"))
	}
	if c.WebhookMaxRetries > 0 && len(c.WebhookRetryDelays) == 0 {
		errs = append(errs, errors.New("WEBHOOK_RETRY_DELAYS is required when retries are enabled"))
	}
	for _, d := range c.WebhookRetryDelays {
		if d < 0 {
			errs = append(errs, fmt.Errorf("WEBHOOK_RETRY_DELAYS contains negative delay %s", d))
			break
		}
	}
	for name, d := range map[string]time.Duration{
		"PAYMENT_HEALTH_CHECK_TIMEOUT": c.HealthCheckTimeout,
		"PAYMENT_GATEWAY_TIMEOUT":      c.PaymentTimeout,
		"WEBHOOK_TIMEOUT":              c.WebhookTimeout,
		"WEBHOOK_NOTIFICATION_TIMEOUT": c.NotificationTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether notifications go through Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	pg.MaxConns = c.DBMaxConns
	pg.MinConns = c.DBMinConns
	return pg
}

func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Host: c.RedisHost, Port: c.RedisPort, Password: c.RedisPass, DB: c.RedisDB}
}

func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	tc.Enabled = c.OTELEnabled
	return tc
}

// RetryPolicy returns the outbound webhook retry schedule.
func (c *Config) RetryPolicy() webhook.RetryPolicy {
	return webhook.RetryPolicy{MaxRetries: c.WebhookMaxRetries, Delays: c.WebhookRetryDelays}
}
