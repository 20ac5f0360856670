package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const devJWTSigningKey = "dev-secret-key-change-in-production"

// DeviceAuthMode selects which key verifies device telemetry.
type DeviceAuthMode string

const (
	// DeviceAuthPerDevice verifies with a key derived from the device's own
	// registration, so one device cannot sign for another.
	DeviceAuthPerDevice DeviceAuthMode = "per_device"
	// DeviceAuthFleet verifies every device against the shared fleet secret.
	DeviceAuthFleet DeviceAuthMode = "fleet"
)

// Server captures HTTP server level configuration.
type Server struct {
	Environment     string        `env:"INSTAHELP_ENV"              envDefault:"development"`
	Addr            string        `env:"INSTAHELP_ADDR"             envDefault:":8080"`
	LogLevel        string        `env:"INSTAHELP_LOG_LEVEL"        envDefault:"info"`
	FrontendURL     string        `env:"INSTAHELP_FRONTEND_URL"     envDefault:"http://localhost:3000"`
	RequestTimeout  time.Duration `env:"INSTAHELP_REQUEST_TIMEOUT"  envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"INSTAHELP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	DatabaseURL     string        `env:"INSTAHELP_DATABASE_URL"`

	Auth      AuthConfig      `envPrefix:"INSTAHELP_JWT_"`
	Crypto    CryptoConfig    `envPrefix:"INSTAHELP_MASTER_KEY_"`
	Device    DeviceConfig    `envPrefix:"INSTAHELP_DEVICE_"`
	Tokens    TokenConfig     `envPrefix:"INSTAHELP_TOKEN_"`
	Redis     RedisConfig     `envPrefix:"INSTAHELP_REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"INSTAHELP_KAFKA_"`
	Audit     AuditConfig     `envPrefix:"INSTAHELP_AUDIT_"`
	Notify    NotifyConfig    `envPrefix:"INSTAHELP_NOTIFY_"`
	Tracing   TracingConfig   `envPrefix:"INSTAHELP_OTEL_"`
	Governor  GovernorConfig  `envPrefix:"INSTAHELP_GOVERNANCE_"`
	RateLimit RateLimitConfig `envPrefix:"INSTAHELP_RATELIMIT_"`
}

// AuthConfig holds bearer token validation settings.
type AuthConfig struct {
	SigningKey string        `env:"SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string        `env:"ISSUER"      envDefault:"instahelp"`
	Audience   string        `env:"AUDIENCE"    envDefault:"instahelp-api"`
	TTL        time.Duration `env:"TTL"         envDefault:"1h"`
}

// CryptoConfig points at the PEM-encoded master key pair.
type CryptoConfig struct {
	PrivatePath string `env:"PRIVATE_PATH"`
	PublicPath  string `env:"PUBLIC_PATH"`
}

// DeviceConfig controls telemetry authentication.
type DeviceConfig struct {
	HMACSecret   string         `env:"HMAC_SECRET"`
	AuthMode     DeviceAuthMode `env:"AUTH_MODE"     envDefault:"per_device"`
	ReplayWindow time.Duration  `env:"REPLAY_WINDOW" envDefault:"10m"`
}

// TokenConfig controls capability tokens. A zero TTL means tokens live
// until revoked.
type TokenConfig struct {
	TTL time.Duration `env:"TTL" envDefault:"0s"`
}

// RedisConfig holds connection pool settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT"  envDefault:"3s"`
}

// KafkaConfig enables the audit mirror when Brokers is non-empty.
type KafkaConfig struct {
	Brokers     []string `env:"BROKERS"     envSeparator:","`
	Topic       string   `env:"TOPIC"       envDefault:"instahelp.audit"`
	NotifyTopic string   `env:"NOTIFY_TOPIC" envDefault:"instahelp.notifications"`
	ClientID    string   `env:"CLIENT_ID"   envDefault:"instahelp"`
	Partitions  int32    `env:"PARTITIONS"  envDefault:"3"`
	Replicas    int16    `env:"REPLICAS"    envDefault:"1"`
}

// AuditConfig sizes the asynchronous audit buffer. Zero writes synchronously.
type AuditConfig struct {
	BufferSize    int           `env:"BUFFER_SIZE"    envDefault:"1024"`
	AppendTimeout time.Duration `env:"APPEND_TIMEOUT" envDefault:"5s"`
}

// NotifyConfig bounds approver notification fan-out.
type NotifyConfig struct {
	Timeout     time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	Concurrency int           `env:"CONCURRENCY" envDefault:"8"`
}

// TracingConfig enables OTLP export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `env:"EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"instahelp"`
}

// GovernorConfig bounds per-change serialization.
type GovernorConfig struct {
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"5s"`
}

// RateLimitConfig bounds telemetry per device and emergency lookups per
// client IP.
type RateLimitConfig struct {
	Disabled          bool          `env:"DISABLED"`
	DeviceRequests    int           `env:"DEVICE_REQUESTS"    envDefault:"1"`
	DeviceWindow      time.Duration `env:"DEVICE_WINDOW"      envDefault:"1m"`
	EmergencyRequests int           `env:"EMERGENCY_REQUESTS" envDefault:"100"`
	EmergencyWindow   time.Duration `env:"EMERGENCY_WINDOW"   envDefault:"15m"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// IsProduction reports whether secrets must be supplied explicitly.
func (c Server) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate rejects settings the server cannot run safely with.
func (c Server) Validate() error {
	var errs []error
	switch c.Device.AuthMode {
	case DeviceAuthPerDevice, DeviceAuthFleet:
	default:
		errs = append(errs, fmt.Errorf("unknown device auth mode %q", c.Device.AuthMode))
	}
	if c.Tokens.TTL < 0 {
		errs = append(errs, errors.New("token TTL must not be negative"))
	}
	if c.Notify.Concurrency < 1 {
		errs = append(errs, errors.New("notify concurrency must be at least 1"))
	}
	if c.IsProduction() {
		if c.Auth.SigningKey == "" || c.Auth.SigningKey == devJWTSigningKey {
			errs = append(errs, errors.New("INSTAHELP_JWT_SIGNING_KEY must be set in production"))
		}
		if c.Device.HMACSecret == "" {
			errs = append(errs, errors.New("INSTAHELP_DEVICE_HMAC_SECRET must be set in production"))
		}
		if c.Crypto.PrivatePath == "" || c.Crypto.PublicPath == "" {
			errs = append(errs, errors.New("master key paths must be set in production"))
		}
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("INSTAHELP_DATABASE_URL must be set in production"))
		}
	}
	return errors.Join(errs...)
}
