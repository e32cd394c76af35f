package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Logger      LoggerConfig
	Auth        AuthConfig
	Coordinator CoordinatorConfig
	Billing     BillingConfig
	Channel     ChannelConfig
	Realtime    RealtimeConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN switches the
// service to in-memory repositories.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	JWTSecret string
}

// CoordinatorConfig bounds per-ticket lock waits.
type CoordinatorConfig struct {
	LockWaitMillis int
}

// BillingConfig defines plan limits enforced by the billing gate. Zero means
// unlimited.
type BillingConfig struct {
	MonthlyTicketLimit  int64
	MonthlyMessageLimit int64
}

// ChannelConfig holds outbound channel integration settings.
type ChannelConfig struct {
	WebhookVerifyToken string
	SendEndpoint       string
	AccessToken        string
	MaxRetries         uint64
}

// RealtimeConfig tunes the broadcast channel.
type RealtimeConfig struct {
	SubscriberBuffer int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-inbox"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		Coordinator: CoordinatorConfig{
			LockWaitMillis: getEnvAsInt("COORDINATOR_LOCK_WAIT_MS", 5000),
		},
		Billing: BillingConfig{
			MonthlyTicketLimit:  int64(getEnvAsInt("BILLING_MONTHLY_TICKET_LIMIT", 0)),
			MonthlyMessageLimit: int64(getEnvAsInt("BILLING_MONTHLY_MESSAGE_LIMIT", 0)),
		},
		Channel: ChannelConfig{
			WebhookVerifyToken: getEnv("CHANNEL_WEBHOOK_VERIFY_TOKEN", ""),
			SendEndpoint:       getEnv("CHANNEL_SEND_ENDPOINT", ""),
			AccessToken:        os.Getenv("CHANNEL_ACCESS_TOKEN"),
			MaxRetries:         uint64(getEnvAsInt("CHANNEL_MAX_RETRIES", 5)),
		},
		Realtime: RealtimeConfig{
			SubscriberBuffer: getEnvAsInt("REALTIME_SUBSCRIBER_BUFFER", 64),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockWait returns how long a request may wait on a per-ticket lock.
func (c CoordinatorConfig) LockWait() time.Duration {
	if c.LockWaitMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.LockWaitMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
