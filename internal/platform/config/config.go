package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr      string
	LogLevel  string
	LogFormat string

	Store StoreConfig
	Redis RedisConfig
	Kafka KafkaConfig

	// AnchorCacheTTL of zero re-queries the store on every lookup.
	AnchorCacheTTL time.Duration
	JWTSigningKey  string
	JWTIssuer      string

	DeviceName string
	WorkflowID string
}

// StoreConfig selects the resource store backend.
type StoreConfig struct {
	// Driver is "memory", "postgres", "pgx" or "sqlite3".
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// DSN returns the connection string for the configured driver.
func (c StoreConfig) DSN() string {
	if c.Driver == "sqlite3" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

// RedisConfig configures the optional shared anchor cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional audit record fan-out.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ClientID      string
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Enabled reports whether fan-out is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:      getEnv("FHIRAUDIT_ADDR", ":8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		Store: StoreConfig{
			Driver:      getEnv("STORE_DRIVER", "memory"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			SQLitePath:  getEnv("SQLITE_PATH", "fhiraudit.sqlite"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:    getEnv("KAFKA_AUDIT_TOPIC", "fhiraudit.audit-events"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "fhiraudit"),
		},
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     getEnv("JWT_ISSUER", "fhiraudit"),
		DeviceName:    os.Getenv("DEVICE_NAME"),
		WorkflowID:    getEnv("WORKFLOW_ID", "rad-wf"),
	}

	var err error
	if cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Kafka.BufferSize, err = getInt("KAFKA_BUFFER_SIZE", 10000); err != nil {
		return Server{}, err
	}
	if cfg.Kafka.BatchSize, err = getInt("KAFKA_BATCH_SIZE", 100); err != nil {
		return Server{}, err
	}
	if cfg.Kafka.FlushInterval, err = getDuration("KAFKA_FLUSH_INTERVAL", time.Second); err != nil {
		return Server{}, err
	}
	if cfg.AnchorCacheTTL, err = getDuration("ANCHOR_CACHE_TTL", 5*time.Minute); err != nil {
		return Server{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Server) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite3":
	case "postgres", "pgx":
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.AnchorCacheTTL < 0 {
		return errors.New("ANCHOR_CACHE_TTL must not be negative")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Server) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
