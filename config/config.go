package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Dispatch DispatchConfig
	Kafka    KafkaConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"REDIS_HOST"`
	Port     int           `mapstructure:"REDIS_PORT"`
	Password string        `mapstructure:"REDIS_PASSWORD"`
	DB       int           `mapstructure:"REDIS_DB"`
	PoolSize int           `mapstructure:"REDIS_POOL_SIZE"`
	CacheTTL time.Duration `mapstructure:"PRICING_CACHE_TTL"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"STORAGE_DRIVER"` // "postgres" or "memory"
}

// DispatchConfig holds matching radii and the fallback commission rate.
type DispatchConfig struct {
	AcceptRadiusKm           float64 `mapstructure:"DISPATCH_ACCEPT_RADIUS_KM"`
	DriverSearchRadiusKm     float64 `mapstructure:"DISPATCH_DRIVER_SEARCH_RADIUS_KM"`
	PendingRadiusKm          float64 `mapstructure:"DISPATCH_PENDING_RADIUS_KM"`
	NotifyRadiusKm           float64 `mapstructure:"DISPATCH_NOTIFY_RADIUS_KM"`
	DefaultCommissionPercent float64 `mapstructure:"COMMISSION_DEFAULT_PERCENT"`
}

// KafkaConfig holds the optional event sink settings. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"KAFKA_BROKERS"`
	Topic   string   `mapstructure:"KAFKA_TOPIC"`
}

// Enabled reports whether at least one broker is configured.
func (k *KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// LogConfig holds logger settings.
type LogConfig struct {
	Env   string `mapstructure:"LOG_ENV"`
	Level string `mapstructure:"LOG_LEVEL"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UsesPostgres reports whether Postgres and Redis back the engine.
func (s *StorageConfig) UsesPostgres() bool { return s.Driver == "postgres" }

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	d := c.Dispatch
	if d.AcceptRadiusKm <= 0 || d.DriverSearchRadiusKm <= 0 || d.PendingRadiusKm <= 0 || d.NotifyRadiusKm <= 0 {
		return fmt.Errorf("config: dispatch radii must be positive")
	}
	if d.DefaultCommissionPercent < 0 || d.DefaultCommissionPercent > 100 {
		return fmt.Errorf("config: COMMISSION_DEFAULT_PERCENT must be within [0,100], got %v", d.DefaultCommissionPercent)
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("config: KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "dispatch")
	v.SetDefault("POSTGRES_PASSWORD", "dispatch_secret")
	v.SetDefault("POSTGRES_DB", "dispatch_db")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("POSTGRES_MAX_CONNS", 50)
	v.SetDefault("POSTGRES_MIN_CONNS", 10)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("PRICING_CACHE_TTL", "60s")

	v.SetDefault("STORAGE_DRIVER", "postgres")

	v.SetDefault("DISPATCH_ACCEPT_RADIUS_KM", 3.0)
	v.SetDefault("DISPATCH_DRIVER_SEARCH_RADIUS_KM", 5.0)
	v.SetDefault("DISPATCH_PENDING_RADIUS_KM", 3.0)
	v.SetDefault("DISPATCH_NOTIFY_RADIUS_KM", 3.0)
	v.SetDefault("COMMISSION_DEFAULT_PERCENT", 15.0)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "booking-events")

	v.SetDefault("LOG_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = v.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         v.GetString("SERVER_HOST"),
		Port:         v.GetInt("SERVER_PORT"),
		ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     v.GetString("POSTGRES_HOST"),
		Port:     v.GetInt("POSTGRES_PORT"),
		User:     v.GetString("POSTGRES_USER"),
		Password: v.GetString("POSTGRES_PASSWORD"),
		DBName:   v.GetString("POSTGRES_DB"),
		SSLMode:  v.GetString("POSTGRES_SSLMODE"),
		MaxConns: v.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: v.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		CacheTTL: v.GetDuration("PRICING_CACHE_TTL"),
	}

	// ── Storage / dispatch ──────────────────────────────
	cfg.Storage = StorageConfig{
		Driver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
	}
	cfg.Dispatch = DispatchConfig{
		AcceptRadiusKm:           v.GetFloat64("DISPATCH_ACCEPT_RADIUS_KM"),
		DriverSearchRadiusKm:     v.GetFloat64("DISPATCH_DRIVER_SEARCH_RADIUS_KM"),
		PendingRadiusKm:          v.GetFloat64("DISPATCH_PENDING_RADIUS_KM"),
		NotifyRadiusKm:           v.GetFloat64("DISPATCH_NOTIFY_RADIUS_KM"),
		DefaultCommissionPercent: v.GetFloat64("COMMISSION_DEFAULT_PERCENT"),
	}

	// ── Kafka / logging ─────────────────────────────────
	cfg.Kafka = KafkaConfig{
		Brokers: splitList(v.GetString("KAFKA_BROKERS")),
		Topic:   v.GetString("KAFKA_TOPIC"),
	}
	cfg.Log = LogConfig{
		Env:   v.GetString("LOG_ENV"),
		Level: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
