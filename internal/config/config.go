package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Idempotency IdempotencyConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
}

type AppConfig struct {
	Name  string
	Env   string
	Port  string
	Debug bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Timezone string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Store backends accepted by IDEMPOTENCY_STORE
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type IdempotencyConfig struct {
	Store           string
	Header          string
	TTL             time.Duration
	LockTimeout     time.Duration
	PollInterval    time.Duration
	ConflictMode    string
	FailOpen        bool
	MaxKeyLength    int
	MaxBodySize     int64
	CacheErrors     bool
	Fingerprint     bool
	RequireKey      bool
	Methods         []string
	CleanupInterval time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type RateLimitConfig struct {
	Requests int
	Duration int
}

// RequestsPerSecond spreads Requests over Duration seconds. A non-positive
// Duration is read as one second.
func (c RateLimitConfig) RequestsPerSecond() float64 {
	if c.Duration <= 0 {
		return float64(c.Requests)
	}
	return float64(c.Requests) / float64(c.Duration)
}

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables: %v", err)
	}

	return load(viper.GetViper())
}

func load(v *viper.Viper) *Config {
	// Set defaults
	v.SetDefault("APP_NAME", "idempotency-gateway")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "idempotency")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDEMPOTENCY_STORE", StoreMemory)
	v.SetDefault("IDEMPOTENCY_HEADER", "Idempotency-Key")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("IDEMPOTENCY_LOCK_TIMEOUT", "30s")
	v.SetDefault("IDEMPOTENCY_POLL_INTERVAL", "100ms")
	v.SetDefault("IDEMPOTENCY_CONFLICT_MODE", "reject")
	v.SetDefault("IDEMPOTENCY_FAIL_OPEN", false)
	v.SetDefault("IDEMPOTENCY_MAX_KEY_LENGTH", 256)
	v.SetDefault("IDEMPOTENCY_MAX_BODY_SIZE", 1048576)
	v.SetDefault("IDEMPOTENCY_CACHE_ERRORS", false)
	v.SetDefault("IDEMPOTENCY_FINGERPRINT", false)
	v.SetDefault("IDEMPOTENCY_REQUIRE_KEY", true)
	v.SetDefault("IDEMPOTENCY_METHODS", "POST PUT PATCH DELETE")
	v.SetDefault("IDEMPOTENCY_CLEANUP_INTERVAL", "5m")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("CORS_ALLOWED_HEADERS", []string{})
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_DURATION", 60)

	return &Config{
		App: AppConfig{
			Name:  v.GetString("APP_NAME"),
			Env:   v.GetString("APP_ENV"),
			Port:  v.GetString("APP_PORT"),
			Debug: v.GetBool("APP_DEBUG"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
			Timezone: v.GetString("DB_TIMEZONE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Idempotency: IdempotencyConfig{
			Store:           v.GetString("IDEMPOTENCY_STORE"),
			Header:          v.GetString("IDEMPOTENCY_HEADER"),
			TTL:             v.GetDuration("IDEMPOTENCY_TTL"),
			LockTimeout:     v.GetDuration("IDEMPOTENCY_LOCK_TIMEOUT"),
			PollInterval:    v.GetDuration("IDEMPOTENCY_POLL_INTERVAL"),
			ConflictMode:    v.GetString("IDEMPOTENCY_CONFLICT_MODE"),
			FailOpen:        v.GetBool("IDEMPOTENCY_FAIL_OPEN"),
			MaxKeyLength:    v.GetInt("IDEMPOTENCY_MAX_KEY_LENGTH"),
			MaxBodySize:     v.GetInt64("IDEMPOTENCY_MAX_BODY_SIZE"),
			CacheErrors:     v.GetBool("IDEMPOTENCY_CACHE_ERRORS"),
			Fingerprint:     v.GetBool("IDEMPOTENCY_FINGERPRINT"),
			RequireKey:      v.GetBool("IDEMPOTENCY_REQUIRE_KEY"),
			Methods:         stringList(v, "IDEMPOTENCY_METHODS"),
			CleanupInterval: v.GetDuration("IDEMPOTENCY_CLEANUP_INTERVAL"),
		},
		CORS: CORSConfig{
			AllowedOrigins: stringList(v, "CORS_ALLOWED_ORIGINS"),
			AllowedMethods: stringList(v, "CORS_ALLOWED_METHODS"),
			AllowedHeaders: stringList(v, "CORS_ALLOWED_HEADERS"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Duration: v.GetInt("RATE_LIMIT_DURATION"),
		},
	}
}

// stringList accepts both "POST PUT" and "POST,PUT" from the environment
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" port=" + c.Port +
		" sslmode=" + c.SSLMode +
		" TimeZone=" + c.Timezone
}
