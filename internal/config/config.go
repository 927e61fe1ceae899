package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	HTTPAddr string

	Archive   ArchiveConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// ArchiveConfig selects the cold-tier backend and cycle locking strategy.
// Cycle cadence and batch tuning live in the hot-reloadable policy file,
// see internal/config/policy.
type ArchiveConfig struct {
	Backend string // "filesystem" or "redis"
	Root    string // filesystem backend root directory
	Lock    string // "local" or "redis"
	LockTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig throttles record writes. Disabled by default; the bucket
// lives in redis so the limit is shared across API instances.
type RateLimitConfig struct {
	Enabled    bool
	WriteRate  float64
	WriteBurst int
}

const (
	BackendFilesystem = "filesystem"
	BackendRedis      = "redis"

	LockLocal = "local"
	LockRedis = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "coldline"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "coldline"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		Archive: ArchiveConfig{
			Backend: normalizeBackend(getenv("ARCHIVE_BACKEND", BackendFilesystem)),
			Root:    getenv("ARCHIVE_ROOT", "/var/lib/coldline/archive"),
			Lock:    normalizeLock(getenv("ARCHIVE_LOCK", LockLocal)),
			LockTTL: getenvDuration("ARCHIVE_LOCK_TTL", 10*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getenvBool("RATELIMIT_ENABLED", false),
			WriteRate:  getenvFloat("RATELIMIT_WRITE_RATE", 100),
			WriteBurst: getenvInt("RATELIMIT_WRITE_BURST", 200),
		},
	}

	return cfg
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case BackendRedis:
		return BackendRedis
	default:
		return BackendFilesystem
	}
}

func normalizeLock(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case LockRedis:
		return LockRedis
	default:
		return LockLocal
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
