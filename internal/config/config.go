package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Owner    OwnerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"visitor-identity"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"8080"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
)

// StoreConfig selects the key/value backend holding the users and currentUser slots.
type StoreConfig struct {
	Backend    string `env:"STORE_BACKEND" envDefault:"file"`
	FilePath   string `env:"STORE_FILE_PATH" envDefault:"data/store.json"`
	SQLitePath string `env:"STORE_SQLITE_PATH" envDefault:"data/store.db"`
	Namespace  string `env:"STORE_NAMESPACE"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" envDefault:"4"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" envDefault:"1"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// MongoConfig holds MongoDB connection values.
type MongoConfig struct {
	URI        string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database   string `env:"MONGO_DATABASE" envDefault:"visitor_identity"`
	Collection string `env:"MONGO_COLLECTION" envDefault:"slots"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string `env:"AUTH_JWT_SECRET"`
	AccessTokenTTLMinutes int    `env:"AUTH_ACCESS_TOKEN_TTL_MINUTES" envDefault:"60"`
}

// OwnerConfig describes the bootstrap owner account. Secret has no default.
type OwnerConfig struct {
	Email  string `env:"OWNER_EMAIL" envDefault:"owner@localhost"`
	Name   string `env:"OWNER_NAME" envDefault:"Site Owner"`
	Secret string `env:"OWNER_SECRET"`
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends.
func (s StoreConfig) Validate() error {
	switch s.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendPostgres, BackendSQLite, BackendMongo:
		return nil
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", s.Backend)
	}
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
