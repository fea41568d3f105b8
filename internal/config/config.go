package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all tracker configuration loaded from environment variables.
type Config struct {
	Hypixel  HypixelConfig
	Store    StoreConfig
	Cache    CacheConfig
	Run      RunConfig
	Ops      OpsConfig
	Snapshot SnapshotConfig
}

// HypixelConfig holds upstream API settings. EndedURL is required by
// cmd/ingest, LiveURL by cmd/snapshot; each binary validates its own.
type HypixelConfig struct {
	EndedURL string        `envconfig:"HYPIXEL_API_URL" default:""`
	LiveURL  string        `envconfig:"HYPIXEL_LIVE_URL" default:""`
	APIKey   string        `envconfig:"HYPIXEL_API_KEY" default:""`
	Timeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
	Workers  int           `envconfig:"FETCH_WORKERS" default:"4"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"sqlite"` // sqlite, postgres, or mysql
	Path   string `envconfig:"STORE_PATH" default:"./data/auctions.db"`
	// PostgreSQL settings
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresName     string `envconfig:"POSTGRES_NAME" default:"ahtracker"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASS" default:""`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	// MySQL settings
	MySQLHost     string `envconfig:"MYSQL_HOST" default:"localhost"`
	MySQLPort     int    `envconfig:"MYSQL_PORT" default:"3306"`
	MySQLName     string `envconfig:"MYSQL_NAME" default:"ahtracker"`
	MySQLUser     string `envconfig:"MYSQL_USER" default:"root"`
	MySQLPassword string `envconfig:"MYSQL_PASS" default:""`
}

// CacheConfig holds decode-cache settings. The cache is off unless
// CACHE_TYPE selects a backend.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"none"` // none, memory, or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"6h"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// RunConfig holds ingestion-run settings.
type RunConfig struct {
	LeaseTTL time.Duration `envconfig:"RUN_LEASE_TTL" default:"10m"`
}

// OpsConfig holds the operational listener settings. The listener
// stays off while Addr is empty.
type OpsConfig struct {
	Addr string `envconfig:"OPS_ADDR" default:""`
}

// SnapshotConfig holds live-snapshot settings.
type SnapshotConfig struct {
	File       string `envconfig:"SNAPSHOT_FILE" default:""`
	MinSamples int    `envconfig:"SNAPSHOT_MIN_SAMPLES" default:"4"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.PostgresUser, s.PostgresPassword, s.PostgresHost, s.PostgresPort, s.PostgresName, s.PostgresSSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.MySQLUser, s.MySQLPassword, s.MySQLHost, s.MySQLPort, s.MySQLName)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
