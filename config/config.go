package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Retry    RetryConfig
	Migrate  MigrateConfig
	Flags    StoreFlags
}

// DatabaseConfig holds PostgreSQL connection settings for the primary store.
type DatabaseConfig struct {
	URL string // e.g. postgres://localhost:5432/trailquest?sslmode=disable
}

// RedisConfig holds Redis connection settings for the legacy store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RetryConfig bounds the adapter-level retry of transient backend errors.
// Conflicts are never retried at this level.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int
	CallTimeout     time.Duration
}

// MigrateConfig holds backfill engine defaults (overridable via CLI flags).
type MigrateConfig struct {
	CheckpointPath string
	Concurrency    int
}

// StoreFlags is the cutover flag snapshot. Flag changes take effect on the
// next repository call; in-flight calls keep the snapshot they started with.
type StoreFlags struct {
	PrimaryEnabled   bool
	DualWriteEnabled bool
	ReadPrimaryFirst bool
	LocalEmulator    bool
}

// FlagSource hands out StoreFlags snapshots and re-reads them on Reload.
// It is injected into the repository factory; never a package-level global.
type FlagSource struct {
	mu    sync.RWMutex
	flags StoreFlags
}

// NewFlagSource creates a flag source with an initial snapshot.
func NewFlagSource(flags StoreFlags) *FlagSource {
	return &FlagSource{flags: flags}
}

// Snapshot returns the current flag values.
func (s *FlagSource) Snapshot() StoreFlags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// Reload re-reads the store flags from the environment.
func (s *FlagSource) Reload() StoreFlags {
	flags := loadFlags()
	s.mu.Lock()
	s.flags = flags
	s.mu.Unlock()
	return flags
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "postgres://localhost:5432/trailquest?sslmode=disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Retry: RetryConfig{
			InitialInterval: time.Duration(getEnvInt("RETRY_INITIAL_MS", 200)) * time.Millisecond,
			MaxInterval:     time.Duration(getEnvInt("RETRY_MAX_INTERVAL_MS", 2000)) * time.Millisecond,
			MaxRetries:      getEnvInt("RETRY_MAX_RETRIES", 5),
			CallTimeout:     time.Duration(getEnvInt("RETRY_CALL_TIMEOUT_MS", 5000)) * time.Millisecond,
		},
		Migrate: MigrateConfig{
			CheckpointPath: getEnv("MIGRATE_CHECKPOINT_PATH", "migrate-checkpoint.json"),
			Concurrency:    getEnvInt("MIGRATE_CONCURRENCY", 4),
		},
		Flags: loadFlags(),
	}
	return cfg, nil
}

func loadFlags() StoreFlags {
	return StoreFlags{
		PrimaryEnabled:   getEnvBool("PRIMARY_STORE_ENABLED", false),
		DualWriteEnabled: getEnvBool("DUAL_WRITE_ENABLED", false),
		ReadPrimaryFirst: getEnvBool("READ_PRIMARY_FIRST", false),
		LocalEmulator:    getEnvBool("LOCAL_EMULATOR_ENABLED", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
