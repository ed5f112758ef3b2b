package kvpair

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/kvpair-io/kvpair-server/internal/contract"
)

// LockMode selects which Concurrency Gate implementation the service wires
// up at startup.
type LockMode string

const (
	LockModeInProcess LockMode = "inproc"
	LockModeRedis     LockMode = "redis"
)

// Config is the environment-driven configuration SPEC_FULL.md §6 lists.
type Config struct {
	MongoURI           string
	MongoDatabase      string
	Port               string
	DefaultTenant      contract.ID
	LockMode           LockMode
	RedisURL           string
	LogLevel           string
	RateLimitPerMinute int
}

// ConfigFromEnv reads the service's full environment contract.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: envDefault("MONGODB_DATABASE", "kvpair"),
		Port:          envDefault("KVPAIR_PORT", "50051"),
		LockMode:      LockMode(envDefault("KVPAIR_LOCK_MODE", string(LockModeInProcess))),
		RedisURL:      os.Getenv("REDIS_URL"),
		LogLevel:      envDefault("LOG_LEVEL", "info"),
	}

	rateLimit := envDefault("KVPAIR_RATE_LIMIT_PER_MINUTE", "600")
	if _, err := fmt.Sscanf(rateLimit, "%d", &cfg.RateLimitPerMinute); err != nil {
		return Config{}, fmt.Errorf("KVPAIR_RATE_LIMIT_PER_MINUTE must be an integer: %w", err)
	}

	if cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("MONGODB_URI environment variable is required")
	}

	if raw := os.Getenv("KVPAIR_DEFAULT_CONTRACT"); raw != "" {
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("KVPAIR_DEFAULT_CONTRACT is not valid hex: %w", err)
		}
		id, err := contract.Parse(decoded)
		if err != nil {
			return Config{}, fmt.Errorf("KVPAIR_DEFAULT_CONTRACT: %w", err)
		}
		cfg.DefaultTenant = id
	} else {
		cfg.DefaultTenant = contract.Default()
	}

	switch cfg.LockMode {
	case LockModeInProcess:
	case LockModeRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required when KVPAIR_LOCK_MODE=redis")
		}
	default:
		return Config{}, fmt.Errorf("KVPAIR_LOCK_MODE must be %q or %q, got %q", LockModeInProcess, LockModeRedis, cfg.LockMode)
	}

	return cfg, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
