package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr string

	StockfishPath       string
	EngineInitTimeout   time.Duration
	EngineSearchTimeout time.Duration
	EngineThreads       int
	EngineHashMB        int
	DefaultStrength     string

	ProfileStore string
	ProfileID    string
	RedisURL     string
	DatabaseURL  string

	ProgressionCurve string
	ProgressionFile  string
	MessagesDir      string

	ShutdownTimeout time.Duration
}

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:            ":8080",
		EngineInitTimeout:   5 * time.Second,
		EngineSearchTimeout: 30 * time.Second,
		EngineThreads:       1,
		EngineHashMB:        16,
		DefaultStrength:     "intermediate",
		ProfileStore:        StoreMemory,
		ProfileID:           "local",
		ProgressionCurve:    "standard",
		ShutdownTimeout:     5 * time.Second,
	}

	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.StockfishPath = env("STOCKFISH_PATH")

	var errs []error
	if err := durationEnv("ENGINE_INIT_TIMEOUT", &cfg.EngineInitTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := durationEnv("ENGINE_SEARCH_TIMEOUT", &cfg.EngineSearchTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := durationEnv("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := intEnv("ENGINE_THREADS", &cfg.EngineThreads); err != nil {
		errs = append(errs, err)
	}
	if err := intEnv("ENGINE_HASH_MB", &cfg.EngineHashMB); err != nil {
		errs = append(errs, err)
	}
	if v := env("DEFAULT_STRENGTH"); v != "" {
		cfg.DefaultStrength = strings.ToLower(v)
	}

	if v := env("PROFILE_STORE"); v != "" {
		cfg.ProfileStore = strings.ToLower(v)
	}
	if v := env("PROFILE_ID"); v != "" {
		cfg.ProfileID = v
	}
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")

	if v := env("PROGRESSION_CURVE"); v != "" {
		cfg.ProgressionCurve = strings.ToLower(v)
	}
	cfg.ProgressionFile = env("PROGRESSION_FILE")
	cfg.MessagesDir = env("MESSAGES_DIR")

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.StockfishPath == "" {
		return errors.New("STOCKFISH_PATH is required")
	}
	switch c.ProfileStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when PROFILE_STORE=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when PROFILE_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown PROFILE_STORE %q", c.ProfileStore)
	}
	if c.EngineInitTimeout <= 0 || c.EngineSearchTimeout <= 0 {
		return errors.New("engine timeouts must be positive")
	}
	if c.EngineThreads <= 0 || c.EngineHashMB <= 0 {
		return errors.New("ENGINE_THREADS and ENGINE_HASH_MB must be positive")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// durationEnv accepts Go durations ("750ms") or whole seconds ("5").
func durationEnv(key string, dst *time.Duration) error {
	v := env(key)
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func intEnv(key string, dst *int) error {
	v := env(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
