// Package config loads the exchange engine's runtime tunables, following
// the repo's established default-then-override pattern: a hardcoded
// Default(), optionally overridden by a .env file and then by process
// environment variables.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Engine bundles the per-book matcher tunables.
type Engine struct {
	MinSequenceID     uint64
	MaxSequenceID     uint64
	MaxStalledIndices uint64
	QueueCapacity     int
	// PriceScale is how many integer ticks make up one unit of quote
	// asset. An incoming float64 price is validated as a float (finite and
	// positive) and then converted to ticks once; queue priority and the
	// crossing test compare ticks, never floats. Validation does not look
	// at the tick value itself.
	PriceScale int64
}

// Storage bundles the snapshot store's tunables.
type Storage struct {
	DBPath string
}

// Gateway bundles the demo HTTP/WebSocket surface's tunables.
type Gateway struct {
	ListenAddr string
}

// Logging bundles the structured logger's tunables.
type Logging struct {
	Level   string
	LogFile string
}

type Config struct {
	Engine  Engine
	Storage Storage
	Gateway Gateway
	Logging Logging
}

// Default returns the engine's built-in defaults.
func Default() Config {
	return Config{
		Engine: Engine{
			MinSequenceID:     1,
			MaxSequenceID:     1_000_000,
			MaxStalledIndices: 64,
			QueueCapacity:     500,
			PriceScale:        1e8,
		},
		Storage: Storage{
			DBPath: "./data/matchcore",
		},
		Gateway: Gateway{
			ListenAddr: ":8181",
		},
		Logging: Logging{
			Level:   "info",
			LogFile: "./matchcore.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and then
// from process environment variables. Priority: ENV > .env file >
// defaults. envPath == "" loads .env from the current directory.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ENGINE_MIN_SEQUENCE_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.MinSequenceID = n
		}
	}
	if v := os.Getenv("ENGINE_MAX_SEQUENCE_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.MaxSequenceID = n
		}
	}
	if v := os.Getenv("ENGINE_MAX_STALLED_INDICES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.MaxStalledIndices = n
		}
	}
	if v := os.Getenv("ENGINE_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.QueueCapacity = n
		}
	}
	if v := os.Getenv("ENGINE_PRICE_SCALE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Engine.PriceScale = n
		}
	}
	if v := os.Getenv("STORAGE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("GATEWAY_LISTEN_ADDR"); v != "" {
		cfg.Gateway.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.LogFile = v
	}

	return cfg
}
