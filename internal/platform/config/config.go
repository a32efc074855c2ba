package config

import (
	"log/slog"
	"os"
	"strings"
)

// Store driver names accepted by CASHPOINT_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Terminal captures process-level configuration.
type Terminal struct {
	StoreDriver string
	SQLitePath  string
	PostgresDSN string
	LogLevel    slog.Level
}

// FromEnv builds a Terminal config from environment variables so main stays
// lean. Defaults favor a standalone machine: a local SQLite file next to the
// binary.
func FromEnv() Terminal {
	driver := strings.ToLower(os.Getenv("CASHPOINT_STORE"))
	switch driver {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		driver = StoreSQLite
	}

	path := os.Getenv("CASHPOINT_DB_PATH")
	if path == "" {
		path = "cashpoint.db"
	}

	return Terminal{
		StoreDriver: driver,
		SQLitePath:  path,
		PostgresDSN: os.Getenv("CASHPOINT_DB_DSN"),
		LogLevel:    logLevelFromEnv(),
	}
}

func logLevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("CASHPOINT_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
