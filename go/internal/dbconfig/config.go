package dbconfig

import (
	"fmt"
	"os"
	"strconv"
)

// RemoteConfig holds connection settings for the remote durable store.
// The engine runs fine without one; sync simply queues up.
type RemoteConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewRemoteConfigFromEnv reads REMOTE_DB_* environment variables (with
// defaults).
func NewRemoteConfigFromEnv() RemoteConfig {
	port, err := strconv.Atoi(getEnv("REMOTE_DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}

	return RemoteConfig{
		Host:     getEnv("REMOTE_DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("REMOTE_DB_USER", "postgres"),
		Password: getEnv("REMOTE_DB_PASSWORD", "postgres"),
		Database: getEnv("REMOTE_DB_NAME", "spieltag"),
		SSLMode:  getEnv("REMOTE_DB_SSLMODE", "disable"),
	}
}

// Configured reports whether a remote store host was explicitly set.
func Configured() bool {
	return os.Getenv("REMOTE_DB_HOST") != ""
}

// DSN returns the Postgres connection URL.
func (c RemoteConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
