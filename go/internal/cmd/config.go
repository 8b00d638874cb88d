package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML tuning file for sync and gateway behavior.
// Everything has a working default; the file only overrides.
type Config struct {
	Sync struct {
		PollIntervalSec int   `yaml:"poll_interval_sec"`
		BatchSize       int32 `yaml:"batch_size"`
		MaxRetries      int   `yaml:"max_retries"`
		RetryDelayMs    int   `yaml:"retry_delay_ms"`
	} `yaml:"sync"`
	Engine struct {
		CaptureTimeoutSec      int  `yaml:"capture_timeout_sec"`
		AllowPausedBookkeeping bool `yaml:"allow_paused_bookkeeping"`
	} `yaml:"engine"`
	Nats struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config
	if path == "" {
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

func (c *Config) captureTimeout() time.Duration {
	if c.Engine.CaptureTimeoutSec > 0 {
		return time.Duration(c.Engine.CaptureTimeoutSec) * time.Second
	}
	return 0 // engine default applies
}
