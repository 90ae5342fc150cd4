// Package config provides configuration for the Flowlab server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., ":7450").
	Listen string
	// DataDir is the root directory for database files.
	DataDir string
	// AutosaveInterval is how often dirty sessions are flushed.
	AutosaveInterval time.Duration
	// CommitThreshold is the minimum change score for an auto-commit.
	CommitThreshold int
	// CommitMinInterval is the minimum gap between auto-commits.
	CommitMinInterval time.Duration
	// Version is the server version string.
	Version string
	// Debug enables debug logging.
	Debug bool
}

// FromEnv creates a Config from environment variables.
func FromEnv() *Config {
	return &Config{
		Listen:            getEnv("FLOWLAB_LISTEN", ":7450"),
		DataDir:           getEnv("FLOWLAB_DATA", "./data"),
		AutosaveInterval:  getEnvDuration("FLOWLAB_AUTOSAVE_INTERVAL", 30*time.Second),
		CommitThreshold:   getEnvInt("FLOWLAB_COMMIT_THRESHOLD", 10),
		CommitMinInterval: getEnvDuration("FLOWLAB_COMMIT_MIN_INTERVAL", 5*time.Minute),
		Version:           getEnv("FLOWLAB_VERSION", "0.1.0"),
		Debug:             getEnvBool("FLOWLAB_DEBUG", false),
	}
}

// FromFile loads a YAML config file on top of the env defaults, so a file
// only has to name the settings it changes. Durations use Go syntax ("30s",
// "5m").
func FromFile(path string) (*Config, error) {
	cfg := FromEnv()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var raw struct {
		Listen            string `yaml:"listen"`
		DataDir           string `yaml:"dataDir"`
		AutosaveInterval  string `yaml:"autosaveInterval"`
		CommitThreshold   *int   `yaml:"commitThreshold"`
		CommitMinInterval string `yaml:"commitMinInterval"`
		Debug             *bool  `yaml:"debug"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if raw.Listen != "" {
		cfg.Listen = raw.Listen
	}
	if raw.DataDir != "" {
		cfg.DataDir = raw.DataDir
	}
	if raw.AutosaveInterval != "" {
		d, err := time.ParseDuration(raw.AutosaveInterval)
		if err != nil {
			return nil, fmt.Errorf("parsing autosaveInterval: %w", err)
		}
		cfg.AutosaveInterval = d
	}
	if raw.CommitThreshold != nil {
		cfg.CommitThreshold = *raw.CommitThreshold
	}
	if raw.CommitMinInterval != "" {
		d, err := time.ParseDuration(raw.CommitMinInterval)
		if err != nil {
			return nil, fmt.Errorf("parsing commitMinInterval: %w", err)
		}
		cfg.CommitMinInterval = d
	}
	if raw.Debug != nil {
		cfg.Debug = *raw.Debug
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
