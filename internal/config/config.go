package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxPayloadSize caps a single nuke-wire frame. Anything larger is
	// treated as a malformed header and the connection is dropped.
	DefaultMaxPayloadSize = 1 << 30 // 1 GiB

	// DefaultMaxValueSize caps a single stored value, below the frame cap.
	DefaultMaxValueSize = 512 << 20 // 512 MiB
)

// Config holds all process-wide tunables. It is immutable after Load; the two
// runtime-mutable knobs (debug mode, batch size) live as atomics on the store.
type Config struct {
	Port     int `yaml:"port"`
	HTTPPort int `yaml:"http_port"`

	DatabasePath       string `yaml:"database_path"`
	PersistenceEnabled bool   `yaml:"persistence_enabled"`

	CachingEnabled bool  `yaml:"caching_enabled"`
	MaxMemoryBytes int64 `yaml:"max_memory_bytes"`

	WorkerThreads       int `yaml:"worker_threads"`
	BatchProcessingSize int `yaml:"batch_processing_size"`

	MaxPayloadSize uint64 `yaml:"max_payload_size"`
	MaxValueSize   int64  `yaml:"max_value_size"`

	DebugMode bool `yaml:"debug_mode"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration the server starts with when nothing
// overrides it.
func Default() *Config {
	return &Config{
		Port:                8080,
		HTTPPort:            0,
		DatabasePath:        "nukekv.db",
		PersistenceEnabled:  true,
		CachingEnabled:      true,
		MaxMemoryBytes:      0,
		WorkerThreads:       0,
		BatchProcessingSize: 1,
		MaxPayloadSize:      DefaultMaxPayloadSize,
		MaxValueSize:        DefaultMaxValueSize,
		DebugMode:           false,
		ShutdownTimeout:     5 * time.Second,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getenvInt("NUKEKV_PORT", c.Port)
	c.HTTPPort = getenvInt("NUKEKV_HTTP_PORT", c.HTTPPort)
	c.DatabasePath = getenv("NUKEKV_DATABASE_PATH", c.DatabasePath)
	c.PersistenceEnabled = getenvBool("NUKEKV_PERSISTENCE", c.PersistenceEnabled)
	c.CachingEnabled = getenvBool("NUKEKV_CACHING", c.CachingEnabled)
	c.MaxMemoryBytes = getenvInt64("NUKEKV_MAX_MEMORY_BYTES", c.MaxMemoryBytes)
	c.WorkerThreads = getenvInt("NUKEKV_WORKERS", c.WorkerThreads)
	c.BatchProcessingSize = getenvInt("NUKEKV_BATCH_SIZE", c.BatchProcessingSize)
	c.MaxPayloadSize = uint64(getenvInt64("NUKEKV_MAX_PAYLOAD_SIZE", int64(c.MaxPayloadSize)))
	c.MaxValueSize = getenvInt64("NUKEKV_MAX_VALUE_SIZE", c.MaxValueSize)
	c.DebugMode = getenvBool("NUKEKV_DEBUG", c.DebugMode)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", c.Port)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be 0-65535, got %d", c.HTTPPort)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path cannot be empty")
	}
	if c.MaxMemoryBytes < 0 {
		return fmt.Errorf("max_memory_bytes cannot be negative")
	}
	if c.WorkerThreads < 0 {
		return fmt.Errorf("worker_threads cannot be negative")
	}
	if c.BatchProcessingSize < 0 {
		return fmt.Errorf("batch_processing_size cannot be negative")
	}
	if c.MaxPayloadSize == 0 {
		return fmt.Errorf("max_payload_size cannot be zero")
	}
	if c.MaxValueSize <= 0 || uint64(c.MaxValueSize) > c.MaxPayloadSize {
		return fmt.Errorf("max_value_size must be positive and at most max_payload_size")
	}
	return nil
}

// Workers resolves the worker count: 0 means auto (cores minus one, at least one).
func (c *Config) Workers() int {
	if c.WorkerThreads > 0 {
		return c.WorkerThreads
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

func getenv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getenvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getenvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getenvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
