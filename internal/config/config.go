// Package config loads runtime configuration for a CRDT replica host
// from environment variables.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for a replica process.
type Config struct {
	Replica ReplicaConfig `json:"replica"`
	Logging LoggingConfig `json:"logging"`
}

// ReplicaConfig controls the identity and bookkeeping limits of a
// single replica's registry.
type ReplicaConfig struct {
	// ReplicaID is this replica's ReplicaId. Left empty to let the host
	// generate one at boot; set REPLICA_ID for stable identity across
	// restarts.
	ReplicaID string `json:"replica_id"`

	// MaxOperationLogEntries bounds the registry's operation/merge log;
	// oldest entries are evicted first.
	MaxOperationLogEntries int `json:"max_operation_log_entries"`

	// TagSaltBytes is the number of random bytes mixed into generated
	// add-tags / element ids beyond the (ReplicaId, counter) pair.
	TagSaltBytes int `json:"tag_salt_bytes"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level       string `json:"level"`
	Environment string `json:"environment"`
}

// Load loads configuration from environment variables, applying the
// same defaults-then-override pattern as the teacher's config loader.
func Load() *Config {
	return &Config{
		Replica: ReplicaConfig{
			ReplicaID:              getEnv("REPLICA_ID", ""),
			MaxOperationLogEntries: getEnvInt("MAX_OPERATION_LOG_ENTRIES", 1000),
			TagSaltBytes:           getEnvInt("TAG_SALT_BYTES", 8),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("LOG_ENV", "development"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
