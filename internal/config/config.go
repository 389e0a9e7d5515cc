package config

import (
	"os"
	"strconv"
	"time"

	"hydrocast/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Model       ModelConfig
	Sampler     SamplerConfig
	Diagnostics DiagnosticsConfig
	Data        DataConfig
	Database    DatabaseConfig
	Server      ServerConfig
}

// ModelConfig selects the active process-model terms
type ModelConfig struct {
	Rain       bool
	Season     bool
	Decay      bool
	ImputeRain bool
}

// SamplerConfig bounds the Markov chain run
type SamplerConfig struct {
	Chains     int
	Iterations int
	Seed       uint64
}

// DiagnosticsConfig controls the convergence check
type DiagnosticsConfig struct {
	Policy    string // "fixed" or "adaptive"
	BurnIn    int
	Threshold float64
}

// DataConfig locates the input table and the hold-out split
type DataConfig struct {
	File         string // .xlsx or .csv daily table
	Sheet        string
	HoldoutAfter string // "2006-01-02"; empty disables validation scoring
}

// DatabaseConfig holds result-store settings; URL empty disables persistence
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds the results API settings
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Model: ModelConfig{
			Rain:       getEnvBoolOrDefault("MODEL_RAIN", false),
			Season:     getEnvBoolOrDefault("MODEL_SEASON", false),
			Decay:      getEnvBoolOrDefault("MODEL_DECAY", false),
			ImputeRain: getEnvBoolOrDefault("MODEL_IMPUTE_RAIN", false),
		},
		Sampler: SamplerConfig{
			Chains:     getEnvIntOrDefault("CHAINS", 3),
			Iterations: getEnvIntOrDefault("ITERATIONS", 5000),
			Seed:       uint64(getEnvIntOrDefault("SEED", 1)),
		},
		Diagnostics: DiagnosticsConfig{
			Policy:    getEnvOrDefault("BURNIN_POLICY", "fixed"),
			BurnIn:    getEnvIntOrDefault("BURNIN", 1000),
			Threshold: getEnvFloatOrDefault("PSRF_THRESHOLD", 1.1),
		},
		Data: DataConfig{
			File:         getEnvOrDefault("DATA_FILE", ""),
			Sheet:        getEnvOrDefault("DATA_SHEET", "Sheet1"),
			HoldoutAfter: getEnvOrDefault("HOLDOUT_AFTER", ""),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Sampler.Chains < 2 {
		return errors.ConfigInvalid("CHAINS must be at least 2")
	}
	if config.Sampler.Iterations <= 0 {
		return errors.ConfigInvalid("ITERATIONS must be positive")
	}
	if config.Diagnostics.Policy != "fixed" && config.Diagnostics.Policy != "adaptive" {
		return errors.ConfigInvalid("BURNIN_POLICY must be \"fixed\" or \"adaptive\"")
	}
	if config.Diagnostics.BurnIn < 0 {
		return errors.ConfigInvalid("BURNIN must be non-negative")
	}
	if config.Diagnostics.BurnIn >= config.Sampler.Iterations {
		return errors.ConfigInvalid("BURNIN must be smaller than ITERATIONS")
	}
	if config.Diagnostics.Threshold <= 1 {
		return errors.ConfigInvalid("PSRF_THRESHOLD must exceed 1")
	}
	if config.Data.HoldoutAfter != "" {
		if _, err := time.Parse("2006-01-02", config.Data.HoldoutAfter); err != nil {
			return errors.ConfigInvalid("HOLDOUT_AFTER must be a YYYY-MM-DD date")
		}
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
