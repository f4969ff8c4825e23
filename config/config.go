// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the settlement server.
type Config struct {
	Port                  int           `mapstructure:"PORT"`
	DBPath                string        `mapstructure:"DB_PATH"`
	LogLevel              string        `mapstructure:"LOG_LEVEL"`
	LogFormat             string        `mapstructure:"LOG_FORMAT"`
	AllowedOriginsRaw     string        `mapstructure:"ALLOWED_ORIGINS"`
	SettlementRunSchedule string        `mapstructure:"SETTLEMENT_RUN_SCHEDULE"`
	SettlementRunEnabled  bool          `mapstructure:"SETTLEMENT_RUN_ENABLED"`
	ShutdownTimeout       time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var keys = []string{
	"PORT", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT", "ALLOWED_ORIGINS",
	"SETTLEMENT_RUN_SCHEDULE", "SETTLEMENT_RUN_ENABLED", "SHUTDOWN_TIMEOUT",
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("PORT", 8080)
	viper.SetDefault("DB_PATH", "settlement.db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")
	viper.SetDefault("SETTLEMENT_RUN_SCHEDULE", "0 3 1 * *") // 03:00 on the 1st
	viper.SetDefault("SETTLEMENT_RUN_ENABLED", true)
	viper.SetDefault("SHUTDOWN_TIMEOUT", "30s")
	viper.AutomaticEnv()

	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, fmt.Errorf("DB_PATH must not be empty")
	}
	return &cfg, nil
}

// AllowedOrigins splits ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowedOriginsRaw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
