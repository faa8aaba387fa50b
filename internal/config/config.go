// Package config holds the process configuration for prefsd.
package config

import (
	"fmt"

	"github.com/rezkam/prefstate/internal/env"
)

// Config holds the application configuration.
type Config struct {
	Env string `env:"PREFSTATE_ENV" default:"dev"` // dev, prod

	// Primary store configuration
	StorageType string `env:"PREFSTATE_STORAGE_TYPE" default:"sqlite"` // sqlite, postgres, memory
	SQLitePath  string `env:"PREFSTATE_SQLITE_PATH" default:"./prefstate-data/prefs.db"`
	PostgresURL string `env:"PREFSTATE_POSTGRES_URL"`

	// Legacy mirror configuration
	MirrorType string `env:"PREFSTATE_MIRROR_TYPE" default:"file"` // file, gcs, none
	MirrorPath string `env:"PREFSTATE_MIRROR_PATH" default:"./prefstate-data/legacy-settings.json"`
	GCSBucket  string `env:"PREFSTATE_GCS_BUCKET"`

	// Decode behavior: fail hard on unrecognized stored sort-order names
	// instead of substituting defaults.
	StrictDecode bool `env:"PREFSTATE_STRICT_DECODE" default:"false"`

	// Observability configuration
	OTelEnabled bool `env:"PREFSTATE_OTEL_ENABLED" default:"true"`
}

// Load parses environment variables into a Config struct.
// It enforces the PREFSTATE_ prefix and validates cross-field dependencies.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageType {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("PREFSTATE_SQLITE_PATH is required when PREFSTATE_STORAGE_TYPE is 'sqlite'")
		}
	case "postgres":
		if c.PostgresURL == "" {
			return fmt.Errorf("PREFSTATE_POSTGRES_URL is required when PREFSTATE_STORAGE_TYPE is 'postgres'")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown PREFSTATE_STORAGE_TYPE: %s", c.StorageType)
	}

	switch c.MirrorType {
	case "file":
		if c.MirrorPath == "" {
			return fmt.Errorf("PREFSTATE_MIRROR_PATH is required when PREFSTATE_MIRROR_TYPE is 'file'")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("PREFSTATE_GCS_BUCKET is required when PREFSTATE_MIRROR_TYPE is 'gcs'")
		}
	case "none":
	default:
		return fmt.Errorf("unknown PREFSTATE_MIRROR_TYPE: %s", c.MirrorType)
	}

	return nil
}
