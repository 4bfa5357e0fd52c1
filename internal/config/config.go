package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/detection"
)

// Config holds the settings recur reads from its config file, RECUR_ environment
// variables and flags.
type Config struct {
	DatabasePath string
	LogLevel     string
	LogFormat    string
	Detection    detection.Options
}

// DefaultDatabasePath returns the database location used when none is configured.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "recurrent.db"
	}
	return filepath.Join(home, ".local", "share", "recurrent", "recurrent.db")
}

// SetDefaults registers default values for every key Load reads.
func SetDefaults(v *viper.Viper) {
	defaults := detection.DefaultOptions()

	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("detection.min_confidence", defaults.MinConfidence)
	v.SetDefault("detection.minimum_occurrences", defaults.MinimumOccurrences)
	v.SetDefault("detection.lookback_days", defaults.LookbackDays)
	v.SetDefault("detection.merchant_similarity", defaults.MerchantSimilarity)
}

// Load reads and validates the configuration from v. Keys that are unset fall back
// to the defaults from SetDefaults.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		DatabasePath: ExpandPath(strings.TrimSpace(v.GetString("database.path"))),
		LogLevel:     strings.ToLower(strings.TrimSpace(v.GetString("logging.level"))),
		LogFormat:    strings.ToLower(strings.TrimSpace(v.GetString("logging.format"))),
		Detection: detection.Options{
			MinConfidence:      v.GetFloat64("detection.min_confidence"),
			MinimumOccurrences: v.GetInt("detection.minimum_occurrences"),
			LookbackDays:       v.GetInt("detection.lookback_days"),
			MerchantSimilarity: v.GetFloat64("detection.merchant_similarity"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if _, err := common.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format %q must be console or json", common.ErrInvalidConfig, c.LogFormat)
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("%w: detection: %w", common.ErrInvalidConfig, err)
	}
	return nil
}
