package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kilianp07/haulboard/infra/logger"
)

// LoggingConfig defines the log level and optional file rotation.
type LoggingConfig struct {
	Level string `json:"level"`
	// File enables a rotating log file next to stdout.
	File string `json:"file"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int  `json:"max_age_days"`
	Compress   bool `json:"compress"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.File != "" && c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
}

// Validate checks the level and rotation limits.
func (c LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("unknown level %s", c.Level)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits must be positive")
	}
	return nil
}

// FileConfig converts the rotation settings for logger.Setup.
func (c LoggingConfig) FileConfig() logger.FileConfig {
	return logger.FileConfig{
		Path:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}
