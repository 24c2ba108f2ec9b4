package app

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the process-level settings of an App. Campaign settings
// live in the definition files and the state file, not here.
type Config struct {
	LogLevel  string `env:"AMBERRUN_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"AMBERRUN_LOG_FORMAT" envDefault:"text"`
	// StateFile overrides the state file named in a campaign definition
	// when a campaign is initialised.
	StateFile string `env:"AMBERRUN_STATE_FILE"`
}

// ConfigFromEnv reads the AMBERRUN_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// NewConfig normalises and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if _, ok := logLevels[cfg.LogLevel]; !ok {
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	return &cfg, nil
}
