package app

import (
	"github.com/agentstation/hvcalls/internal/config"
)

// Config holds the application configuration: the settings loaded by
// internal/config plus the global command-line flags.
type Config struct {
	// Global flags
	Verbose  bool
	Quiet    bool
	NoColor  bool
	Format   string
	LogLevel string

	// Config file
	ConfigFile string

	// Settings loaded from config files and the environment
	Settings *config.Config
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (applied later by UpdateFromFlags)
// 2. HVCALLS_* environment variables
// 3. .env files
// 4. Config file (configFile, or ~/.hvcalls.yaml)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	settings, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	return &Config{
		ConfigFile: settings.ConfigFile,
		Settings:   settings,
	}, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags so that flag values
// take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}
