package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/hvcalls/pkg/logging"
)

// NewLogger creates a configured logger based on the application configuration.
// Log level precedence (highest to lowest):
//  1. --log-level flag (explicit always wins)
//  2. -v/--verbose flag (shortcut for debug)
//  3. -q/--quiet flag (shortcut for warn)
//  4. log_level setting (HVCALLS_LOG_LEVEL or config file)
//  5. LOG_LEVEL environment variable
//  6. Default (info)
//
// The other LOG_* variables are the defaults beneath the settings as well.
func NewLogger(config *Config) zerolog.Logger {
	logConfig := logging.ConfigFromEnv()
	level := determineLogLevel(config, validateLogLevel(logConfig.Level))
	logConfig.Level = level
	logConfig.AddCaller = level == "debug" || level == "trace"
	if config.NoColor {
		logConfig.NoColor = true
	}
	if s := config.Settings; s != nil {
		logConfig.Format = orDefault(s.LogFormat, logConfig.Format)
		logConfig.Output = orDefault(s.LogOutput, logConfig.Output)
	}

	return logging.NewLoggerFromConfig(logConfig)
}

// determineLogLevel determines the log level using clear precedence rules.
func determineLogLevel(config *Config, fallback string) string {
	if config.LogLevel != "" {
		validated := validateLogLevel(config.LogLevel)
		if validated != config.LogLevel {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using %q\n", config.LogLevel, validated)
		}
		return validated
	}

	if config.Verbose && config.Quiet {
		fmt.Fprintf(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet\n")
		return "warn"
	}
	if config.Verbose {
		return "debug"
	}
	if config.Quiet {
		return "warn"
	}

	if s := config.Settings; s != nil && s.LogLevel != "" {
		return validateLogLevel(s.LogLevel)
	}
	return fallback
}

// validateLogLevel returns level if valid, otherwise "info".
func validateLogLevel(level string) string {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return level
	default:
		return "info"
	}
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
