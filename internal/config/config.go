// Package config loads hvcalls settings from config files, .env files and
// HVCALLS_* environment variables using viper.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "HVCALLS"

// Configuration keys.
const (
	KeyIDAPath          = "ida_path"
	KeyBinaryPath       = "binary_path"
	KeyScriptPath       = "script_path"
	KeyResultPath       = "result_path"
	KeyJSONPath         = "json_path"
	KeyAnalyzeDatabases = "analyze_databases"
	KeyMaxConcurrent    = "max_concurrent"
	KeyReportPath       = "report_path"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
	KeyLogOutput        = "log_output"
)

// legacyKeys maps keys to their names in the config.json written by the
// Windows front end (viper lowercases keys).
var legacyKeys = map[string]string{
	KeyIDAPath:    "idapath",
	KeyBinaryPath: "windowsbinarypath",
	KeyScriptPath: "scriptpath",
	KeyResultPath: "resultpath",
}

// Config holds the loaded settings.
type Config struct {
	IDAPath          string `yaml:"ida_path"`
	BinaryPath       string `yaml:"binary_path"`
	ScriptPath       string `yaml:"script_path"`
	ResultPath       string `yaml:"result_path"`
	JSONPath         string `yaml:"json_path,omitempty"`
	AnalyzeDatabases bool   `yaml:"analyze_databases"`
	MaxConcurrent    int    `yaml:"max_concurrent"`
	ReportPath       string `yaml:"report_path,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogOutput string `yaml:"log_output"`

	// ConfigFile is the file the settings were read from, if any.
	ConfigFile string `yaml:"-"`
}

// Load reads the configuration. Sources in order of precedence:
//  1. HVCALLS_* environment variables
//  2. .env.local and .env in the working directory
//  3. configFile, or .hvcalls.{yaml,json} in the working or home directory
//  4. defaults
//
// Command-line flags are applied by the caller on top of the result.
func Load(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "auto")
	v.SetDefault(KeyLogOutput, "stderr")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(constants.DefaultConfigName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "cannot read "+configFileName(v, configFile), err)
		}
	}

	cfg := &Config{
		IDAPath:          getString(v, KeyIDAPath),
		BinaryPath:       getString(v, KeyBinaryPath),
		ScriptPath:       getString(v, KeyScriptPath),
		ResultPath:       getString(v, KeyResultPath),
		JSONPath:         getString(v, KeyJSONPath),
		AnalyzeDatabases: v.GetBool(KeyAnalyzeDatabases),
		MaxConcurrent:    v.GetInt(KeyMaxConcurrent),
		ReportPath:       getString(v, KeyReportPath),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFormat:        v.GetString(KeyLogFormat),
		LogOutput:        v.GetString(KeyLogOutput),
		ConfigFile:       v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be corrected later.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 0 {
		return errors.NewConfigError(KeyMaxConcurrent, "must not be negative",
			errors.NewValidationError(KeyMaxConcurrent, c.MaxConcurrent, "must not be negative"))
	}
	return nil
}

// getString reads key, falling back to its legacy name.
func getString(v *viper.Viper, key string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	if legacy, ok := legacyKeys[key]; ok {
		return v.GetString(legacy)
	}
	return ""
}

func configFileName(v *viper.Viper, configFile string) string {
	if configFile != "" {
		return configFile
	}
	if used := v.ConfigFileUsed(); used != "" {
		return used
	}
	return constants.DefaultConfigName
}

// loadEnvFiles loads .env.local, then .env. Neither overrides variables
// already set, so .env.local wins over .env and the real environment wins
// over both.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
