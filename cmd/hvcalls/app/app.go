// Package app provides the application context and dependency management
// for the hvcalls CLI. It centralizes configuration, logging and the
// construction of the extraction pipeline.
package app

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/hvcalls"
	"github.com/agentstation/hvcalls/internal/config"
	"github.com/agentstation/hvcalls/pkg/aggregate"
	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/extract"
)

// App represents the hvcalls application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config      *Config
	logger      *zerolog.Logger
	fixedLogger bool

	// out receives command output; logs go to the logger.
	out io.Writer

	// executor overrides the process executor (tests only).
	executor extract.Executor
}

// New creates a new App instance with the given version information.
// Configuration is loaded from the default locations and can be replaced
// with functional options.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		out:     os.Stdout,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// settings returns the loaded settings, never nil.
func (a *App) settings() *config.Config {
	if a.config.Settings == nil {
		a.config.Settings = &config.Config{}
	}
	return a.config.Settings
}

// Pipeline creates a pipeline from the configuration that logs through logger.
func (a *App) Pipeline(logger *zerolog.Logger) (hvcalls.Pipeline, error) {
	p, err := hvcalls.New(a.pipelineOptions(logger)...)
	if err != nil {
		return nil, errors.NewConfigError("pipeline", "invalid settings", err)
	}
	return p, nil
}

// pipelineOptions constructs pipeline options from the app configuration.
func (a *App) pipelineOptions(logger *zerolog.Logger) []hvcalls.Option {
	s := a.settings()
	opts := []hvcalls.Option{
		hvcalls.WithLogger(logger),
		hvcalls.WithToolPath(s.IDAPath),
		hvcalls.WithBinaryPath(s.BinaryPath),
		hvcalls.WithScriptPath(s.ScriptPath),
		hvcalls.WithResultPath(s.ResultPath),
		hvcalls.WithAnalyzeDatabases(s.AnalyzeDatabases),
		hvcalls.WithMaxConcurrent(s.MaxConcurrent),
	}

	if s.JSONPath != "" {
		opts = append(opts, hvcalls.WithJSONPath(s.JSONPath))
	}
	if s.ReportPath != "" {
		opts = append(opts, hvcalls.WithAggregateOptions(aggregate.WithReport(s.ReportPath)))
	}
	if a.executor != nil {
		opts = append(opts, hvcalls.WithExecutor(a.executor))
	}

	return opts
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		a.fixedLogger = true
		return nil
	}
}

// WithOutput sets the writer command output is printed to.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.out = w
		return nil
	}
}

// WithExecutor sets the executor used to run the disassembler (useful for testing).
func WithExecutor(e extract.Executor) Option {
	return func(a *App) error {
		a.executor = e
		return nil
	}
}
