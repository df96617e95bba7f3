package hvcalls

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/agentstation/hvcalls/pkg/aggregate"
	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/extract"
	"github.com/agentstation/hvcalls/pkg/logging"
)

// Option is a function that configures a Pipeline
type Option func(*config) error

type config struct {
	logger *zerolog.Logger

	toolPath   string
	binaryPath string
	scriptPath string
	resultPath string
	jsonPath   string

	analyzeDatabases bool
	maxConcurrent    int
	executor         extract.Executor

	aggregateOptions []aggregate.Option
}

func defaultConfig() *config {
	return &config{
		logger:   logging.Nop(),
		executor: extract.ProcessExecutor{},
	}
}

// scriptFile returns the extraction script. A script path naming a directory
// refers to the default script inside it.
func (c *config) scriptFile() string {
	if info, err := os.Stat(c.scriptPath); err == nil && info.IsDir() {
		return filepath.Join(c.scriptPath, constants.DefaultScriptName)
	}
	return c.scriptPath
}

// jsonDir returns the directory the script writes its documents to.
func (c *config) jsonDir() string {
	if c.jsonPath != "" {
		return c.jsonPath
	}
	return filepath.Join(filepath.Dir(c.scriptFile()), constants.JSONOutputDirectory)
}

// WithLogger configures the logger used by every stage
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) error {
		c.logger = logging.OrNop(logger)
		return nil
	}
}

// WithToolPath configures the disassembler executable
func WithToolPath(path string) Option {
	return func(c *config) error {
		c.toolPath = path
		return nil
	}
}

// WithBinaryPath configures the directory holding the binaries to analyze
func WithBinaryPath(path string) Option {
	return func(c *config) error {
		c.binaryPath = path
		return nil
	}
}

// WithScriptPath configures the extraction script, or the directory holding it
func WithScriptPath(path string) Option {
	return func(c *config) error {
		c.scriptPath = path
		return nil
	}
}

// WithResultPath configures the directory the result tables are written to
func WithResultPath(path string) Option {
	return func(c *config) error {
		c.resultPath = path
		return nil
	}
}

// WithJSONPath overrides the directory the extracted documents are read from.
// By default it is the hvcalls_json_files directory next to the script.
func WithJSONPath(path string) Option {
	return func(c *config) error {
		c.jsonPath = path
		return nil
	}
}

// WithAnalyzeDatabases configures auto-analysis for binaries without a database
func WithAnalyzeDatabases(enabled bool) Option {
	return func(c *config) error {
		c.analyzeDatabases = enabled
		return nil
	}
}

// WithMaxConcurrent bounds how many extraction invocations run at once
func WithMaxConcurrent(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return errors.NewValidationError("max_concurrent", n, "must not be negative")
		}
		c.maxConcurrent = n
		return nil
	}
}

// WithExecutor replaces the process executor used for extraction
func WithExecutor(e extract.Executor) Option {
	return func(c *config) error {
		if e == nil {
			return errors.NewValidationError("executor", nil, "must not be nil")
		}
		c.executor = e
		return nil
	}
}

// WithAggregateOptions passes options to the aggregation stage
func WithAggregateOptions(opts ...aggregate.Option) Option {
	return func(c *config) error {
		c.aggregateOptions = append(c.aggregateOptions, opts...)
		return nil
	}
}
