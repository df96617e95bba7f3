// Package extract runs the disassembler's extraction script over a set of
// binaries. All invocations are started together and the runner waits for
// every one of them before returning. A failing invocation is logged and
// recorded; it never stops its siblings.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/logging"
)

// Runner invokes the tool once per binary.
type Runner struct {
	logger           *zerolog.Logger
	toolPath         string
	scriptPath       string
	analyzeDatabases bool
	maxConcurrent    int
	executor         Executor
}

// Option configures a Runner.
type Option func(*Runner) error

// WithAnalyzeDatabases selects auto-analysis instead of batch mode for
// binaries without an existing database.
func WithAnalyzeDatabases(enabled bool) Option {
	return func(r *Runner) error {
		r.analyzeDatabases = enabled
		return nil
	}
}

// WithMaxConcurrent bounds the number of invocations running at once.
// Zero means no bound.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) error {
		if n < 0 {
			return errors.NewValidationError("max_concurrent", n, "must not be negative")
		}
		r.maxConcurrent = n
		return nil
	}
}

// WithExecutor replaces the process executor.
func WithExecutor(e Executor) Option {
	return func(r *Runner) error {
		if e == nil {
			return errors.NewValidationError("executor", nil, "must not be nil")
		}
		r.executor = e
		return nil
	}
}

// NewRunner creates a Runner for the tool at toolPath running the script at scriptPath.
func NewRunner(logger *zerolog.Logger, toolPath, scriptPath string, opts ...Option) (*Runner, error) {
	r := &Runner{
		logger:     logging.OrNop(logger),
		toolPath:   toolPath,
		scriptPath: scriptPath,
		executor:   ProcessExecutor{},
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Invocation is the outcome of running the tool on one binary.
type Invocation struct {
	Binary   string
	Command  Command
	ExitCode int
	Stderr   string
	Duration time.Duration
	// Err is a *errors.ProcessError when the invocation did not exit cleanly.
	Err error
}

// Failed reports whether the invocation did not exit cleanly.
func (i Invocation) Failed() bool {
	return i.Err != nil
}

// Report lists the invocations of one run in launch order.
type Report struct {
	Invocations []Invocation
	// Skipped holds binaries never launched because the run was stopped.
	Skipped []string
}

// Failed returns the invocations that did not exit cleanly.
func (r *Report) Failed() []Invocation {
	var failed []Invocation
	for _, inv := range r.Invocations {
		if inv.Failed() {
			failed = append(failed, inv)
		}
	}
	return failed
}

// Succeeded returns how many invocations exited cleanly.
func (r *Report) Succeeded() int {
	return len(r.Invocations) - len(r.Failed())
}

// Run launches one invocation per binary and waits for all of them.
//
// ctx is checked before every launch. Once it is done no further invocations
// start, the running ones are awaited, and the returned error satisfies
// errors.IsCanceled. Invocation failures are reported, not returned.
func (r *Runner) Run(ctx context.Context, binaries []string) (*Report, error) {
	if err := r.validate(); err != nil {
		r.logger.Error().Err(err).Msg("Cannot start extraction")
		return nil, err
	}

	results := make([]Invocation, len(binaries))
	var sem chan struct{}
	if r.maxConcurrent > 0 {
		sem = make(chan struct{}, r.maxConcurrent)
	}

	var wg conc.WaitGroup
	launched := 0
	var stopErr error

launch:
	for i, binary := range binaries {
		if err := ctx.Err(); err != nil {
			stopErr = errors.Canceled("extraction", err)
			break
		}
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				stopErr = errors.Canceled("extraction", ctx.Err())
				break launch
			}
		}

		cmd := Command{Path: r.toolPath, Args: Arguments(binary, r.scriptPath, r.analyzeDatabases)}
		r.logger.Info().Str("binary", filepath.Base(binary)).Msgf("Processing: %s", filepath.Base(binary))

		wg.Go(func() {
			if sem != nil {
				defer func() { <-sem }()
			}
			results[i] = r.invoke(ctx, binary, cmd)
		})
		launched++
	}

	wg.Wait()

	report := &Report{
		Invocations: results[:launched],
		Skipped:     append([]string(nil), binaries[launched:]...),
	}

	r.logger.Info().
		Int("launched", launched).
		Int("failed", len(report.Failed())).
		Int("skipped", len(report.Skipped)).
		Msg("Extraction finished")

	if stopErr != nil {
		r.logger.Warn().Int("skipped", len(report.Skipped)).Msg("Extraction stopped")
		return report, stopErr
	}
	return report, nil
}

// invoke runs one invocation to completion. ctx only carries the logger; a
// started process is never stopped.
func (r *Runner) invoke(ctx context.Context, binary string, cmd Command) Invocation {
	logger := logging.FromContext(logging.WithBinary(logging.WithLogger(ctx, r.logger), filepath.Base(binary)))
	start := time.Now()
	done := r.executor.Execute(cmd)

	inv := Invocation{
		Binary:   binary,
		Command:  cmd,
		ExitCode: done.ExitCode,
		Stderr:   done.Stderr,
		Duration: time.Since(start),
	}

	switch {
	case done.Err != nil:
		inv.Err = errors.NewProcessError("extract", cmd.String(), done.Stderr, done.ExitCode, done.Err)
	case done.ExitCode != 0:
		inv.Err = errors.NewProcessError("extract", cmd.String(), done.Stderr, done.ExitCode,
			fmt.Errorf("exit status %d", done.ExitCode))
	default:
		logger.Debug().Dur("duration", inv.Duration).Msg("Extraction complete")
		return inv
	}

	logger.Warn().
		Err(inv.Err).
		Int("exit_code", done.ExitCode).
		Msgf("IDA warning: %s", done.Stderr)
	return inv
}

func (r *Runner) validate() error {
	if r.toolPath == "" {
		return errors.NewValidationError("ida_path", r.toolPath, "tool path is required")
	}
	info, err := os.Stat(r.toolPath)
	if err != nil {
		return errors.WrapValidation("ida_path", err)
	}
	if info.IsDir() {
		return errors.NewValidationError("ida_path", r.toolPath, "tool executable not found")
	}
	if r.scriptPath == "" {
		return errors.NewValidationError("script_path", r.scriptPath, "script path is required")
	}
	info, err = os.Stat(r.scriptPath)
	if err != nil {
		return errors.WrapValidation("script_path", err)
	}
	if info.IsDir() {
		return errors.NewValidationError("script_path", r.scriptPath, "extraction script not found")
	}
	return nil
}
