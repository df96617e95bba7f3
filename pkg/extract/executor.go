package extract

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/agentstation/hvcalls/pkg/errors"
)

// Command is one tool invocation.
type Command struct {
	Path string
	Args []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Completion is the outcome of a finished command.
type Completion struct {
	ExitCode int
	Stderr   string
	// Err is set when the command could not be started or waited for.
	Err error
}

// Executor starts a command and blocks until it exits.
type Executor interface {
	Execute(cmd Command) Completion
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(cmd Command) Completion

// Execute implements Executor.
func (f ExecutorFunc) Execute(cmd Command) Completion {
	return f(cmd)
}

// ProcessExecutor runs commands as operating system processes. Standard output
// is discarded and standard error is captured. Processes are never killed;
// they run to completion once started.
type ProcessExecutor struct{}

// Execute implements Executor.
func (ProcessExecutor) Execute(cmd Command) Completion {
	c := exec.Command(cmd.Path, cmd.Args...)
	var stderr bytes.Buffer
	c.Stderr = &stderr

	err := c.Run()
	out := Completion{Stderr: strings.TrimSpace(stderr.String())}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		out.ExitCode = -1
		out.Err = err
	}
	return out
}
