package extract_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/extract"
	"github.com/agentstation/hvcalls/pkg/logging"
)

type toolSetup struct {
	tool     string
	script   string
	binaries []string
}

func setupTool(t *testing.T, names ...string) toolSetup {
	t.Helper()
	dir := t.TempDir()
	s := toolSetup{
		tool:   touch(t, filepath.Join(dir, "idat64")),
		script: touch(t, filepath.Join(dir, "extract_hvcalls.py")),
	}
	for _, name := range names {
		s.binaries = append(s.binaries, touch(t, filepath.Join(dir, name)))
	}
	return s
}

func TestRunLaunchesEveryBinary(t *testing.T) {
	s := setupTool(t, "a.sys", "b.exe", "c.sys")

	var mu sync.Mutex
	var seen []string
	exec := extract.ExecutorFunc(func(cmd extract.Command) extract.Completion {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, cmd.Args[len(cmd.Args)-1])
		return extract.Completion{}
	})

	testLogger := logging.NewTestLogger(t)
	runner, err := extract.NewRunner(testLogger.Logger, s.tool, s.script, extract.WithExecutor(exec))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), s.binaries)
	require.NoError(t, err)

	assert.ElementsMatch(t, s.binaries, seen)
	require.Len(t, report.Invocations, 3)
	for i, inv := range report.Invocations {
		assert.Equal(t, s.binaries[i], inv.Binary)
		assert.Equal(t, s.tool, inv.Command.Path)
		assert.False(t, inv.Failed())
	}
	assert.Equal(t, 3, report.Succeeded())
	assert.Empty(t, report.Skipped)
	testLogger.AssertContains(t, "Processing: a.sys")
	testLogger.AssertContains(t, "Processing: b.exe")
}

func TestRunFailureDoesNotStopSiblings(t *testing.T) {
	s := setupTool(t, "bad.sys", "good1.sys", "good2.exe")

	var calls atomic.Int32
	exec := extract.ExecutorFunc(func(cmd extract.Command) extract.Completion {
		calls.Add(1)
		if filepath.Base(cmd.Args[len(cmd.Args)-1]) == "bad.sys" {
			return extract.Completion{ExitCode: 4, Stderr: "license expired"}
		}
		return extract.Completion{}
	})

	testLogger := logging.NewTestLogger(t)
	runner, err := extract.NewRunner(testLogger.Logger, s.tool, s.script, extract.WithExecutor(exec))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), s.binaries)
	require.NoError(t, err)

	assert.EqualValues(t, 3, calls.Load())
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 4, failed[0].ExitCode)

	var procErr *errors.ProcessError
	require.True(t, errors.As(failed[0].Err, &procErr))
	assert.Equal(t, 4, procErr.ExitCode)
	assert.Equal(t, "license expired", procErr.Output)

	assert.Equal(t, 2, report.Succeeded())
	testLogger.AssertContains(t, "IDA warning: license expired")
	testLogger.AssertContains(t, `"level":"warn"`)
	testLogger.AssertContains(t, `"binary":"bad.sys"`)
}

func TestRunStartFailureIsRecorded(t *testing.T) {
	s := setupTool(t, "a.sys")
	exec := extract.ExecutorFunc(func(extract.Command) extract.Completion {
		return extract.Completion{ExitCode: -1, Err: os.ErrPermission}
	})

	runner, err := extract.NewRunner(logging.Nop(), s.tool, s.script, extract.WithExecutor(exec))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), s.binaries)
	require.NoError(t, err)
	require.Len(t, report.Failed(), 1)
	assert.ErrorIs(t, report.Invocations[0].Err, os.ErrPermission)
}

func TestRunRunsConcurrently(t *testing.T) {
	s := setupTool(t, "a.sys", "b.sys", "c.sys")

	// Every invocation blocks until all three have started.
	var started sync.WaitGroup
	started.Add(3)
	exec := extract.ExecutorFunc(func(extract.Command) extract.Completion {
		started.Done()
		started.Wait()
		return extract.Completion{}
	})

	runner, err := extract.NewRunner(logging.Nop(), s.tool, s.script, extract.WithExecutor(exec))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := runner.Run(context.Background(), s.binaries)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("invocations did not run concurrently")
	}
}

func TestRunMaxConcurrent(t *testing.T) {
	s := setupTool(t, "a.sys", "b.sys", "c.sys", "d.sys", "e.sys")

	var running, peak atomic.Int32
	exec := extract.ExecutorFunc(func(extract.Command) extract.Completion {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return extract.Completion{}
	})

	runner, err := extract.NewRunner(logging.Nop(), s.tool, s.script,
		extract.WithExecutor(exec), extract.WithMaxConcurrent(2))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), s.binaries)
	require.NoError(t, err)
	assert.Len(t, report.Invocations, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunCanceledBetweenLaunches(t *testing.T) {
	s := setupTool(t, "a.sys", "b.sys", "c.sys")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished atomic.Int32
	exec := extract.ExecutorFunc(func(extract.Command) extract.Completion {
		cancel()
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
		return extract.Completion{}
	})

	testLogger := logging.NewTestLogger(t)
	// One slot: the second launch waits for the first invocation, which cancels.
	runner, err := extract.NewRunner(testLogger.Logger, s.tool, s.script,
		extract.WithExecutor(exec), extract.WithMaxConcurrent(1))
	require.NoError(t, err)

	report, err := runner.Run(ctx, s.binaries)
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))

	// The started invocation ran to completion.
	assert.EqualValues(t, 1, finished.Load())
	require.Len(t, report.Invocations, 1)
	assert.False(t, report.Invocations[0].Failed())
	assert.Equal(t, s.binaries[1:], report.Skipped)
	testLogger.AssertContains(t, "Extraction stopped")
}

func TestRunCanceledBeforeStart(t *testing.T) {
	s := setupTool(t, "a.sys")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := extract.ExecutorFunc(func(extract.Command) extract.Completion {
		t.Error("no invocation expected")
		return extract.Completion{}
	})
	runner, err := extract.NewRunner(logging.Nop(), s.tool, s.script, extract.WithExecutor(exec))
	require.NoError(t, err)

	report, err := runner.Run(ctx, s.binaries)
	assert.True(t, errors.IsCanceled(err))
	assert.Empty(t, report.Invocations)
	assert.Equal(t, s.binaries, report.Skipped)
}

func TestRunValidatesPaths(t *testing.T) {
	s := setupTool(t)
	missing := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name    string
		tool    string
		script  string
		field   string
		message string
	}{
		{"no tool", "", s.script, "ida_path", "tool path is required"},
		{"missing tool", missing, s.script, "ida_path", missing},
		{"no script", s.tool, "", "script_path", "script path is required"},
		{"missing script", s.tool, missing, "script_path", missing},
		{"script is a directory", s.tool, t.TempDir(), "script_path", "extraction script not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, err := extract.NewRunner(logging.Nop(), tt.tool, tt.script)
			require.NoError(t, err)

			_, err = runner.Run(context.Background(), nil)
			require.Error(t, err)

			var valErr *errors.ValidationError
			require.True(t, errors.As(err, &valErr))
			assert.Equal(t, tt.field, valErr.Field)
			assert.Contains(t, valErr.Message, tt.message)
		})
	}
}

func TestNewRunnerRejectsInvalidOptions(t *testing.T) {
	_, err := extract.NewRunner(logging.Nop(), "ida", "script.py", extract.WithMaxConcurrent(-1))
	assert.True(t, errors.IsValidationError(err))

	_, err = extract.NewRunner(logging.Nop(), "ida", "script.py", extract.WithExecutor(nil))
	assert.True(t, errors.IsValidationError(err))
}

func TestProcessExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script")
	}

	dir := t.TempDir()
	tool := filepath.Join(dir, "tool.sh")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho \"$@\" > \""+dir+"/args\"\necho broken >&2\nexit 3\n"), 0755))

	done := extract.ProcessExecutor{}.Execute(extract.Command{Path: tool, Args: []string{"-c", "-B", "bin.sys"}})
	assert.NoError(t, done.Err)
	assert.Equal(t, 3, done.ExitCode)
	assert.Equal(t, "broken", done.Stderr)

	args, err := os.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	assert.Equal(t, "-c -B bin.sys\n", string(args))

	missing := extract.ProcessExecutor{}.Execute(extract.Command{Path: filepath.Join(dir, "absent")})
	assert.Error(t, missing.Err)
	assert.Equal(t, -1, missing.ExitCode)
}
