package aggregate_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hvcalls/pkg/aggregate"
	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/hvcall"
	"github.com/agentstation/hvcalls/pkg/logging"
)

func writeDocs(t *testing.T, dir string, docs map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newAggregator(t *testing.T, opts ...aggregate.Option) (*aggregate.Aggregator, *logging.TestLogger) {
	t.Helper()
	testLogger := logging.NewTestLogger(t)
	agg, err := aggregate.New(testLogger.Logger, opts...)
	require.NoError(t, err)
	return agg, testLogger
}

func TestRunEndToEnd(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "result")
	writeDocs(t, input, map[string]string{
		"a.json": `{"0x10": "WinHvpFoo", "0x1010": "WinHvpFooP2"}`,
		"b.json": `{"0x10": "WinHvGetVersion"}`,
	})

	agg, testLogger := newAggregator(t)
	res, err := agg.Run(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, map[hvcall.Address]string{0x10: "HvCallGetVersion"}, res.Merged.Map())
	assert.JSONEq(t, `{"0x10": "HvCallGetVersion"}`, readFile(t, filepath.Join(output, "hvcalls_results.json")))
	assert.JSONEq(t, `{
		"0x10": ["WinHvpFoo_a.json", "WinHvGetVersion_b.json"],
		"0x1010": ["WinHvpFooP2_a.json"]
	}`, readFile(t, filepath.Join(output, "hvcalls_results_with_duplicates.json")))
	assert.NoFileExists(t, filepath.Join(output, "hvcalls_unknown.json"))

	assert.Equal(t, 1, res.DuplicateKeys)
	assert.Equal(t, 1, res.RemovedVariants)
	assert.Equal(t, []aggregate.DocumentStat{
		{Name: "a.json", Entries: 2, Records: 2},
		{Name: "b.json", Entries: 1, Records: 1},
	}, res.Documents)
	assert.Len(t, res.Written, 2)
	assert.Equal(t, aggregate.Done, res.State)
	assert.Equal(t, aggregate.Done, agg.State())

	testLogger.AssertContains(t, "Processing a.json... (2 calls)")
	testLogger.AssertContains(t, `"document":"b.json","duplicates":1`)
	testLogger.AssertContains(t, "Processing b.json... (1 calls)")
	testLogger.AssertContains(t, "Found 1 duplicate keys")
	testLogger.AssertContains(t, "Removed 1 parameter variants")
	testLogger.AssertContains(t, "Saved: hvcalls_results.json (1 entries)")
	testLogger.AssertContains(t, "Saved: hvcalls_results_with_duplicates.json (2 entries)")
}

func TestRunDuplicateTracking(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	writeDocs(t, input, map[string]string{
		"a.json": `{"0x5": "A"}`,
		"b.json": `{"5": "B"}`,
		"c.json": `{"0x5": "A"}`,
		"d.json": `{"0x5": "a"}`,
	})

	agg, _ := newAggregator(t)
	res, err := agg.Run(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, []string{"A_a.json", "B_b.json", "A_c.json", "a_d.json"}, res.Duplicates.Get(5))
	assert.Equal(t, map[hvcall.Address]string{5: "a"}, res.Merged.Map())
	assert.Equal(t, 3, res.DuplicateKeys)
}

func TestRunCollapseKeepsUnmatchedVariants(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	writeDocs(t, input, map[string]string{
		"a.json": `{"0x1011": "HvlpOnlyVariant", "0x2012": "First", "0x3012": "Second"}`,
	})

	agg, testLogger := newAggregator(t)
	res, err := agg.Run(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, map[hvcall.Address]string{0x11: "HvCallOnlyVariant", 0x12: "Second"}, res.Merged.Map())
	assert.Equal(t, 0, res.RemovedVariants)
	testLogger.AssertNotContains(t, "parameter variants")
}

func TestRunSkipsBadDocuments(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	writeDocs(t, input, map[string]string{
		"a.json":    `{"0x10": "Broken"`,
		"b.json":    "   ",
		"c.json":    `{"0x11": "HvlGood", "not-a-key": "Skipped"}`,
		"notes.txt": `{"0x12": "Ignored"}`,
	})

	agg, testLogger := newAggregator(t)
	res, err := agg.Run(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, map[hvcall.Address]string{0x11: "HvCallGood"}, res.Merged.Map())
	assert.Equal(t, []aggregate.DocumentStat{{Name: "c.json", Entries: 2, Records: 1}}, res.Documents)
	testLogger.AssertContains(t, "JSON error")
	testLogger.AssertNotContains(t, "Processing a.json")
	testLogger.AssertNotContains(t, "Processing b.json")
}

func TestRunNoDocuments(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")
	writeDocs(t, filepath.Join(input, "unknown"), map[string]string{"x.json": `{"0x1": "Sk"}`})

	agg, testLogger := newAggregator(t)
	res, err := agg.Run(context.Background(), input, output)
	require.NoError(t, err)

	testLogger.AssertContains(t, "No JSON files found to process")
	assert.Empty(t, res.Written)
	assert.Equal(t, aggregate.Done, res.State)
	assert.Equal(t, "no documents processed", res.Summary())

	entries, err := os.ReadDir(output)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunMissingInputDirectory(t *testing.T) {
	agg, testLogger := newAggregator(t)
	res, err := agg.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())

	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, errors.IsCanceled(err))
	assert.NotNil(t, res)
	assert.Equal(t, aggregate.LoadingDocuments, res.State)
	testLogger.AssertContains(t, "Aggregation failed")
}

func TestRunWriteFailure(t *testing.T) {
	input := t.TempDir()
	writeDocs(t, input, map[string]string{"a.json": `{"0x1": "A"}`})

	// A regular file where the output directory should be.
	output := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(output, nil, 0644))

	agg, testLogger := newAggregator(t)
	_, err := agg.Run(context.Background(), input, output)
	require.Error(t, err)

	var ioErr *errors.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "create", ioErr.Operation)
	testLogger.AssertContains(t, "Aggregation failed")
}

func TestRunUnknownSubdirectory(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	writeDocs(t, input, map[string]string{"a.json": `{"0x1": "HvlpA"}`})
	writeDocs(t, filepath.Join(input, "unknown"), map[string]string{
		"x.json": `{"0x20": "SkFoo", "0x1020": "SkFooP2"}`,
		"y.json": `{"0x21": "IumBar"}`,
	})

	agg, _ := newAggregator(t)
	res, err := agg.Run(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, map[hvcall.Address]string{0x1: "HvCallA"}, res.Merged.Map())
	assert.Equal(t, map[hvcall.Address]string{0x20: "HvCallFoo", 0x21: "HvCallIumBar"}, res.Unknown.Map())
	assert.Equal(t, 1, res.RemovedVariants)
	assert.Len(t, res.UnknownDocuments, 2)
	assert.JSONEq(t, `{"0x20": "HvCallFoo", "0x21": "HvCallIumBar"}`, readFile(t, filepath.Join(output, "hvcalls_unknown.json")))

	// Unknown documents never reach the provenance table.
	assert.Equal(t, []hvcall.Address{0x1}, res.Duplicates.Addresses())
}

func TestRunStateTransitions(t *testing.T) {
	input := t.TempDir()
	writeDocs(t, input, map[string]string{"a.json": `{"0x1": "A"}`})
	writeDocs(t, filepath.Join(input, "unknown"), map[string]string{"x.json": `{"0x2": "B"}`})

	var visited []aggregate.State
	agg, _ := newAggregator(t, aggregate.OnTransition(func(_, to aggregate.State) {
		visited = append(visited, to)
	}))

	_, err := agg.Run(context.Background(), input, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []aggregate.State{
		aggregate.LoadingDocuments,
		aggregate.Merging,
		aggregate.Collapsing,
		aggregate.Normalizing,
		aggregate.Writing,
		aggregate.MergingWithDuplicates,
		aggregate.Writing,
		aggregate.UnknownSubdirectory,
		aggregate.Merging,
		aggregate.Collapsing,
		aggregate.Normalizing,
		aggregate.Writing,
		aggregate.Done,
	}, visited)
}

func TestRunCanceledBeforeStart(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	writeDocs(t, input, map[string]string{"a.json": `{"0x1": "A"}`})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg, testLogger := newAggregator(t)
	res, err := agg.Run(ctx, input, output)
	require.Error(t, err)

	assert.True(t, errors.IsCanceled(err))
	assert.True(t, errors.Is(err, errors.ErrCanceled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, res.Written)
	assert.Equal(t, aggregate.LoadingDocuments, res.State)
	testLogger.AssertContains(t, "Aggregation stopped")
	testLogger.AssertNotContains(t, "Aggregation failed")
	assert.NoFileExists(t, filepath.Join(output, "hvcalls_results.json"))
}

// stopAfterContext reports cancellation once Err has been called more than
// limit times.
type stopAfterContext struct {
	context.Context
	mu    sync.Mutex
	calls int
	limit int
}

func (c *stopAfterContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls > c.limit {
		return context.Canceled
	}
	return nil
}

func TestRunCanceledBetweenDocuments(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	writeDocs(t, input, map[string]string{
		"a.json": `{"0x1": "A"}`,
		"b.json": `{"0x2": "B"}`,
		"c.json": `{"0x3": "C"}`,
	})

	ctx := &stopAfterContext{Context: context.Background(), limit: 2}
	agg, testLogger := newAggregator(t)

	res, err := agg.Run(ctx, input, output)
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))

	var canceled *errors.CanceledError
	require.True(t, errors.As(err, &canceled))
	assert.Equal(t, "loading_documents", canceled.Stage)

	assert.Equal(t, 3, ctx.calls)
	assert.Equal(t, aggregate.LoadingDocuments, res.State)
	assert.Empty(t, res.Documents)
	assert.Empty(t, res.Written)
	assert.Equal(t, 0, res.Merged.Len())
	assert.NoFileExists(t, filepath.Join(output, "hvcalls_results.json"))
	assert.NoFileExists(t, filepath.Join(output, "hvcalls_results_with_duplicates.json"))
	testLogger.AssertContains(t, "Aggregation stopped")
	testLogger.AssertNotContains(t, "Processing")
}

func TestRunCanceledBetweenBranches(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	writeDocs(t, input, map[string]string{"a.json": `{"0x1": "A"}`})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg, _ := newAggregator(t, aggregate.OnTransition(func(_, to aggregate.State) {
		if to == aggregate.Normalizing {
			cancel()
		}
	}))

	res, err := agg.Run(ctx, input, output)
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))

	assert.FileExists(t, filepath.Join(output, "hvcalls_results.json"))
	assert.NoFileExists(t, filepath.Join(output, "hvcalls_results_with_duplicates.json"))
	assert.Equal(t, 0, res.Duplicates.Len())
	assert.Equal(t, aggregate.Writing, res.State)
}

func TestRunCustomFileNames(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	writeDocs(t, input, map[string]string{"a.json": `{"0x1": "A"}`})
	writeDocs(t, filepath.Join(input, "other"), map[string]string{"x.json": `{"0x2": "B"}`})

	agg, _ := newAggregator(t,
		aggregate.WithResultsFile("clean.json"),
		aggregate.WithDuplicatesFile("provenance.json"),
		aggregate.WithUnknownFile("other.json"),
		aggregate.WithUnknownDirectory("other"),
	)

	_, err := agg.Run(context.Background(), input, output)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(output, "clean.json"))
	assert.FileExists(t, filepath.Join(output, "provenance.json"))
	assert.FileExists(t, filepath.Join(output, "other.json"))
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  aggregate.Option
	}{
		{"empty results file", aggregate.WithResultsFile("")},
		{"nested duplicates file", aggregate.WithDuplicatesFile(filepath.Join("a", "b.json"))},
		{"empty unknown file", aggregate.WithUnknownFile("")},
		{"nested unknown directory", aggregate.WithUnknownDirectory(filepath.Join("a", "unknown"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aggregate.New(logging.Nop(), tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestResultSummary(t *testing.T) {
	input := t.TempDir()
	writeDocs(t, input, map[string]string{
		"a.json": `{"0x10": "WinHvpFoo", "0x1010": "WinHvpFooP2"}`,
		"b.json": `{"0x10": "WinHvGetVersion"}`,
	})

	agg, _ := newAggregator(t)
	res, err := agg.Run(context.Background(), input, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t,
		"1 calls from 2 documents, 1 duplicate keys, 1 parameter variants removed, 2 addresses with provenance, 2 files written",
		res.Summary())
}
