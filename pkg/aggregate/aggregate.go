// Package aggregate merges the per-binary hypercall documents produced by the
// extraction script into the result tables.
//
// A run lists the JSON documents of an input directory in file name order and
// builds three outputs from them:
//
//   - a clean table: all documents merged (later documents win), parameter
//     variants collapsed and names normalized
//   - a provenance table: every distinct "Name_SourceFile" per raw address
//   - a clean table built the same way from the unknown subdirectory
//
// Malformed documents are skipped. A missing input directory, a write failure
// or cancellation ends the run.
package aggregate

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentstation/utc"
	"github.com/rs/zerolog"

	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/document"
	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/hvcall"
	"github.com/agentstation/hvcalls/pkg/logging"
)

// Aggregator runs the aggregation pipeline. One Aggregator may be reused for
// several runs but must not run concurrently against the same output directory.
type Aggregator struct {
	logger *zerolog.Logger
	loader *document.Loader
	saver  *document.Saver
	opts   *options

	mu    sync.RWMutex
	state State
}

// New creates an Aggregator that logs through logger.
func New(logger *zerolog.Logger, opts ...Option) (*Aggregator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	logger = logging.OrNop(logger)
	return &Aggregator{
		logger: logger,
		loader: document.NewLoader(logger),
		saver:  document.NewSaver(logger),
		opts:   o,
		state:  Idle,
	}, nil
}

// State returns the current state.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Aggregator) transition(res *Result, to State) {
	a.mu.Lock()
	from := a.state
	a.state = to
	a.mu.Unlock()

	res.State = to
	if from == to {
		return
	}
	a.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("Aggregation state")
	for _, hook := range a.opts.hooks {
		hook(from, to)
	}
}

// Run aggregates the documents in inputDir and writes the outputs to outputDir.
//
// The returned Result is never nil. When the run is stopped through ctx the
// error satisfies errors.IsCanceled and the Result holds what was done before
// the stop; its State is the state the run stopped in.
func (a *Aggregator) Run(ctx context.Context, inputDir, outputDir string) (*Result, error) {
	started := utc.Now()
	res := newResult(inputDir, outputDir)
	a.transition(res, Idle)

	err := a.run(ctx, res, inputDir, outputDir)
	switch {
	case err == nil:
		a.transition(res, Done)
		if rerr := a.writeReport(res, StatusCompleted, started); rerr != nil {
			a.logger.Error().Err(rerr).Str("path", a.opts.reportPath).Msg("Cannot write run report")
			return res, rerr
		}
		return res, nil
	case errors.IsCanceled(err):
		a.logger.Warn().Stringer("state", res.State).Msg("Aggregation stopped")
		if rerr := a.writeReport(res, StatusStopped, started); rerr != nil {
			a.logger.Error().Err(rerr).Str("path", a.opts.reportPath).Msg("Cannot write run report")
		}
		return res, err
	default:
		a.logger.Error().Err(err).Stringer("state", res.State).Msg("Aggregation failed")
		return res, err
	}
}

func (a *Aggregator) run(ctx context.Context, res *Result, inputDir, outputDir string) error {
	a.transition(res, LoadingDocuments)
	files, err := document.List(inputDir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", outputDir, err)
	}

	if len(files) == 0 {
		a.logger.Info().Str("input", inputDir).Msg("No JSON files found to process")
		return nil
	}

	sources, err := a.load(ctx, files)
	if err != nil {
		return err
	}

	merged, removed := a.mergeClean(ctx, res, sources, &res.Documents)
	res.Merged = merged
	res.RemovedVariants += removed

	if err := a.write(res, filepath.Join(outputDir, a.opts.resultsFile), document.FromTable(merged)); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return errors.Canceled(MergingWithDuplicates.String(), err)
	}
	a.transition(res, MergingWithDuplicates)
	for _, src := range sources {
		res.Duplicates.Merge(src.Name, a.loader.Records(src))
	}

	if err := a.write(res, filepath.Join(outputDir, a.opts.duplicatesFile), document.FromDuplicates(res.Duplicates)); err != nil {
		return err
	}

	return a.runUnknown(ctx, res, inputDir, outputDir)
}

func (a *Aggregator) runUnknown(ctx context.Context, res *Result, inputDir, outputDir string) error {
	if a.opts.unknownDir == "" {
		return nil
	}
	dir := filepath.Join(inputDir, a.opts.unknownDir)
	if !document.DirExists(dir) {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return errors.Canceled(UnknownSubdirectory.String(), err)
	}
	a.transition(res, UnknownSubdirectory)

	files, err := document.List(dir)
	if err != nil {
		return err
	}
	sources, err := a.load(ctx, files)
	if err != nil {
		return err
	}

	unknown, removed := a.mergeClean(ctx, res, sources, &res.UnknownDocuments)
	res.Unknown = unknown
	res.RemovedVariants += removed

	return a.write(res, filepath.Join(outputDir, a.opts.unknownFile), document.FromTable(unknown))
}

// load reads every document, checking ctx before each one.
func (a *Aggregator) load(ctx context.Context, files []string) ([]document.Source, error) {
	sources := make([]document.Source, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, errors.Canceled(LoadingDocuments.String(), err)
		}
		src := a.loader.Load(path)
		if src.Empty() {
			continue
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// mergeClean merges sources last-write-wins, then collapses parameter
// variants and normalizes names.
func (a *Aggregator) mergeClean(ctx context.Context, res *Result, sources []document.Source, stats *[]DocumentStat) (*hvcall.Table, int) {
	a.transition(res, Merging)
	ctx = logging.WithLogger(ctx, a.logger)
	merged := hvcall.NewTable()
	for _, src := range sources {
		logger := logging.FromContext(logging.WithDocument(ctx, src.Name))
		logger.Info().
			Int("calls", src.Len()).
			Msgf("Processing %s... (%d calls)", src.Name, src.Len())

		records := a.loader.Records(src)
		if n := merged.Merge(records); n > 0 {
			logger.Info().Int("duplicates", n).Msgf("Found %d duplicate keys", n)
			res.DuplicateKeys += n
		}
		*stats = append(*stats, DocumentStat{Name: src.Name, Entries: src.Len(), Records: len(records)})
	}

	a.transition(res, Collapsing)
	collapsed, removed := hvcall.Collapse(merged)
	if removed > 0 {
		a.logger.Info().Int("removed", removed).Msgf("Removed %d parameter variants", removed)
	}

	a.transition(res, Normalizing)
	hvcall.NormalizeNames(collapsed)
	return collapsed, removed
}

func (a *Aggregator) write(res *Result, path string, doc document.Encodable) error {
	if doc.Len() == 0 {
		a.logger.Debug().Str("path", path).Msg("Nothing to write")
		return nil
	}
	a.transition(res, Writing)
	if err := a.saver.Save(path, doc); err != nil {
		return err
	}
	res.Written = append(res.Written, Output{Path: path, Entries: doc.Len()})
	return nil
}

func (a *Aggregator) writeReport(res *Result, status string, started utc.Time) error {
	if a.opts.reportPath == "" {
		return nil
	}
	report := NewReport(res, status, started, utc.Now())
	if err := report.WriteFile(a.opts.reportPath); err != nil {
		return err
	}
	a.logger.Info().Str("path", a.opts.reportPath).Str("status", status).Msg("Run report written")
	return nil
}
