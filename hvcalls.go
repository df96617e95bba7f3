// Package hvcalls builds hypercall tables from Hyper-V binaries.
//
// A Pipeline runs the disassembler's extraction script over every driver and
// executable in a directory, then aggregates the JSON documents the script
// writes into the result tables:
//
//	p, err := hvcalls.New(
//		hvcalls.WithToolPath(`C:\IDA\idat64.exe`),
//		hvcalls.WithBinaryPath(`C:\hv\binaries`),
//		hvcalls.WithScriptPath(`C:\hv\scripts`),
//		hvcalls.WithResultPath(`C:\hv\result`),
//	)
//	if err != nil {
//		return err
//	}
//	res, err := p.Run(ctx)
package hvcalls

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/hvcalls/pkg/aggregate"
	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/document"
	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/extract"
)

// Pipeline extracts and aggregates hypercall tables.
type Pipeline interface {
	// Extract runs the extraction script over every binary.
	Extract(ctx context.Context) (*extract.Report, error)

	// Merge aggregates the extracted documents into the result directory.
	Merge(ctx context.Context) (*aggregate.Result, error)

	// Run extracts, then merges.
	Run(ctx context.Context) (*Result, error)
}

// Result holds the outcome of both stages of a run.
type Result struct {
	Extraction  *extract.Report
	Aggregation *aggregate.Result
}

type pipeline struct {
	config *config
	logger *zerolog.Logger
}

// New creates a Pipeline from the given options.
func New(opts ...Option) (Pipeline, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return &pipeline{config: cfg, logger: cfg.logger}, nil
}

// Extract implements Pipeline.
func (p *pipeline) Extract(ctx context.Context) (*extract.Report, error) {
	if p.config.binaryPath == "" {
		return nil, errors.NewValidationError("binary_path", "", "binary directory is required")
	}

	binaries, err := extract.ListBinaries(p.config.binaryPath)
	if err != nil {
		p.logger.Error().Err(err).Str("path", p.config.binaryPath).Msg("Cannot list binaries")
		return nil, err
	}

	jsonDir := p.config.jsonDir()
	if !document.DirExists(jsonDir) {
		if err := os.MkdirAll(jsonDir, constants.DirPermissions); err != nil {
			err = errors.WrapIO("create", jsonDir, err)
			p.logger.Error().Err(err).Msg("Cannot create document directory")
			return nil, err
		}
		p.logger.Info().Str("path", jsonDir).Msgf("Created directory: %s", jsonDir)
	}

	runner, err := extract.NewRunner(p.logger, p.config.toolPath, p.config.scriptFile(),
		extract.WithAnalyzeDatabases(p.config.analyzeDatabases),
		extract.WithMaxConcurrent(p.config.maxConcurrent),
		extract.WithExecutor(p.config.executor),
	)
	if err != nil {
		return nil, err
	}

	p.logger.Info().Int("binaries", len(binaries)).Msg("Starting extraction")
	report, err := runner.Run(ctx, binaries)
	if err != nil {
		return report, err
	}
	p.logger.Info().
		Int("succeeded", report.Succeeded()).
		Int("failed", len(report.Failed())).
		Msg("Extraction complete")
	return report, nil
}

// Merge implements Pipeline.
func (p *pipeline) Merge(ctx context.Context) (*aggregate.Result, error) {
	if p.config.resultPath == "" {
		return nil, errors.NewValidationError("result_path", "", "result directory is required")
	}

	agg, err := aggregate.New(p.logger, p.config.aggregateOptions...)
	if err != nil {
		return nil, err
	}

	p.logger.Info().Str("input", p.config.jsonDir()).Msg("Starting document aggregation")
	return agg.Run(ctx, p.config.jsonDir(), p.config.resultPath)
}

// Run implements Pipeline. Aggregation starts only after every extraction
// invocation has finished.
func (p *pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	report, err := p.Extract(ctx)
	res.Extraction = report
	if err != nil {
		return res, err
	}

	agg, err := p.Merge(ctx)
	res.Aggregation = agg
	if err != nil {
		return res, err
	}

	p.logger.Info().Msg("Processing complete")
	return res, nil
}
