package aggregate

import (
	"path/filepath"

	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/errors"
)

// Option configures an Aggregator.
type Option func(*options) error

type options struct {
	resultsFile    string
	duplicatesFile string
	unknownFile    string
	unknownDir     string
	reportPath     string
	hooks          []TransitionHook
}

func defaultOptions() *options {
	return &options{
		resultsFile:    constants.ResultsFile,
		duplicatesFile: constants.DuplicatesFile,
		unknownFile:    constants.UnknownFile,
		unknownDir:     constants.UnknownDirectory,
	}
}

// WithResultsFile sets the file name of the clean output.
func WithResultsFile(name string) Option {
	return func(o *options) error {
		if err := validateFileName("results_file", name); err != nil {
			return err
		}
		o.resultsFile = name
		return nil
	}
}

// WithDuplicatesFile sets the file name of the provenance output.
func WithDuplicatesFile(name string) Option {
	return func(o *options) error {
		if err := validateFileName("duplicates_file", name); err != nil {
			return err
		}
		o.duplicatesFile = name
		return nil
	}
}

// WithUnknownFile sets the file name of the output built from the unknown subdirectory.
func WithUnknownFile(name string) Option {
	return func(o *options) error {
		if err := validateFileName("unknown_file", name); err != nil {
			return err
		}
		o.unknownFile = name
		return nil
	}
}

// WithUnknownDirectory sets the name of the input subdirectory holding
// documents of unidentified origin. An empty name disables that branch.
func WithUnknownDirectory(name string) Option {
	return func(o *options) error {
		if name != "" && filepath.Base(name) != name {
			return errors.NewValidationError("unknown_directory", name, "must be a plain directory name")
		}
		o.unknownDir = name
		return nil
	}
}

// WithReport writes a YAML run report to path after every run.
func WithReport(path string) Option {
	return func(o *options) error {
		o.reportPath = path
		return nil
	}
}

// OnTransition registers a hook called on every state change.
func OnTransition(fn TransitionHook) Option {
	return func(o *options) error {
		if fn != nil {
			o.hooks = append(o.hooks, fn)
		}
		return nil
	}
}

func validateFileName(field, name string) error {
	if name == "" {
		return errors.NewValidationError(field, name, "must not be empty")
	}
	if filepath.Base(name) != name {
		return errors.NewValidationError(field, name, "must be a plain file name")
	}
	return nil
}
