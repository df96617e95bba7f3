package aggregate

import (
	"os"
	"path/filepath"

	"github.com/agentstation/utc"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/errors"
)

// Report status values.
const (
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
)

// Report is the YAML run report written when WithReport is set.
type Report struct {
	Input            string         `yaml:"input" json:"input"`
	Output           string         `yaml:"output" json:"output"`
	Status           string         `yaml:"status" json:"status"`
	StartedAt        utc.Time       `yaml:"started_at" json:"started_at"`
	FinishedAt       utc.Time       `yaml:"finished_at" json:"finished_at"`
	Documents        []DocumentStat `yaml:"documents" json:"documents"`
	UnknownDocuments []DocumentStat `yaml:"unknown_documents,omitempty" json:"unknown_documents,omitempty"`
	DuplicateKeys    int            `yaml:"duplicate_keys" json:"duplicate_keys"`
	RemovedVariants  int            `yaml:"removed_variants" json:"removed_variants"`
	Calls            int            `yaml:"calls" json:"calls"`
	UnknownCalls     int            `yaml:"unknown_calls" json:"unknown_calls"`
	Outputs          []Output       `yaml:"outputs" json:"outputs"`
}

// NewReport builds a report from a run result.
func NewReport(res *Result, status string, started, finished utc.Time) *Report {
	return &Report{
		Input:            res.Input,
		Output:           res.Output,
		Status:           status,
		StartedAt:        started,
		FinishedAt:       finished,
		Documents:        res.Documents,
		UnknownDocuments: res.UnknownDocuments,
		DuplicateKeys:    res.DuplicateKeys,
		RemovedVariants:  res.RemovedVariants,
		Calls:            res.Merged.Len(),
		UnknownCalls:     res.Unknown.Len(),
		Outputs:          res.Written,
	}
}

// WriteFile writes the report as YAML, creating missing directories.
func (r *Report) WriteFile(path string) error {
	data, err := yaml.MarshalWithOptions(r, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

// ReadReport loads a report written by WriteFile.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return &r, nil
}
