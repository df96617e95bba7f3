package aggregate

import (
	"fmt"
	"strings"

	"github.com/agentstation/hvcalls/pkg/hvcall"
)

// DocumentStat describes one source document that contributed to a run.
type DocumentStat struct {
	Name    string `yaml:"name" json:"name"`
	Entries int    `yaml:"entries" json:"entries"`
	Records int    `yaml:"records" json:"records"`
}

// Output describes one written output document.
type Output struct {
	Path    string `yaml:"path" json:"path"`
	Entries int    `yaml:"entries" json:"entries"`
}

// Result holds the tables built by a run and what was written.
type Result struct {
	Input  string
	Output string

	// Merged is the collapsed, name-normalized table of the top-level documents.
	Merged *hvcall.Table
	// Duplicates lists every distinct name and source per raw address.
	Duplicates *hvcall.DuplicateTable
	// Unknown is built like Merged from the unknown subdirectory.
	Unknown *hvcall.Table

	Documents        []DocumentStat
	UnknownDocuments []DocumentStat

	DuplicateKeys   int
	RemovedVariants int

	Written []Output
	State   State
}

func newResult(input, output string) *Result {
	return &Result{
		Input:      input,
		Output:     output,
		Merged:     hvcall.NewTable(),
		Duplicates: hvcall.NewDuplicateTable(),
		Unknown:    hvcall.NewTable(),
		State:      Idle,
	}
}

// Summary returns a one-line description of the run.
func (r *Result) Summary() string {
	if r == nil {
		return "no result"
	}
	if len(r.Documents) == 0 && len(r.UnknownDocuments) == 0 {
		return "no documents processed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d calls from %d documents", r.Merged.Len(), len(r.Documents))
	fmt.Fprintf(&b, ", %d duplicate keys, %d parameter variants removed", r.DuplicateKeys, r.RemovedVariants)
	fmt.Fprintf(&b, ", %d addresses with provenance", r.Duplicates.Len())
	if len(r.UnknownDocuments) > 0 {
		fmt.Fprintf(&b, ", %d unknown calls from %d documents", r.Unknown.Len(), len(r.UnknownDocuments))
	}
	fmt.Fprintf(&b, ", %d files written", len(r.Written))
	return b.String()
}
