// Package table converts run results to rows for CLI table output.
package table

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/hvcalls/internal/cmd/emoji"
	"github.com/agentstation/hvcalls/pkg/aggregate"
	"github.com/agentstation/hvcalls/pkg/extract"
	"github.com/agentstation/hvcalls/pkg/hvcall"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align // Optional: column alignment
}

// maxStderr is the longest stderr excerpt shown in a table cell.
const maxStderr = 60

var title = cases.Title(language.English)

// Label turns a snake_case key into a column or row label.
func Label(key string) string {
	return title.String(strings.ReplaceAll(key, "_", " "))
}

// SummaryToTableData converts an aggregation result to a property table.
func SummaryToTableData(res *aggregate.Result) Data {
	rows := [][]string{
		{Label("documents"), strconv.Itoa(len(res.Documents))},
		{Label("calls"), strconv.Itoa(res.Merged.Len())},
		{Label("duplicate_keys"), strconv.Itoa(res.DuplicateKeys)},
		{Label("removed_variants"), strconv.Itoa(res.RemovedVariants)},
		{Label("provenance_addresses"), strconv.Itoa(res.Duplicates.Len())},
	}
	if len(res.UnknownDocuments) > 0 {
		rows = append(rows,
			[]string{Label("unknown_documents"), strconv.Itoa(len(res.UnknownDocuments))},
			[]string{Label("unknown_calls"), strconv.Itoa(res.Unknown.Len())},
		)
	}
	for _, out := range res.Written {
		rows = append(rows, []string{emoji.Success + " " + filepath.Base(out.Path), strconv.Itoa(out.Entries)})
	}

	return Data{
		Headers:         []string{Label("property"), Label("value")},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
}

// DocumentsToTableData lists the documents that contributed to a run.
func DocumentsToTableData(docs []aggregate.DocumentStat) Data {
	rows := make([][]string, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []string{d.Name, strconv.Itoa(d.Entries), strconv.Itoa(d.Records)})
	}
	return Data{
		Headers:         []string{Label("document"), Label("entries"), Label("records")},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignRight, AlignRight},
	}
}

// CallsToTableData lists a call table in address order.
func CallsToTableData(t *hvcall.Table) Data {
	records := t.Sorted()
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{hvcall.FormatKey(r.Address), r.Name})
	}
	return Data{
		Headers:         []string{Label("address"), Label("name")},
		Rows:            rows,
		ColumnAlignment: []Align{AlignRight, AlignLeft},
	}
}

// InvocationsToTableData converts an extraction report to table format.
func InvocationsToTableData(report *extract.Report) Data {
	rows := make([][]string, 0, len(report.Invocations)+len(report.Skipped))
	for _, inv := range report.Invocations {
		status := emoji.Success
		if inv.Failed() {
			status = emoji.Error
		}
		rows = append(rows, []string{
			status,
			filepath.Base(inv.Binary),
			strconv.Itoa(inv.ExitCode),
			FormatDuration(inv.Duration),
			Truncate(firstLine(inv.Stderr), maxStderr),
		})
	}
	for _, binary := range report.Skipped {
		rows = append(rows, []string{emoji.Optional, filepath.Base(binary), "-", "-", "skipped"})
	}

	return Data{
		Headers:         []string{"", Label("binary"), Label("exit"), Label("duration"), Label("stderr")},
		Rows:            rows,
		ColumnAlignment: []Align{AlignCenter, AlignLeft, AlignRight, AlignRight, AlignLeft},
	}
}

// FormatDuration renders d rounded for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
