package app

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/agentstation/utc"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/agentstation/hvcalls/internal/cmd/emoji"
	"github.com/agentstation/hvcalls/internal/cmd/output"
	"github.com/agentstation/hvcalls/internal/cmd/table"
	"github.com/agentstation/hvcalls/internal/config"
	"github.com/agentstation/hvcalls/pkg/aggregate"
	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/extract"
	"github.com/agentstation/hvcalls/pkg/logging"
)

// runFlags holds path overrides given on the command line.
type runFlags struct {
	ida              string
	binaries         string
	script           string
	jsonDir          string
	output           string
	report           string
	analyzeDatabases bool
	maxConcurrent    int
	showCalls        bool
}

func (f *runFlags) addExtract(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.ida, "ida", "", "path to the IDA Pro console executable (idat64)")
	cmd.Flags().StringVar(&f.binaries, "binaries", "", "directory holding the .sys and .exe files to analyze")
	cmd.Flags().StringVar(&f.script, "script", "", "extraction script, or the directory holding extract_hvcalls.py")
	cmd.Flags().BoolVar(&f.analyzeDatabases, "analyze-databases", false, "auto-analyze binaries without a database instead of batch mode")
	cmd.Flags().IntVar(&f.maxConcurrent, "max-concurrent", 0, "maximum number of concurrent IDA instances (0 = all at once)")
}

func (f *runFlags) addMerge(cmd *cobra.Command, inputFlag string) {
	cmd.Flags().StringVar(&f.jsonDir, inputFlag, "", "directory holding the extracted JSON documents")
	cmd.Flags().StringVar(&f.output, "output", "", "directory the result tables are written to")
	cmd.Flags().StringVar(&f.report, "report", "", "write a YAML run report to this file")
	cmd.Flags().BoolVar(&f.showCalls, "show-calls", false, "print the merged hypercall table")
}

// apply copies the flags that were set onto the settings.
func (f *runFlags) apply(cmd *cobra.Command, s *config.Config) {
	changed := cmd.Flags().Changed
	if changed("ida") {
		s.IDAPath = f.ida
	}
	if changed("binaries") {
		s.BinaryPath = f.binaries
	}
	if changed("script") {
		s.ScriptPath = f.script
	}
	if changed("input") || changed("json-dir") {
		s.JSONPath = f.jsonDir
	}
	if changed("output") {
		s.ResultPath = f.output
	}
	if changed("report") {
		s.ReportPath = f.report
	}
	if changed("analyze-databases") {
		s.AnalyzeDatabases = f.analyzeDatabases
	}
	if changed("max-concurrent") {
		s.MaxConcurrent = f.maxConcurrent
	}
}

// NewMergeCommand creates the merge command.
func (a *App) NewMergeCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     "merge",
		GroupID: "core",
		Short:   "Merge extracted JSON documents into result tables",
		Long: `Merge reads every *.json document in the input directory in file name
order and writes the result tables to the output directory. Documents in an
"unknown" subdirectory are merged into a separate table.`,
		Example: `  hvcalls merge --input ./hvcalls_json_files --output ./result
  hvcalls merge --input ./json --output ./result --report ./result/run.yaml -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd, a.settings())

			ctx := logging.WithOperation(logging.WithLogger(cmd.Context(), a.logger), "merge")
			p, err := a.Pipeline(logging.FromContext(ctx))
			if err != nil {
				return err
			}

			started := utc.Now()
			res, err := p.Merge(ctx)
			if err != nil {
				return err
			}
			return a.printMerge(cmd, res, started, flags.showCalls)
		},
	}
	flags.addMerge(cmd, "input")
	return cmd
}

// NewExtractCommand creates the extract command.
func (a *App) NewExtractCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     "extract",
		GroupID: "core",
		Short:   "Run the IDA Pro extraction script over every binary",
		Long: `Extract starts one IDA Pro instance per .sys and .exe file in the binary
directory. Binaries with an existing .i64 database are opened from it. The
script writes one JSON document per binary next to itself, in
hvcalls_json_files.`,
		Example: `  hvcalls extract --ida /opt/ida/idat64 --binaries ./binaries --script ./scripts`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd, a.settings())

			ctx := logging.WithOperation(logging.WithLogger(cmd.Context(), a.logger), "extract")
			p, err := a.Pipeline(logging.FromContext(ctx))
			if err != nil {
				return err
			}

			report, err := p.Extract(ctx)
			if report != nil {
				if perr := a.printExtract(cmd, report); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	flags.addExtract(cmd)
	cmd.Flags().StringVar(&flags.jsonDir, "json-dir", "", "directory the script writes its documents to")
	return cmd
}

// NewRunCommand creates the run command.
func (a *App) NewRunCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     "run",
		GroupID: "core",
		Short:   "Extract, then merge",
		Long: `Run extracts hypercalls from every binary and, once all IDA Pro instances
have exited, merges the documents they wrote into the result tables.`,
		Example: `  hvcalls run --ida /opt/ida/idat64 --binaries ./binaries --script ./scripts --output ./result`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd, a.settings())

			ctx := logging.WithOperation(logging.WithLogger(cmd.Context(), a.logger), "run")
			p, err := a.Pipeline(logging.FromContext(ctx))
			if err != nil {
				return err
			}

			started := utc.Now()
			res, err := p.Run(ctx)
			if res != nil && res.Extraction != nil {
				if perr := a.printExtract(cmd, res.Extraction); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			return a.printMerge(cmd, res.Aggregation, started, flags.showCalls)
		},
	}
	flags.addExtract(cmd)
	flags.addMerge(cmd, "json-dir")
	return cmd
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "hvcalls version %s\n", a.version)
			fmt.Fprintf(w, "commit: %s\n", a.commit)
			fmt.Fprintf(w, "built: %s\n", a.date)
			fmt.Fprintf(w, "built by: %s\n", a.builtBy)
			fmt.Fprintf(w, "go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// NewManCommand creates the hidden man page command.
func (a *App) NewManCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "man",
		Short:  "Generate man page",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			header := &doc.GenManHeader{
				Title:   "HVCALLS",
				Section: "1",
				Source:  "hvcalls " + a.version,
				Manual:  "hvcalls Manual",
			}
			return doc.GenMan(cmd.Root(), header, cmd.OutOrStdout())
		},
	}
}

func (a *App) printMerge(cmd *cobra.Command, res *aggregate.Result, started utc.Time, showCalls bool) error {
	if a.config.Quiet {
		return nil
	}

	w := cmd.OutOrStdout()
	format := output.DetectFormat(a.config.Format)
	formatter := output.NewFormatter(format)

	if !format.Tabular() {
		return formatter.Format(w, aggregate.NewReport(res, aggregate.StatusCompleted, started, utc.Now()))
	}

	if len(res.Documents) == 0 && len(res.UnknownDocuments) == 0 {
		fmt.Fprintf(w, "%s No JSON files found in %s\n", emoji.Warning, res.Input)
		return nil
	}
	if err := formatter.Format(w, table.DocumentsToTableData(slices.Concat(res.Documents, res.UnknownDocuments))); err != nil {
		return err
	}
	if showCalls {
		if err := formatter.Format(w, table.CallsToTableData(res.Merged)); err != nil {
			return err
		}
	}
	if err := formatter.Format(w, table.SummaryToTableData(res)); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s\n", emoji.Success, res.Summary())
	return nil
}

// invocationView is the JSON and YAML form of one invocation.
type invocationView struct {
	Binary   string `json:"binary" yaml:"binary"`
	ExitCode int    `json:"exit_code" yaml:"exit_code"`
	Duration string `json:"duration" yaml:"duration"`
	Stderr   string `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

type extractView struct {
	Invocations []invocationView `json:"invocations" yaml:"invocations"`
	Skipped     []string         `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func (a *App) printExtract(cmd *cobra.Command, report *extract.Report) error {
	if a.config.Quiet {
		return nil
	}

	w := cmd.OutOrStdout()
	format := output.DetectFormat(a.config.Format)
	formatter := output.NewFormatter(format)

	if format.Tabular() {
		if err := formatter.Format(w, table.InvocationsToTableData(report)); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %d of %d binaries extracted\n", emoji.Success, report.Succeeded(), len(report.Invocations)+len(report.Skipped))
		return nil
	}

	view := extractView{Invocations: make([]invocationView, 0, len(report.Invocations))}
	for _, inv := range report.Invocations {
		v := invocationView{
			Binary:   filepath.Base(inv.Binary),
			ExitCode: inv.ExitCode,
			Duration: inv.Duration.String(),
			Stderr:   inv.Stderr,
		}
		if inv.Err != nil {
			var procErr *errors.ProcessError
			if errors.As(inv.Err, &procErr) && procErr.Err != nil {
				v.Error = procErr.Err.Error()
			} else {
				v.Error = inv.Err.Error()
			}
		}
		view.Invocations = append(view.Invocations, v)
	}
	for _, binary := range report.Skipped {
		view.Skipped = append(view.Skipped, filepath.Base(binary))
	}
	return formatter.Format(w, view)
}
