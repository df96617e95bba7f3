// Package constants provides shared constants used throughout the hvcalls codebase.
// This includes file names, directory conventions and permissions that
// should be consistent across the extractor, the aggregator and the CLI.
package constants

// Directory and file naming conventions shared with extract_hvcalls.py
const (
	// JSONOutputDirectory is where the extraction script writes one document per binary
	JSONOutputDirectory = "hvcalls_json_files"

	// UnknownDirectory holds documents for calls the script could not name
	UnknownDirectory = "unknown"

	// JSONExtension marks source documents inside an input directory
	JSONExtension = ".json"

	// ResultsFile is the clean, collapsed and renamed table
	ResultsFile = "hvcalls_results.json"

	// DuplicatesFile is the per-address provenance table
	DuplicatesFile = "hvcalls_results_with_duplicates.json"

	// UnknownFile is the clean table built from the unknown subdirectory
	UnknownFile = "hvcalls_unknown.json"

	// DefaultScriptName is the IDAPython script run against each binary
	DefaultScriptName = "extract_hvcalls.py"

	// DefaultConfigName is the config file name searched in $HOME and the working directory
	DefaultConfigName = ".hvcalls"
)

// Binary extensions handled by the extractor
const (
	// SysExtension marks kernel drivers (winhvr.sys, winhv.sys)
	SysExtension = ".sys"

	// ExeExtension marks kernel images (ntoskrnl.exe, securekernel.exe)
	ExeExtension = ".exe"

	// I64Extension marks an existing 64-bit IDA database next to a binary
	I64Extension = ".i64"
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// JSONIndent is the indentation used for every written document
const JSONIndent = "  "
