// Package emoji provides symbol constants for CLI output.
package emoji

// Symbols used as status markers in tables and messages.
const (
	// Success marks a completed operation or a written file.
	Success = "✓"

	// Error marks a failed operation.
	Error = "✗"

	// Stop marks a run stopped by the user.
	Stop = "■"

	// Warning marks a non-fatal problem.
	Warning = "!"

	// Optional marks a skipped item.
	Optional = "-"
)
