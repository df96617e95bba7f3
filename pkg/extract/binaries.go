package extract

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/errors"
)

// ListBinaries returns the driver and executable images directly inside dir,
// sorted by file name. Extensions match case-insensitively.
func ListBinaries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError("list", dir, errors.NewNotFoundError("directory", dir))
		}
		return nil, errors.WrapIO("list", dir, err)
	}

	var binaries []string
	for _, e := range entries {
		if e.IsDir() || !IsBinary(e.Name()) {
			continue
		}
		binaries = append(binaries, filepath.Join(dir, e.Name()))
	}
	return binaries, nil
}

// IsBinary reports whether name has an extension the extraction script handles.
func IsBinary(name string) bool {
	ext := filepath.Ext(name)
	return strings.EqualFold(ext, constants.SysExtension) || strings.EqualFold(ext, constants.ExeExtension)
}

// Arguments builds the tool arguments for one binary. An existing analysis
// database next to the binary (<binary>.i64) is opened instead of the binary.
// Otherwise a new database is created, with auto-analysis when
// analyzeDatabases is set and in batch mode when it is not.
func Arguments(binary, script string, analyzeDatabases bool) []string {
	scriptArg := `-S"` + script + `"`

	database := binary + constants.I64Extension
	if info, err := os.Stat(database); err == nil && !info.IsDir() {
		return []string{"-A", scriptArg, database}
	}

	mode := "-B"
	if analyzeDatabases {
		mode = "-A"
	}
	return []string{"-c", mode, scriptArg, binary}
}
