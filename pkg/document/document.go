// Package document reads and writes the JSON documents exchanged with the
// extraction script. Reading is tolerant: a missing, unreadable or malformed
// document is logged and treated as empty so one bad binary never stops a run.
// Writing produces indented, diff-friendly JSON with keys in address order.
package document

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/errors"
)

// Entry is one key/value pair as read from a source document.
type Entry struct {
	Key   string
	Value string
}

// Source is one loaded source document. Entries keep document order.
type Source struct {
	Name    string
	Path    string
	Entries []Entry
}

// Len returns the number of entries.
func (s Source) Len() int {
	return len(s.Entries)
}

// Empty reports whether the document yielded no entries.
func (s Source) Empty() bool {
	return len(s.Entries) == 0
}

// List returns the JSON documents directly inside dir, sorted by file name.
// Subdirectories are not descended into.
func List(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError("list", dir, errors.NewNotFoundError("directory", dir))
		}
		return nil, errors.WrapIO("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, errors.NewIOError("list", dir, errors.NewValidationError("dir", dir, "not a directory"))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapIO("list", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), constants.JSONExtension) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// DirExists reports whether path is an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
