package document

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/tailscale/hujson"

	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/hvcall"
	"github.com/agentstation/hvcalls/pkg/logging"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Loader reads source documents.
type Loader struct {
	logger *zerolog.Logger
}

// NewLoader creates a Loader that reports skipped input through logger.
func NewLoader(logger *zerolog.Logger) *Loader {
	return &Loader{logger: logging.OrNop(logger)}
}

// Load reads the document at path. It never fails: a missing file, an
// unreadable file, blank content or malformed JSON all yield an empty Source.
// Comments and trailing commas are accepted.
func (l *Loader) Load(path string) Source {
	src := Source{Name: filepath.Base(path), Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug().Str("path", path).Msg("File not found")
			return src
		}
		l.logger.Warn().Err(errors.WrapIO("read", path, err)).Str("document", src.Name).Msg("Cannot read document")
		return src
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return src
	}

	entries, err := parse(data)
	if err != nil {
		l.logger.Warn().Err(errors.WrapParse("json", src.Name, err)).Str("document", src.Name).Msg("JSON error")
		return src
	}
	src.Entries = entries
	return src
}

// Records converts entries to call records. Keys that are not addresses are
// skipped. When two keys name the same address the later value wins and the
// address keeps the position of its first key.
func (l *Loader) Records(src Source) []hvcall.CallRecord {
	table := hvcall.NewTable()
	for _, e := range src.Entries {
		addr, err := hvcall.ParseKey(e.Key)
		if err != nil {
			l.logger.Debug().Err(err).Str("document", src.Name).Str("key", e.Key).Msg("Skipping entry")
			continue
		}
		table.Set(addr, e.Value)
	}
	return table.Records()
}

// parse reads a flat JSON object, keeping member order.
func parse(data []byte) ([]Entry, error) {
	root, err := hujson.Parse(data)
	if err != nil {
		return nil, err
	}

	obj, ok := root.Value.(*hujson.Object)
	if !ok {
		return nil, errors.New("top-level value is not an object")
	}

	entries := make([]Entry, 0, len(obj.Members))
	for _, m := range obj.Members {
		name, ok := m.Name.Value.(hujson.Literal)
		if !ok {
			return nil, errors.New("object member name is not a string")
		}
		var key string
		if err := json.Unmarshal(name, &key); err != nil {
			return nil, err
		}
		value, err := scalarText(m.Value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

// scalarText renders a member value as text: strings unquoted, null empty,
// other literals verbatim and nested values as compact JSON.
func scalarText(v hujson.Value) (string, error) {
	lit, ok := v.Value.(hujson.Literal)
	if !ok {
		nested := v.Clone()
		nested.Standardize()
		nested.Minimize()
		return string(nested.Pack()), nil
	}

	switch {
	case len(lit) > 0 && lit[0] == '"':
		var s string
		if err := json.Unmarshal(lit, &s); err != nil {
			return "", err
		}
		return s, nil
	case string(lit) == "null":
		return "", nil
	default:
		return string(lit), nil
	}
}
