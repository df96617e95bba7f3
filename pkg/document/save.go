package document

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/agentstation/hvcalls/pkg/constants"
	"github.com/agentstation/hvcalls/pkg/errors"
	"github.com/agentstation/hvcalls/pkg/hvcall"
	"github.com/agentstation/hvcalls/pkg/logging"
)

// Encodable is an output document.
type Encodable interface {
	json.Marshaler
	Len() int
}

// Ordered is a JSON object whose members are written in a fixed order.
type Ordered struct {
	keys   []string
	values []any
}

// Add appends a member.
func (o *Ordered) Add(key string, value any) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
}

// Len returns the number of members.
func (o *Ordered) Len() int {
	return len(o.keys)
}

// Keys returns the member keys in write order.
func (o *Ordered) Keys() []string {
	return append([]string(nil), o.keys...)
}

// MarshalJSON implements json.Marshaler without HTML escaping.
func (o *Ordered) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeRaw(&buf, key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := encodeRaw(&buf, o.values[i]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeRaw(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// FromTable builds the clean output document: one name per address, keys in
// ascending address order.
func FromTable(t *hvcall.Table) *Ordered {
	o := &Ordered{}
	for _, r := range t.Sorted() {
		o.Add(hvcall.FormatKey(r.Address), r.Name)
	}
	return o
}

// FromDuplicates builds the duplicates output document.
func FromDuplicates(d *hvcall.DuplicateTable) *Ordered {
	o := &Ordered{}
	for _, addr := range d.Addresses() {
		o.Add(hvcall.FormatKey(addr), d.Get(addr))
	}
	return o
}

// Saver writes output documents.
type Saver struct {
	logger *zerolog.Logger
}

// NewSaver creates a Saver that logs every written document through logger.
func NewSaver(logger *zerolog.Logger) *Saver {
	return &Saver{logger: logging.OrNop(logger)}
}

// Save writes doc to path as indented JSON, creating missing directories.
// An empty document is not written.
func (s *Saver) Save(path string, doc Encodable) error {
	if doc == nil || doc.Len() == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}

	data, err := Marshal(doc)
	if err != nil {
		return errors.WrapIO("encode", path, err)
	}

	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", path, err)
	}

	s.logger.Info().
		Str("path", path).
		Int("entries", doc.Len()).
		Msgf("Saved: %s (%d entries)", filepath.Base(path), doc.Len())
	return nil
}

// Marshal encodes v as indented JSON without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", constants.JSONIndent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
