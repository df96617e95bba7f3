package hvcall

import (
	"sort"
)

// CallRecord is one hypercall found in a source document.
type CallRecord struct {
	Address Address
	Name    string
}

// Table maps addresses to names and remembers the order in which addresses
// were first stored. Overwriting an address keeps its original position, so
// iteration order depends only on the order of first insertion.
type Table struct {
	order []Address
	names map[Address]string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{names: make(map[Address]string)}
}

// TableOf builds a table from records in the given order.
func TableOf(records ...CallRecord) *Table {
	t := NewTable()
	for _, r := range records {
		t.Set(r.Address, r.Name)
	}
	return t
}

// Set stores name at addr, overwriting any previous name.
func (t *Table) Set(addr Address, name string) {
	if _, ok := t.names[addr]; !ok {
		t.order = append(t.order, addr)
	}
	t.names[addr] = name
}

// Get returns the name stored at addr.
func (t *Table) Get(addr Address) (string, bool) {
	name, ok := t.names[addr]
	return name, ok
}

// Has reports whether addr is stored.
func (t *Table) Has(addr Address) bool {
	_, ok := t.names[addr]
	return ok
}

// Len returns the number of stored addresses.
func (t *Table) Len() int {
	return len(t.order)
}

// Records returns the entries in insertion order.
func (t *Table) Records() []CallRecord {
	records := make([]CallRecord, 0, len(t.order))
	for _, addr := range t.order {
		records = append(records, CallRecord{Address: addr, Name: t.names[addr]})
	}
	return records
}

// Sorted returns the entries ordered by ascending address.
func (t *Table) Sorted() []CallRecord {
	records := t.Records()
	sort.Slice(records, func(i, j int) bool {
		return records[i].Address < records[j].Address
	})
	return records
}

// Map returns a copy of the table as a plain map.
func (t *Table) Map() map[Address]string {
	m := make(map[Address]string, len(t.names))
	for k, v := range t.names {
		m[k] = v
	}
	return m
}

// Merge copies every record into t, last write wins. It returns how many of
// the records hit an address t already held.
func (t *Table) Merge(records []CallRecord) int {
	overlap := 0
	seen := make(map[Address]bool, len(records))
	for _, r := range records {
		if t.Has(r.Address) && !seen[r.Address] {
			overlap++
		}
		seen[r.Address] = true
	}
	for _, r := range records {
		t.Set(r.Address, r.Name)
	}
	return overlap
}
