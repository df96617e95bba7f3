package hvcall

import "slices"

// DuplicateTable records, per raw address, every distinct "Name_SourceFile"
// seen across documents. Addresses are never masked here.
type DuplicateTable struct {
	entries map[Address][]string
}

// NewDuplicateTable creates an empty table.
func NewDuplicateTable() *DuplicateTable {
	return &DuplicateTable{entries: make(map[Address][]string)}
}

// ProvenanceValue formats the value stored for a name found in source.
func ProvenanceValue(name, source string) string {
	return name + "_" + source
}

// Merge adds records from one source document. A value already present for
// an address is not appended again; comparison is exact and case sensitive.
func (d *DuplicateTable) Merge(source string, records []CallRecord) {
	for _, r := range records {
		value := ProvenanceValue(r.Name, source)
		list, ok := d.entries[r.Address]
		if !ok {
			list = []string{}
		}
		if !slices.Contains(list, value) {
			list = append(list, value)
		}
		d.entries[r.Address] = list
	}
}

// Get returns the values recorded for addr in insertion order.
func (d *DuplicateTable) Get(addr Address) []string {
	return append([]string(nil), d.entries[addr]...)
}

// Len returns the number of addresses.
func (d *DuplicateTable) Len() int {
	return len(d.entries)
}

// Addresses returns every address in ascending order.
func (d *DuplicateTable) Addresses() []Address {
	addrs := make([]Address, 0, len(d.entries))
	for a := range d.entries {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	return addrs
}

// Conflicts returns the addresses that carry more than one value.
func (d *DuplicateTable) Conflicts() []Address {
	var out []Address
	for _, a := range d.Addresses() {
		if len(d.entries[a]) > 1 {
			out = append(out, a)
		}
	}
	return out
}
