package hvcall

// Collapse folds parameter-count variants into their canonical addresses.
//
// Records are visited in the table's order. A record above
// ParameterThreshold whose masked base is itself present in the input is a
// variant and is dropped. Every other record is stored at its masked base,
// overwriting what is there, so among the kept records sharing a base the
// one visited last wins.
//
// The returned count is the number of dropped variants.
func Collapse(in *Table) (*Table, int) {
	out := NewTable()
	removed := 0

	for _, r := range in.Records() {
		base := r.Address.Base()
		if r.Address.IsVariantCandidate() && in.Has(base) {
			removed++
			continue
		}
		out.Set(base, r.Name)
	}

	return out, removed
}
