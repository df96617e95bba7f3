package hvcall

import "strings"

// Replacement is a literal substring rewrite.
type Replacement struct {
	Old string
	New string
}

// NameReplacements maps the prefixes used by the Windows kernel, the secure
// kernel and the hypervisor interface drivers onto a single HvCall naming.
// Order matters: every rule sees the output of the rules before it.
var NameReplacements = []Replacement{
	{Old: "WinHvp", New: "HvCall"},
	{Old: "WinHv", New: "HvCall"},
	{Old: "Shvl", New: "HvCall"},
	{Old: "Skhal", New: "HvCall"},
	{Old: "Hvlp", New: "HvCall"},
	{Old: "Hvl", New: "HvCall"},
	{Old: "Sk", New: "HvCall"},
	{Old: "Ium", New: "HvCallIum"},
}

// NormalizeName applies every rule in NameReplacements to name, in order.
func NormalizeName(name string) string {
	return ApplyReplacements(name, NameReplacements)
}

// ApplyReplacements applies rules cumulatively and replaces all occurrences.
// Text produced by an earlier rule can be matched again by a later one.
func ApplyReplacements(name string, rules []Replacement) string {
	for _, r := range rules {
		name = strings.ReplaceAll(name, r.Old, r.New)
	}
	return name
}

// NormalizeNames rewrites every name in t in place.
func NormalizeNames(t *Table) {
	for _, addr := range t.order {
		t.names[addr] = NormalizeName(t.names[addr])
	}
}
