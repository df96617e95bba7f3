// Package hvcall holds the hypercall data model and the algorithms that turn
// many per-binary extraction results into one canonical table: key
// normalization, last-write-wins merging, parameter-variant collapsing, name
// normalization and duplicate tracking.
package hvcall

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/agentstation/hvcalls/pkg/errors"
)

// Address is a hypercall code as found by the extractor. The low 12 bits are
// the canonical call code; higher bits may encode a parameter-count variant.
type Address uint64

const (
	// ParameterMask selects the canonical call code.
	ParameterMask Address = 0xFFF

	// ParameterThreshold is the bound above which an address may be a variant.
	// The comparison is strict: 0x1000 itself is never a variant.
	ParameterThreshold Address = 0x1000
)

// Base returns the canonical (masked) address.
func (a Address) Base() Address {
	return a & ParameterMask
}

// IsVariantCandidate reports whether a could be a parameter-count variant.
func (a Address) IsVariantCandidate() bool {
	return a > ParameterThreshold
}

// String renders the address as an output key.
func (a Address) String() string {
	return FormatKey(a)
}

// FormatKey renders an address as an uppercase hex key with a 0x prefix.
func FormatKey(a Address) string {
	return fmt.Sprintf("0x%X", uint64(a))
}

// ParseKey converts a key string into an Address. It tries, in order, plain
// decimal, 0x/0X-prefixed hex and bare hex; the first success wins, so a key
// valid in both bases ("10") is read as decimal.
func ParseKey(key string) (Address, error) {
	if key == "" {
		return 0, errors.NewValidationError("key", key, "empty key")
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return 0, errors.NewValidationError("key", key, "key contains whitespace")
	}

	if v, err := strconv.ParseUint(key, 10, 64); err == nil {
		return Address(v), nil
	}

	if len(key) > 2 && key[0] == '0' && (key[1] == 'x' || key[1] == 'X') {
		v, err := strconv.ParseUint(key[2:], 16, 64)
		if err != nil {
			return 0, errors.NewValidationError("key", key, "invalid hex after 0x prefix")
		}
		return Address(v), nil
	}

	v, err := strconv.ParseUint(key, 16, 64)
	if err != nil {
		return 0, errors.NewValidationError("key", key, "not a decimal or hex address")
	}
	return Address(v), nil
}
