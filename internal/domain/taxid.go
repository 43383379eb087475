// Package domain holds the value types shared by the conversation, ledger and
// import paths: tax ids, capture dates, call records and company snapshots.
package domain

import "strings"

// NormalizeTaxID strips every non-digit character.
func NormalizeTaxID(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidTaxID reports whether an already normalized id has 10 (legal entity)
// or 12 (sole proprietor) digits.
func ValidTaxID(taxID string) bool {
	if len(taxID) != 10 && len(taxID) != 12 {
		return false
	}
	return NormalizeTaxID(taxID) == taxID
}

// ParseTaxID normalizes input and validates the result.
func ParseTaxID(input string) (string, bool) {
	id := NormalizeTaxID(input)
	return id, ValidTaxID(id)
}
