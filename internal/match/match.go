// Package match resolves extracted medicine mentions against a catalog
// snapshot. Matching is pure: it never reads stock or price, and the same
// inputs always produce the same result.
package match

import (
	"strings"

	"medscan/internal/domain"
)

// Resolve returns the first catalog entry, in catalog order, that the mention
// names under one of four equivalence rules, or nil when nothing matches.
// Rules are tried per entry in this order:
//
//  1. extracted generic name == catalog generic name
//  2. extracted generic name is one of the catalog brand names
//     (the model often reports a brand as the generic)
//  3. extracted brand name is one of the catalog brand names
//  4. extracted brand name == catalog generic name
//     (the model swapped brand and generic)
//
// Comparison is exact after trimming and lowercasing. Unmatched is a normal
// outcome, not an error; the caller routes it to manual review.
func Resolve(mention domain.ExtractedMedicine, catalog []domain.Medicine) *domain.Medicine {
	generic := Normalize(mention.GenericName)
	brand := Normalize(mention.BrandName)
	if generic == "" && brand == "" {
		return nil
	}

	for i := range catalog {
		entry := &catalog[i]
		if !entry.Active {
			continue
		}
		entryGeneric := Normalize(entry.GenericName)

		if generic != "" && generic == entryGeneric {
			return entry
		}
		if generic != "" && containsNormalized(entry.BrandNames, generic) {
			return entry
		}
		if brand != "" && containsNormalized(entry.BrandNames, brand) {
			return entry
		}
		if brand != "" && brand == entryGeneric {
			return entry
		}
	}
	return nil
}

// Normalize is the canonical comparison form: trimmed and lowercased.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsNormalized(names []string, target string) bool {
	for _, name := range names {
		if Normalize(name) == target {
			return true
		}
	}
	return false
}
