package screening

import "github.com/ftmeeet/CAS/internal/tle"

// BuildPairs forms the candidate set: every target crossed with every
// catalog object. A catalog entry carrying the same NORAD ID as the
// target is skipped so an uploaded satellite is never screened against
// its own catalog copy.
func BuildPairs(targets, catalog []tle.TLEEntry) []tle.Pair {
	pairs := make([]tle.Pair, 0, len(targets)*len(catalog))
	for _, target := range targets {
		for _, other := range catalog {
			if other.NORADID == target.NORADID {
				continue
			}
			pairs = append(pairs, tle.Pair{A: target, B: other})
		}
	}
	return pairs
}

// BuildCatalogPairs forms every unique catalog pair, each pair once
// regardless of order. Used when no target set has been uploaded.
func BuildCatalogPairs(catalog []tle.TLEEntry) []tle.Pair {
	if len(catalog) < 2 {
		return nil
	}
	pairs := make([]tle.Pair, 0, len(catalog)*(len(catalog)-1)/2)
	for i := range catalog {
		for j := i + 1; j < len(catalog); j++ {
			pairs = append(pairs, tle.Pair{A: catalog[i], B: catalog[j]})
		}
	}
	return pairs
}
