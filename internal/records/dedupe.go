package records

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultSimilarity is the Jaro-Winkler score above which two contacts with
// different keys are still treated as the same person.
const DefaultSimilarity = 0.94

// Dedupe keeps the first occurrence of every contact. A later record is a
// duplicate when its key matches, or when its name and firm are similar
// enough to an earlier one. Empty fields on the survivor are filled from
// the duplicates.
func Dedupe(list []Attorney, threshold float64) []Attorney {
	out := make([]Attorney, 0, len(list))
	byKey := make(map[string]int, len(list))

	for _, a := range list {
		if i, ok := byKey[a.Key()]; ok {
			merge(&out[i], a)
			continue
		}
		if i := similar(out, a, threshold); i >= 0 {
			merge(&out[i], a)
			byKey[a.Key()] = i
			continue
		}
		byKey[a.Key()] = len(out)
		out = append(out, a)
	}
	return out
}

func identity(a Attorney) string {
	return strings.ToLower(clean(a.Name + " " + a.Firm))
}

func similar(list []Attorney, a Attorney, threshold float64) int {
	if threshold <= 0 || threshold > 1 {
		return -1
	}
	id := identity(a)
	for i, b := range list {
		// different emails mean different people regardless of name
		if a.Email != "" && b.Email != "" && !strings.EqualFold(a.Email, b.Email) {
			continue
		}
		if matchr.JaroWinkler(id, identity(b), false) >= threshold {
			return i
		}
	}
	return -1
}

func merge(dst *Attorney, src Attorney) {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.Firm, src.Firm)
	fill(&dst.City, src.City)
	fill(&dst.State, src.State)
	fill(&dst.Phone, src.Phone)
	fill(&dst.Email, src.Email)
	fill(&dst.Website, src.Website)
	fill(&dst.Source, src.Source)
	if len(dst.PracticeAreas) == 0 {
		dst.PracticeAreas = src.PracticeAreas
	}
	dst.Verified = dst.Verified || src.Verified
}
