package metricscalculator

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// NormalizeTerm is the canonical form used for every term comparison:
// lower-cased with surrounding whitespace removed.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// NormalizeTerms normalizes a slice of terms into a new slice.
func NormalizeTerms(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = NormalizeTerm(t)
	}
	return out
}

// TermSet returns the distinct terms of a list.
func TermSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// Overlap holds the set statistics between a reference and an extracted term list.
type Overlap struct {
	Intersection int
	Union        int
	IoU          float64
	Precision    float64
	Recall       float64
}

// CalculateOverlap computes intersection, union and IoU over the distinct terms
// of both lists. IoU = Intersection / Union; when both sets are empty the
// union is zero and IoU is reported as 0.
// Precision is Intersection over distinct extracted terms and Recall is
// Intersection over distinct reference terms, each 0 on an empty denominator.
func CalculateOverlap(reference, extracted []string) Overlap {
	refSet := TermSet(reference)
	extSet := TermSet(extracted)

	intersection := 0
	for t := range refSet {
		if _, ok := extSet[t]; ok {
			intersection++
		}
	}
	union := len(refSet) + len(extSet) - intersection

	return Overlap{
		Intersection: intersection,
		Union:        union,
		IoU:          safeRatio(intersection, union),
		Precision:    safeRatio(intersection, len(extSet)),
		Recall:       safeRatio(intersection, len(refSet)),
	}
}

// CalculateFuzzyIntersection counts distinct reference terms that have an
// extracted term within maxDistance Levenshtein edits (unit insert, delete and
// substitute costs). With maxDistance 0 it equals the exact intersection.
func CalculateFuzzyIntersection(reference, extracted []string, maxDistance int) int {
	refSet := TermSet(reference)
	extSet := TermSet(extracted)

	options := levenshtein.Options{
		InsCost: 1,
		DelCost: 1,
		SubCost: 1,
		Matches: levenshtein.IdenticalRunes,
	}

	count := 0
	for ref := range refSet {
		if _, ok := extSet[ref]; ok {
			count++
			continue
		}
		if maxDistance == 0 {
			continue
		}
		refRunes := []rune(ref)
		for ext := range extSet {
			extRunes := []rune(ext)
			if abs(len(refRunes)-len(extRunes)) > maxDistance {
				continue
			}
			if levenshtein.DistanceForStrings(refRunes, extRunes, options) <= maxDistance {
				count++
				break
			}
		}
	}
	return count
}

func safeRatio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
