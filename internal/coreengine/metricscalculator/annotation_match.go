package metricscalculator

import "clinical-annotation-eval/harness/internal/coreengine/vendoradapters"

// AnnotationsMatch reports whether two annotations name the same concept at the
// same place. Mentions compare after NormalizeTerm; offsets compare as integers.
func AnnotationsMatch(a, b vendoradapters.Annotation) bool {
	return NormalizeTerm(a.ConceptMention) == NormalizeTerm(b.ConceptMention) &&
		int(a.StartOffset) == int(b.StartOffset)
}

// CountAnnotationMatches counts extracted annotations that match at least one
// reference annotation. Each extracted annotation counts once.
func CountAnnotationMatches(extracted, reference []vendoradapters.Annotation) int {
	matches := 0
	for _, ann := range extracted {
		for _, ref := range reference {
			if AnnotationsMatch(ann, ref) {
				matches++
				break
			}
		}
	}
	return matches
}
