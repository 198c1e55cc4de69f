package metricscalculator

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
)

// ErrorKind classifies why a reference document could not be scored.
type ErrorKind string

const (
	// ErrorKindMissingExtraction: no extracted terms exist for the document.
	ErrorKindMissingExtraction ErrorKind = "missing_extraction"
	// ErrorKindAnnotationFailed: the annotation call for the document failed.
	ErrorKindAnnotationFailed ErrorKind = "annotation_failed"
)

// ScoreRecord holds the per-document result. Pointer fields are nil when the
// document is missing and the value is undefined.
type ScoreRecord struct {
	DocumentID           string    `json:"id"`
	NumTermsInSource     int       `json:"num_terms_in_source"`
	NumTermsInExtraction int       `json:"num_terms_in_extraction"`
	NumIntersection      *int      `json:"num_intersection"`
	NumUnion             *int      `json:"num_union"`
	IoU                  *float64  `json:"iou"`
	Precision            *float64  `json:"precision,omitempty"`
	Recall               *float64  `json:"recall,omitempty"`
	FuzzyIntersection    *int      `json:"fuzzy_intersection,omitempty"`
	ErrorKind            ErrorKind `json:"error_kind,omitempty"`
}

// Missing reports whether the document could not be scored.
func (r ScoreRecord) Missing() bool {
	return r.ErrorKind != ""
}

// ScoreDocument scores one document. Term counts are list lengths; overlap
// figures use distinct terms.
func ScoreDocument(id string, reference, extracted []string, fuzzyMaxDistance int) ScoreRecord {
	overlap := CalculateOverlap(reference, extracted)
	fuzzy := CalculateFuzzyIntersection(reference, extracted, fuzzyMaxDistance)

	return ScoreRecord{
		DocumentID:           id,
		NumTermsInSource:     len(reference),
		NumTermsInExtraction: len(extracted),
		NumIntersection:      &overlap.Intersection,
		NumUnion:             &overlap.Union,
		IoU:                  &overlap.IoU,
		Precision:            &overlap.Precision,
		Recall:               &overlap.Recall,
		FuzzyIntersection:    &fuzzy,
	}
}

// Accumulator keeps running sums over scored and missing documents.
type Accumulator struct {
	Processed int
	Missing   int

	SumTermsInExtraction int
	SumTermsInSource     int // processed and missing documents
	SumIntersection      int
	SumUnion             int
	SumFuzzyIntersection int
	SumIoU               float64
	SumPrecision         float64
	SumRecall            float64

	Errors  map[ErrorKind]int
	Records []ScoreRecord
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{Errors: make(map[ErrorKind]int)}
}

// AddScored folds a scored document into the sums.
func (a *Accumulator) AddScored(rec ScoreRecord) {
	a.Processed++
	a.SumTermsInExtraction += rec.NumTermsInExtraction
	a.SumTermsInSource += rec.NumTermsInSource
	a.SumIntersection += derefInt(rec.NumIntersection)
	a.SumUnion += derefInt(rec.NumUnion)
	a.SumFuzzyIntersection += derefInt(rec.FuzzyIntersection)
	a.SumIoU += derefFloat(rec.IoU)
	a.SumPrecision += derefFloat(rec.Precision)
	a.SumRecall += derefFloat(rec.Recall)
	a.Records = append(a.Records, rec)
}

// AddMissing records a document that could not be scored. Its reference terms
// still count toward the average reference size.
func (a *Accumulator) AddMissing(id string, numTermsInSource int, kind ErrorKind) ScoreRecord {
	rec := ScoreRecord{
		DocumentID:       id,
		NumTermsInSource: numTermsInSource,
		ErrorKind:        kind,
	}
	a.Missing++
	a.SumTermsInSource += numTermsInSource
	a.Errors[kind]++
	a.Records = append(a.Records, rec)
	return rec
}

// ScoreDataset scores every reference document against the extracted terms.
// Documents absent from extracted are missing; those listed in failed are
// tallied as annotation failures, the rest as missing extractions.
func ScoreDataset(references, extracted map[string][]string, failed map[string]bool, fuzzyMaxDistance int) *Accumulator {
	acc := NewAccumulator()

	ids := make([]string, 0, len(references))
	for id := range references {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		refTerms := references[id]
		extTerms, ok := extracted[id]
		if !ok {
			kind := ErrorKindMissingExtraction
			if failed[id] {
				kind = ErrorKindAnnotationFailed
			}
			acc.AddMissing(id, len(refTerms), kind)
			slog.Debug("document missing", "id", id, "kind", kind)
			continue
		}

		rec := ScoreDocument(id, refTerms, extTerms, fuzzyMaxDistance)
		acc.AddScored(rec)
		slog.Debug("document scored", "id", id,
			"reference", refTerms, "extracted", extTerms,
			"intersection", *rec.NumIntersection, "union", *rec.NumUnion, "iou", *rec.IoU)
	}
	return acc
}

// Report is the finished evaluation summary, rounded to 3 decimals.
type Report struct {
	Processed int `json:"processed"`
	Missing   int `json:"missing"`

	HitRate              float64 `json:"hit_rate"`
	AvgTermsInExtraction float64 `json:"avg_terms_in_extraction"`
	AvgTermsInSource     float64 `json:"avg_terms_in_source"`
	AvgIntersection      float64 `json:"avg_intersection"`
	AvgUnion             float64 `json:"avg_union"`
	AvgIoU               float64 `json:"avg_iou"`
	AvgPrecision         float64 `json:"avg_precision"`
	AvgRecall            float64 `json:"avg_recall"`
	AvgFuzzyIntersection float64 `json:"avg_fuzzy_intersection"`

	Errors map[ErrorKind]int `json:"errors"`
}

// Report computes the averages. Extraction, overlap and IoU averages divide by
// processed documents; the hit rate and reference-size average divide by
// processed plus missing. A zero denominator gives 0.
func (a *Accumulator) Report() Report {
	total := a.Processed + a.Missing
	errs := make(map[ErrorKind]int, len(a.Errors))
	for k, v := range a.Errors {
		errs[k] = v
	}

	return Report{
		Processed:            a.Processed,
		Missing:              a.Missing,
		HitRate:              Round3(safeRatio(a.Processed, total)),
		AvgTermsInExtraction: Round3(safeRatio(a.SumTermsInExtraction, a.Processed)),
		AvgTermsInSource:     Round3(safeRatio(a.SumTermsInSource, total)),
		AvgIntersection:      Round3(safeRatio(a.SumIntersection, a.Processed)),
		AvgUnion:             Round3(safeRatio(a.SumUnion, a.Processed)),
		AvgIoU:               Round3(safeDiv(a.SumIoU, a.Processed)),
		AvgPrecision:         Round3(safeDiv(a.SumPrecision, a.Processed)),
		AvgRecall:            Round3(safeDiv(a.SumRecall, a.Processed)),
		AvgFuzzyIntersection: Round3(safeRatio(a.SumFuzzyIntersection, a.Processed)),
		Errors:               errs,
	}
}

// Print writes the human-readable summary.
func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Errors in processing: %s\n", r.errorSummary())
	fmt.Fprintf(w, "Documents processed: %d, missing: %d\n", r.Processed, r.Missing)
	fmt.Fprintf(w, "Relative number of hits: %.3f\n", r.HitRate)
	fmt.Fprintf(w, "Average number of extracted terms: %.3f\n", r.AvgTermsInExtraction)
	fmt.Fprintf(w, "Average number of terms in references: %.3f\n", r.AvgTermsInSource)
	fmt.Fprintf(w, "Average intersection count: %.3f\n", r.AvgIntersection)
	fmt.Fprintf(w, "Average union count: %.3f\n", r.AvgUnion)
	fmt.Fprintf(w, "Average IoU: %.3f\n", r.AvgIoU)
	fmt.Fprintf(w, "Average precision: %.3f\n", r.AvgPrecision)
	fmt.Fprintf(w, "Average recall: %.3f\n", r.AvgRecall)
	fmt.Fprintf(w, "Average fuzzy intersection count: %.3f\n", r.AvgFuzzyIntersection)
}

func (r Report) errorSummary() string {
	if len(r.Errors) == 0 {
		return "none"
	}
	kinds := make([]string, 0, len(r.Errors))
	for k := range r.Errors {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, r.Errors[ErrorKind(k)])
	}
	return strings.Join(parts, ", ")
}

// Round3 rounds to 3 decimal places.
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func safeDiv(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
