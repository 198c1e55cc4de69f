package evaluationengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"clinical-annotation-eval/harness/internal/artifacts"
	"clinical-annotation-eval/harness/internal/coreengine/metricscalculator"
	"clinical-annotation-eval/harness/internal/coreengine/vendoradapters"
	"clinical-annotation-eval/harness/internal/progress"
)

// Engine runs documents through an annotation adapter and scores the result.
// It is used from a single goroutine.
type Engine struct {
	Adapter vendoradapters.AnnotationAdapter
	// FailFast aborts the batch on the first failing document instead of
	// recording the failure and moving on.
	FailFast         bool
	FuzzyMaxDistance int
	// Progress receives progress bars; nil disables them.
	Progress io.Writer
}

// BatchResult is the outcome of annotating a set of documents.
type BatchResult struct {
	// Extracted holds the normalized concept mentions per successfully annotated document.
	Extracted map[string][]string
	// Responses holds the raw responses tagged with their document id, in processing order.
	Responses []json.RawMessage
	// Failures holds the error for each document whose annotation failed.
	Failures map[string]error
}

// FailedIDs returns the set of documents whose annotation failed.
func (b *BatchResult) FailedIDs() map[string]bool {
	ids := make(map[string]bool, len(b.Failures))
	for id := range b.Failures {
		ids[id] = true
	}
	return ids
}

// RunBatch annotates every text in sorted id order. A cancelled context stops
// the batch regardless of FailFast.
func (e *Engine) RunBatch(ctx context.Context, texts map[string]string) (*BatchResult, error) {
	ids := make([]string, 0, len(texts))
	for id := range texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &BatchResult{
		Extracted: make(map[string][]string, len(ids)),
		Responses: make([]json.RawMessage, 0, len(ids)),
		Failures:  make(map[string]error),
	}

	slog.Info("processing the texts with the API", "documents", len(ids))
	bar := progress.New(e.Progress, len(ids), "annotating")
	defer bar.Finish()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("batch interrupted before document %s: %w", id, err)
		}

		err := e.annotateDocument(ctx, id, texts[id], result)
		bar.Add(1)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("batch interrupted at document %s: %w", id, err)
		}
		if e.FailFast {
			return result, err
		}
		result.Failures[id] = err
		slog.Warn("annotation failed, continuing", "id", id, "error", err)
	}

	slog.Info("batch complete", "annotated", len(result.Extracted), "failed", len(result.Failures))
	return result, nil
}

func (e *Engine) annotateDocument(ctx context.Context, id, text string, result *BatchResult) error {
	annotations, raw, err := e.Adapter.Annotate(ctx, text)
	if err != nil {
		return fmt.Errorf("annotation API failed for document %s (response: %s): %w", id, truncate(raw, 200), err)
	}

	tagged, err := artifacts.TagResponse(raw, id)
	if err != nil {
		return fmt.Errorf("annotation API returned an unusable response for document %s: %w", id, err)
	}

	result.Extracted[id] = metricscalculator.NormalizeTerms(mentions(annotations))
	result.Responses = append(result.Responses, tagged)
	return nil
}

// Score compares the batch against the reference terms.
func (e *Engine) Score(references map[string][]string, batch *BatchResult) *metricscalculator.Accumulator {
	slog.Info("checking the overlap", "references", len(references))
	return metricscalculator.ScoreDataset(references, batch.Extracted, batch.FailedIDs(), e.FuzzyMaxDistance)
}

// SmokeResult is the outcome of the single-text annotation check.
type SmokeResult struct {
	Matches   int `json:"matches"`
	Extracted int `json:"extracted"`
	Reference int `json:"reference"`
}

// String formats the result the way the smoke check reports it.
func (s SmokeResult) String() string {
	return fmt.Sprintf("The API has %d matches out of %d", s.Matches, s.Extracted)
}

// RunSmokeCheck annotates one text and counts annotations matching the reference.
func (e *Engine) RunSmokeCheck(ctx context.Context, text string, reference []vendoradapters.Annotation) (SmokeResult, error) {
	annotations, _, err := e.Adapter.Annotate(ctx, text)
	if err != nil {
		return SmokeResult{}, fmt.Errorf("smoke check annotation failed: %w", err)
	}
	slog.Info("smoke check annotated", "annotations", len(annotations))

	return SmokeResult{
		Matches:   metricscalculator.CountAnnotationMatches(annotations, reference),
		Extracted: len(annotations),
		Reference: len(reference),
	}, nil
}

// ExtractedFromResponses rebuilds the extracted-term map from tagged responses
// as stored in an output archive.
func ExtractedFromResponses(responses []json.RawMessage) (map[string][]string, error) {
	extracted := make(map[string][]string, len(responses))
	for i, raw := range responses {
		id, err := artifacts.ResponseID(raw)
		if err != nil {
			return nil, fmt.Errorf("response %d: %w", i, err)
		}
		annotations, err := vendoradapters.DecodeAnnotationResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("response %d (%s): %w", i, id, err)
		}
		extracted[id] = metricscalculator.NormalizeTerms(mentions(annotations))
	}
	return extracted, nil
}

func mentions(annotations []vendoradapters.Annotation) []string {
	out := make([]string, len(annotations))
	for i, ann := range annotations {
		out[i] = ann.ConceptMention
	}
	return out
}

func truncate(raw json.RawMessage, n int) string {
	if len(raw) == 0 {
		return "<none>"
	}
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
