package vendoradapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockAnnotationAdapter annotates every occurrence of a vocabulary term,
// matched case-insensitively. With Fail set every call returns an error.
type MockAnnotationAdapter struct {
	Vocabulary []string
	Fail       bool
}

// Annotate simulates the annotation service offline.
func (m *MockAnnotationAdapter) Annotate(ctx context.Context, text string) ([]Annotation, json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if m.Fail {
		return nil, json.RawMessage(`{"error": "simulated annotation failure"}`), fmt.Errorf("simulated error from mock annotator")
	}

	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		// Lower-casing changed byte widths; offsets would no longer line up.
		lower = text
	}
	annotations := []Annotation{}
	for _, term := range m.Vocabulary {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			continue
		}
		from := 0
		for {
			idx := strings.Index(lower[from:], needle)
			if idx < 0 {
				break
			}
			start := from + idx
			annotations = append(annotations, Annotation{
				ConceptMention: text[start : start+len(needle)],
				StartOffset:    Offset(start),
			})
			from = start + len(needle)
		}
	}

	raw, err := json.Marshal(map[string]any{
		"nlp_output": map[string]any{"annotations": annotations},
		"simulated":  true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode mock response: %w", err)
	}
	return annotations, raw, nil
}
