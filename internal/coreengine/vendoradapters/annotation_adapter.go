package vendoradapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AnnotationAdapter defines the interface for clinical text-annotation services.
type AnnotationAdapter interface {
	// Annotate sends text to the service and returns the concept mentions it found
	// together with the raw JSON response body, which is kept for the output archive.
	Annotate(ctx context.Context, text string) (annotations []Annotation, rawResponse json.RawMessage, err error)
}

// Annotation is a single concept mention returned by the service.
type Annotation struct {
	ConceptMention string `json:"concept_mention_string"`
	StartOffset    Offset `json:"start_offset"`
}

// Offset is a character offset. Reference files carry it either as a JSON
// number or as a numeric string, so both decode to the same integer.
type Offset int

// UnmarshalJSON accepts an integer, a numeric string, a float (truncated) or null (0).
func (o *Offset) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*o = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("invalid start_offset %s: %w", s, err)
		}
		s = strings.TrimSpace(unquoted)
	}
	if n, err := strconv.Atoi(s); err == nil {
		*o = Offset(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("start_offset %s is not an integer", string(data))
	}
	*o = Offset(int(f))
	return nil
}

// AnnotationResponse mirrors the service payload:
// {"nlp_output": {"annotations": [...]}}.
type AnnotationResponse struct {
	NLPOutput *struct {
		Annotations *[]Annotation `json:"annotations"`
	} `json:"nlp_output"`
}

// ErrMalformedResponse is returned for bodies without nlp_output.annotations.
var ErrMalformedResponse = errors.New("malformed annotation response")

// DecodeAnnotationResponse parses a response body and returns its annotations.
// A body without nlp_output.annotations is an error.
func DecodeAnnotationResponse(body []byte) ([]Annotation, error) {
	var resp AnnotationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.NLPOutput == nil {
		return nil, fmt.Errorf("%w: missing nlp_output", ErrMalformedResponse)
	}
	if resp.NLPOutput.Annotations == nil {
		return nil, fmt.Errorf("%w: missing nlp_output.annotations", ErrMalformedResponse)
	}
	return *resp.NLPOutput.Annotations, nil
}
