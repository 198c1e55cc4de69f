package vendoradapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-annotation-eval/harness/internal/config"
)

func TestMockAnnotate(t *testing.T) {
	m := &MockAnnotationAdapter{Vocabulary: []string{"lvef", "edema", " "}}

	anns, raw, err := m.Annotate(context.Background(), "Edema noted. LVEF 35%, lvef stable.")
	require.NoError(t, err)

	assert.ElementsMatch(t, []Annotation{
		{ConceptMention: "LVEF", StartOffset: 13},
		{ConceptMention: "lvef", StartOffset: 23},
		{ConceptMention: "Edema", StartOffset: 0},
	}, anns)

	decoded, err := DecodeAnnotationResponse(raw)
	require.NoError(t, err)
	assert.ElementsMatch(t, anns, decoded)
}

func TestMockAnnotate_NoMatches(t *testing.T) {
	m := &MockAnnotationAdapter{Vocabulary: []string{"lvef"}}
	anns, raw, err := m.Annotate(context.Background(), "unremarkable")
	require.NoError(t, err)
	assert.Empty(t, anns)
	assert.NotEmpty(t, raw)
}

func TestMockAnnotate_Fail(t *testing.T) {
	m := &MockAnnotationAdapter{Fail: true}
	_, raw, err := m.Annotate(context.Background(), "anything")
	assert.Error(t, err)
	assert.NotEmpty(t, raw)
}

func TestGetAnnotationAdapter(t *testing.T) {
	cfg := config.Defaults().Annotator

	adapter, err := GetAnnotationAdapter(cfg)
	require.NoError(t, err)
	httpAdapter, ok := adapter.(*HTTPAnnotationAdapter)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8000/process_text", httpAdapter.URL)

	cfg.Adapter = config.AdapterMock
	adapter, err = GetAnnotationAdapter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MockAnnotationAdapter{}, adapter)

	cfg.Adapter = config.AdapterMockError
	adapter, err = GetAnnotationAdapter(cfg)
	require.NoError(t, err)
	assert.True(t, adapter.(*MockAnnotationAdapter).Fail)

	cfg.Adapter = "soap"
	_, err = GetAnnotationAdapter(cfg)
	assert.Error(t, err)
}
