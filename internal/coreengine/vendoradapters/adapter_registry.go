package vendoradapters

import (
	"fmt"
	"log/slog"

	"clinical-annotation-eval/harness/internal/config"
)

// GetAnnotationAdapter selects and returns an AnnotationAdapter based on the annotator configuration.
func GetAnnotationAdapter(cfg config.AnnotatorConfig) (AnnotationAdapter, error) {
	slog.Debug("selecting annotation adapter", "adapter", cfg.Adapter)

	switch cfg.Adapter {
	case config.AdapterHTTP:
		slog.Info("using HTTP annotation adapter", "url", cfg.URL(), "varname", cfg.VarName)
		return NewHTTPAnnotationAdapter(cfg), nil
	case config.AdapterMock:
		slog.Info("using mock annotation adapter", "vocabulary", len(cfg.MockVocabulary))
		return &MockAnnotationAdapter{Vocabulary: cfg.MockVocabulary}, nil
	case config.AdapterMockError:
		slog.Info("using mock annotation adapter configured for errors")
		return &MockAnnotationAdapter{Fail: true}, nil
	default:
		return nil, fmt.Errorf("no annotation adapter available for %q", cfg.Adapter)
	}
}
