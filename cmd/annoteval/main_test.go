package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	extract := filepath.Join(root, "tmp")
	writeFile(t, filepath.Join(extract, "metadata", "doc1.txt"), "1-lvef\n")
	writeFile(t, filepath.Join(extract, "txt", "doc1.txt"), "Reduced LVEF.")
	writeFile(t, filepath.Join(root, "ref.json"), `{"nlp_output":{"annotations":[{"concept_mention_string":"LVEF","start_offset":8}]}}`)

	cfgPath := filepath.Join(root, "config.yaml")
	writeFile(t, cfgPath, fmt.Sprintf(`
annotator:
  adapter: mock
  mock_vocabulary: [lvef]
dataset:
  archive_path: %[1]s/dataset.zip
  extract_dir: %[1]s/tmp
output:
  dir: %[1]s/artifacts
smoke:
  sample_text: "Reduced LVEF."
  reference_path: %[1]s/ref.json
show_progress: false
`, root))
	return cfgPath, root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunThenScore(t *testing.T) {
	cfgPath, root := writeTestConfig(t)

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Average IoU: 1.000")
	assert.FileExists(t, filepath.Join(root, "artifacts", "test.json.zip"))

	out, err = execute(t, "score", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Relative number of hits: 1.000")
}

func TestRootRunsEvaluation(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, err := execute(t, "--config", cfgPath, "--fail-fast")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents processed: 1, missing: 0")
}

func TestSmoke(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, err := execute(t, "smoke", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "The API has 1 matches out of 1")
}

func TestConfigFlagBeatsEnvConfig(t *testing.T) {
	cfgPath, root := writeTestConfig(t)
	other := filepath.Join(root, "other.yaml")
	writeFile(t, other, "annotator:\n  adapter: telepathy\n")
	t.Setenv("ANNOTEVAL_CONFIG", other)

	out, err := execute(t, "smoke", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "The API has 1 matches out of 1")
}

func TestFlagsOverrideInvalidFileValues(t *testing.T) {
	cfgPath, root := writeTestConfig(t)
	broken := filepath.Join(root, "broken.yaml")
	body, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	writeFile(t, broken, strings.Replace(string(body), "  adapter: mock\n", "  adapter: http\n  host: \"\"\n", 1)+"log_level: verbose\n")

	_, err = execute(t, "smoke", "--config", broken)
	require.Error(t, err)

	out, err := execute(t, "smoke", "--config", broken, "--adapter", "mock", "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "The API has 1 matches out of 1")
}

func TestJSONReportFlag(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, err := execute(t, "run", "--config", cfgPath, "--json")
	require.NoError(t, err)

	var decoded struct {
		Report struct {
			Processed int     `json:"processed"`
			AvgIoU    float64 `json:"avg_iou"`
		} `json:"report"`
		Documents []map[string]any `json:"documents"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 1, decoded.Report.Processed)
	assert.Equal(t, 1.0, decoded.Report.AvgIoU)
	require.Len(t, decoded.Documents, 1)
	assert.Equal(t, "doc1", decoded.Documents[0]["id"])
}

func TestUnknownAdapterFlag(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	_, err := execute(t, "run", "--config", cfgPath, "--adapter", "telepathy")
	assert.Error(t, err)
}

func TestScoreMissingArchive(t *testing.T) {
	cfgPath, root := writeTestConfig(t)
	_, err := execute(t, "score", "--config", cfgPath, "--archive", filepath.Join(root, "none.zip"))
	assert.Error(t, err)
}
