package datastore

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-annotation-eval/harness/internal/config"
)

func writeZip(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func datasetConfig(root string) config.DatasetConfig {
	return config.DatasetConfig{
		ArchivePath: filepath.Join(root, "dataset.zip"),
		ExtractDir:  filepath.Join(root, "tmp"),
		MetadataDir: "metadata",
		TextDir:     "txt",
	}
}

func TestLoadDataset(t *testing.T) {
	root := t.TempDir()
	cfg := datasetConfig(root)
	writeZip(t, cfg.ArchivePath, map[string][]byte{
		"metadata/doc1.ann": []byte("T1-Edema \nT2- LVEF\n\n"),
		"metadata/doc2.ann": []byte("T1-fatigue\r\nT2-heart-failure\r\n"),
		"txt/doc1.txt":      []byte("Mild edema, LVEF 35%."),
		// "caf\xe9" is latin1 for "café".
		"txt/doc2.txt": []byte("caf\xe9 fatigue"),
	})

	ds, err := LoadDataset(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"doc1": {"edema", "lvef"},
		"doc2": {"fatigue", "heart"},
	}, ds.References)
	assert.Equal(t, "Mild edema, LVEF 35%.", ds.Texts["doc1"])
	assert.Equal(t, "café fatigue", ds.Texts["doc2"])
	assert.Equal(t, []string{"doc1", "doc2"}, ds.DocumentIDs())
	assert.Equal(t, []string{"doc1", "doc2"}, ds.TextIDs())
}

func TestDatasetCoverage(t *testing.T) {
	ds := &Dataset{
		References: map[string][]string{"doc1": {"lvef"}, "doc3": {"edema"}, "doc4": {}},
		Texts:      map[string]string{"doc1": "LVEF", "doc2": "Edema", "doc5": ""},
	}
	textOnly, referenceOnly := ds.Coverage()
	assert.Equal(t, []string{"doc2", "doc5"}, textOnly)
	assert.Equal(t, []string{"doc3", "doc4"}, referenceOnly)

	full := &Dataset{References: map[string][]string{"a": nil}, Texts: map[string]string{"a": "x"}}
	textOnly, referenceOnly = full.Coverage()
	assert.Empty(t, textOnly)
	assert.Empty(t, referenceOnly)
}

func TestLoadTexts_KeepsLineEndings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc1.txt"), []byte("Edema.\r\nLVEF 35%."), 0o644))

	texts, err := LoadTexts(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "Edema.\r\nLVEF 35%.", texts["doc1"])
}

func TestExtractArchive_OnlyOnce(t *testing.T) {
	root := t.TempDir()
	cfg := datasetConfig(root)
	writeZip(t, cfg.ArchivePath, map[string][]byte{"metadata/a.txt": []byte("x-lvef")})

	extracted, err := ExtractArchive(cfg.ArchivePath, cfg.ExtractDir)
	require.NoError(t, err)
	assert.True(t, extracted)
	assert.FileExists(t, filepath.Join(cfg.ExtractDir, "metadata", "a.txt"))
	assert.NoDirExists(t, cfg.ExtractDir+".partial")

	// The archive is gone; a second call must not need it.
	require.NoError(t, os.Remove(cfg.ArchivePath))
	extracted, err = ExtractArchive(cfg.ArchivePath, cfg.ExtractDir)
	require.NoError(t, err)
	assert.False(t, extracted)
}

func TestExtractArchive_MissingArchive(t *testing.T) {
	root := t.TempDir()
	_, err := ExtractArchive(filepath.Join(root, "nope.zip"), filepath.Join(root, "tmp"))
	assert.Error(t, err)
	assert.NoDirExists(t, filepath.Join(root, "tmp"))
}

func TestExtractArchive_RejectsEscapingEntries(t *testing.T) {
	root := t.TempDir()
	cfg := datasetConfig(root)
	writeZip(t, cfg.ArchivePath, map[string][]byte{"../evil.txt": []byte("x")})

	_, err := ExtractArchive(cfg.ArchivePath, cfg.ExtractDir)
	assert.ErrorIs(t, err, ErrUnsafeArchivePath)
	assert.NoFileExists(t, filepath.Join(root, "evil.txt"))
	assert.NoDirExists(t, cfg.ExtractDir)
}

func TestLoadReferenceTerms_InvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("T1-caf\xe9"), 0o644))

	_, err := LoadReferenceTerms(dir, nil)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestLoadReferenceTerms_MalformedLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("T1-lvef\nno hyphen here\n"), 0o644))

	_, err := LoadReferenceTerms(dir, nil)
	require.ErrorIs(t, err, ErrMalformedReferenceLine)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadReferenceTerms_SkipsHiddenAndDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte{0xff}, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0o644))

	refs, err := LoadReferenceTerms(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"empty": {}}, refs)
}

func TestLoadTexts_MissingDir(t *testing.T) {
	_, err := LoadTexts(filepath.Join(t.TempDir(), "txt"), nil)
	assert.Error(t, err)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "doc1", DocumentID("doc1.txt"))
	assert.Equal(t, "doc1", DocumentID("doc1.ann.txt"))
	assert.Equal(t, "doc 2", DocumentID(" doc 2 .txt"))
	assert.Equal(t, "noext", DocumentID("dir/noext"))
}

func TestParseReferenceLine(t *testing.T) {
	term, err := ParseReferenceLine("C0018802- Heart Failure ")
	require.NoError(t, err)
	assert.Equal(t, "heart failure", term)

	term, err = ParseReferenceLine("a-b-c")
	require.NoError(t, err)
	assert.Equal(t, "b", term)

	_, err = ParseReferenceLine("lvef")
	assert.ErrorIs(t, err, ErrMalformedReferenceLine)
}
