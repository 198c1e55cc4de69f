package datastore

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"clinical-annotation-eval/harness/internal/config"
	"clinical-annotation-eval/harness/internal/coreengine/metricscalculator"
	"clinical-annotation-eval/harness/internal/progress"
)

// Errors returned while loading a dataset.
var (
	ErrMalformedReferenceLine = errors.New("malformed reference line")
	ErrInvalidEncoding        = errors.New("invalid file encoding")
	ErrUnsafeArchivePath      = errors.New("archive entry escapes destination")
)

// LoadDataset extracts the archive (once) and reads the reference terms and texts.
// Progress bars go to progressOut when it is not nil.
func LoadDataset(cfg config.DatasetConfig, progressOut io.Writer) (*Dataset, error) {
	if _, err := ExtractArchive(cfg.ArchivePath, cfg.ExtractDir); err != nil {
		return nil, err
	}

	slog.Info("gathering the metadata", "dir", filepath.Join(cfg.ExtractDir, cfg.MetadataDir))
	refs, err := LoadReferenceTerms(filepath.Join(cfg.ExtractDir, cfg.MetadataDir), progressOut)
	if err != nil {
		return nil, err
	}

	slog.Info("gathering the texts", "dir", filepath.Join(cfg.ExtractDir, cfg.TextDir))
	texts, err := LoadTexts(filepath.Join(cfg.ExtractDir, cfg.TextDir), progressOut)
	if err != nil {
		return nil, err
	}

	slog.Info("dataset loaded", "references", len(refs), "texts", len(texts))
	return &Dataset{References: refs, Texts: texts}, nil
}

// ExtractArchive unpacks archivePath into destDir unless destDir already exists.
// It reports whether extraction happened. Extraction goes through a sibling
// staging directory so an interrupted run does not leave a partial destDir.
func ExtractArchive(archivePath, destDir string) (bool, error) {
	if _, err := os.Stat(destDir); err == nil {
		slog.Info("dataset already extracted, skipping", "dir", destDir)
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", destDir, err)
	}

	slog.Info("decompressing dataset", "archive", archivePath, "dest", destDir)

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return false, fmt.Errorf("failed to open dataset archive %s: %w", archivePath, err)
	}
	defer r.Close()

	staging := destDir + ".partial"
	if err := os.RemoveAll(staging); err != nil {
		return false, fmt.Errorf("failed to clear staging dir %s: %w", staging, err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return false, fmt.Errorf("failed to create staging dir %s: %w", staging, err)
	}

	for _, f := range r.File {
		if err := extractFile(f, staging); err != nil {
			os.RemoveAll(staging)
			return false, err
		}
	}

	if err := os.Rename(staging, destDir); err != nil {
		os.RemoveAll(staging)
		return false, fmt.Errorf("failed to move extracted dataset into %s: %w", destDir, err)
	}
	return true, nil
}

func extractFile(f *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(f.Name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrUnsafeArchivePath, f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return dst.Close()
}

// DocumentID derives a document id from a file name: everything before the
// first dot, trimmed.
func DocumentID(fileName string) string {
	base := filepath.Base(fileName)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSpace(base)
}

// ParseReferenceLine extracts the reference term from a "<ignored>-<term>"
// record: the second hyphen-delimited field, normalized.
func ParseReferenceLine(line string) (string, error) {
	fields := strings.Split(line, "-")
	if len(fields) < 2 {
		return "", fmt.Errorf("%w: %q", ErrMalformedReferenceLine, line)
	}
	return metricscalculator.NormalizeTerm(fields[1]), nil
}

// LoadReferenceTerms reads every metadata file in dir. Files must be UTF-8;
// blank lines are skipped and any other line without a hyphen is an error.
func LoadReferenceTerms(dir string, progressOut io.Writer) (map[string][]string, error) {
	names, err := listFiles(dir)
	if err != nil {
		return nil, err
	}

	bar := progress.New(progressOut, len(names), "metadata")
	defer bar.Finish()

	refs := make(map[string][]string, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata file %s: %w", name, err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: metadata file %s is not UTF-8", ErrInvalidEncoding, name)
		}

		terms := []string{}
		for i, line := range splitLines(string(data)) {
			if strings.TrimSpace(line) == "" {
				continue
			}
			term, err := ParseReferenceLine(line)
			if err != nil {
				return nil, fmt.Errorf("metadata file %s line %d: %w", name, i+1, err)
			}
			terms = append(terms, term)
		}
		refs[DocumentID(name)] = terms
		bar.Add(1)
	}
	return refs, nil
}

// LoadTexts reads every text file in dir, decoding it from ISO-8859-1.
func LoadTexts(dir string, progressOut io.Writer) (map[string]string, error) {
	names, err := listFiles(dir)
	if err != nil {
		return nil, err
	}

	bar := progress.New(progressOut, len(names), "texts")
	defer bar.Finish()

	decoder := charmap.ISO8859_1.NewDecoder()
	texts := make(map[string]string, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read text file %s: %w", name, err)
		}
		decoded, err := decoder.Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: text file %s: %v", ErrInvalidEncoding, name, err)
		}
		texts[DocumentID(name)] = string(decoded)
		bar.Add(1)
	}
	return texts, nil
}

// listFiles returns the regular, non-hidden file names in dir.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// splitLines splits on \n, \r\n and \r without yielding a trailing empty line.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
