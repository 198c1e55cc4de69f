// Package artifacts writes and reads the compressed archive of raw annotation responses.
package artifacts

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrEntryNotFound is returned when the archive has no entry with the requested name.
var ErrEntryNotFound = errors.New("archive entry not found")

// TagResponse returns the raw response object with an "id" member set to docID.
func TagResponse(raw json.RawMessage, docID string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("response for %s is not a JSON object: %w", docID, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("response for %s is null", docID)
	}
	id, err := json.Marshal(docID)
	if err != nil {
		return nil, err
	}
	obj["id"] = id
	return json.Marshal(obj)
}

// ResponseID reads the "id" member of a tagged response.
func ResponseID(raw json.RawMessage) (string, error) {
	var tagged struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return "", fmt.Errorf("failed to decode tagged response: %w", err)
	}
	if tagged.ID == nil {
		return "", errors.New("tagged response has no id")
	}
	return *tagged.ID, nil
}

// WriteOutputArchive writes responses as a JSON array to dir/jsonName,
// compresses it into dir/archiveName as a single deflated entry and removes the
// intermediate JSON. It returns the archive path.
func WriteOutputArchive(dir, jsonName, archiveName string, responses []json.RawMessage) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	if responses == nil {
		responses = []json.RawMessage{}
	}

	jsonPath := filepath.Join(dir, jsonName)
	data, err := json.Marshal(responses)
	if err != nil {
		return "", fmt.Errorf("failed to encode responses: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", jsonPath, err)
	}
	defer os.Remove(jsonPath)

	archivePath := filepath.Join(dir, archiveName)
	if err := zipFile(archivePath, jsonPath, jsonName); err != nil {
		os.Remove(archivePath)
		return "", err
	}
	if err := os.Remove(jsonPath); err != nil {
		return "", fmt.Errorf("failed to remove intermediate %s: %w", jsonPath, err)
	}

	slog.Info("output archive written", "path", archivePath, "responses", len(responses))
	return archivePath, nil
}

func zipFile(archivePath, srcPath, entryName string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", archivePath, err)
	}
	defer out.Close()

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer src.Close()

	zw := zip.NewWriter(out)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: entryName, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", entryName, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to compress %s: %w", srcPath, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive %s: %w", archivePath, err)
	}
	return out.Close()
}

// ReadOutputArchive loads the responses stored under jsonName in archivePath.
func ReadOutputArchive(archivePath, jsonName string) ([]json.RawMessage, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open output archive %s: %w", archivePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != jsonName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in %s: %w", jsonName, archivePath, err)
		}
		defer rc.Close()

		var responses []json.RawMessage
		if err := json.NewDecoder(rc).Decode(&responses); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", jsonName, err)
		}
		return responses, nil
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrEntryNotFound, jsonName, archivePath)
}
