// Package export writes dump outputs to the local filesystem, pairing
// each data file with a JSON manifest.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manifest describes the contents of one dump directory.
type Manifest struct {
	File       string               `json:"file"`
	Object     string               `json:"object"`
	EntryStart int64                `json:"entry_start"`
	EntryStop  int64                `json:"entry_stop"`
	Tables     map[string]TableInfo `json:"tables"`
	Producer   ProducerInfo         `json:"producer"`
	CreatedAt  time.Time            `json:"created_at"`
}

// TableInfo describes a single table file in the dump.
type TableInfo struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the dump.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// LocalExporter writes files into one directory, atomically via temp +
// rename.
type LocalExporter struct {
	baseDir string
}

// NewLocalExporter creates the base directory if needed.
func NewLocalExporter(baseDir string) (*LocalExporter, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}
	return &LocalExporter{baseDir: baseDir}, nil
}

// WriteFile writes data under name atomically and returns the final
// path.
func (e *LocalExporter) WriteFile(name string, data []byte) (string, error) {
	path := filepath.Join(e.baseDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("write temp file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return path, nil
}

// WriteManifest writes the dump manifest as _manifest.json.
func (e *LocalExporter) WriteManifest(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	_, err = e.WriteFile("_manifest.json", data)
	return err
}

// URI returns the canonical file URI for name.
func (e *LocalExporter) URI(name string) string {
	abs, err := filepath.Abs(filepath.Join(e.baseDir, name))
	if err != nil {
		abs = filepath.Join(e.baseDir, name)
	}
	return "file://" + abs
}
