package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	e, err := NewLocalExporter(dir)
	if err != nil {
		t.Fatalf("NewLocalExporter: %v", err)
	}

	path, err := e.WriteFile("sample.parquet", []byte("payload"))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("content = %q", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}

func TestWriteFileNested(t *testing.T) {
	dir := t.TempDir()
	e, err := NewLocalExporter(dir)
	if err != nil {
		t.Fatalf("NewLocalExporter: %v", err)
	}

	path, err := e.WriteFile(filepath.Join("sample", "part-0.parquet"), []byte("x"))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("nested file missing: %v", err)
	}
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	e, err := NewLocalExporter(dir)
	if err != nil {
		t.Fatalf("NewLocalExporter: %v", err)
	}

	m := &Manifest{
		File:       "sample.dat",
		Object:     "/sample",
		EntryStart: 0,
		EntryStop:  30,
		Tables: map[string]TableInfo{
			"sample": {File: "sample.parquet", Checksum: "sha256:abc", RowCount: 30, ByteSize: 123},
		},
		Producer:  ProducerInfo{Name: "basket-reader", Version: "dev"},
		CreatedAt: time.Now().UTC(),
	}
	if err := e.WriteManifest(m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "_manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var back Manifest
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Object != "/sample" || back.Tables["sample"].RowCount != 30 {
		t.Fatalf("round trip = %+v", back)
	}
}
