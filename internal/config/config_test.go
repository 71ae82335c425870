package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
file:
  path: /data/sample.dat
  metadata: /data/sample.meta.yaml
read:
  branches: [i4, f8]
  entry_start: 3
  entry_stop: -5
perf:
  decompression_workers: 8
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.File.Path != "/data/sample.dat" {
		t.Fatalf("file.path = %q", cfg.File.Path)
	}
	if len(cfg.Read.Branches) != 2 || cfg.Read.Branches[1] != "f8" {
		t.Fatalf("branches = %v", cfg.Read.Branches)
	}
	if cfg.Read.EntryStop != -5 {
		t.Fatalf("entry_stop = %d", cfg.Read.EntryStop)
	}
	if cfg.Perf.DecompressionWorkers != 8 {
		t.Fatalf("decompression_workers = %d", cfg.Perf.DecompressionWorkers)
	}
	if cfg.Perf.SourceWorkers != 4 {
		t.Fatalf("source_workers default = %d", cfg.Perf.SourceWorkers)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Fatalf("log = %+v", cfg.Log)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FILE_PATH", "/env/sample.dat")
	t.Setenv("TREE_METADATA", "/env/sample.meta.yaml")
	t.Setenv("BRANCHES", "one, two")
	t.Setenv("ENTRY_STOP", "-7")
	t.Setenv("METRICS_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.File.Path != "/env/sample.dat" {
		t.Fatalf("file.path = %q", cfg.File.Path)
	}
	if len(cfg.Read.Branches) != 2 || cfg.Read.Branches[0] != "one" {
		t.Fatalf("branches = %v", cfg.Read.Branches)
	}
	if cfg.Read.EntryStop != -7 {
		t.Fatalf("entry_stop = %d", cfg.Read.EntryStop)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics should be enabled")
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("FILE_PATH", "")
	t.Setenv("BUCKET_URL", "")
	t.Setenv("TREE_METADATA", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected missing-file error")
	}

	t.Setenv("BUCKET_URL", "s3://bucket")
	t.Setenv("TREE_METADATA", "/meta.yaml")
	if _, err := Load(""); err == nil {
		t.Fatal("expected missing bucket_key error")
	}
}

func TestLoadTreeMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.meta.yaml")
	content := `
object: /sample
cycle: 1
branches:
  - name: i4
    type_id: 16
    dtype: ">i4"
    entry_offsets: [0, 7, 14, 21, 28, 30]
    baskets:
      - {byte_start: 0, byte_stop: 28, codec: none, uncompressed_bytes: 28}
      - {byte_start: 28, byte_stop: 56, codec: none, uncompressed_bytes: 28}
      - {byte_start: 56, byte_stop: 84, codec: none, uncompressed_bytes: 28}
      - {byte_start: 84, byte_stop: 112, codec: none, uncompressed_bytes: 28}
      - {byte_start: 112, byte_stop: 120, codec: none, uncompressed_bytes: 8}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	meta, err := LoadTreeMeta(path)
	if err != nil {
		t.Fatalf("LoadTreeMeta: %v", err)
	}
	if meta.Object != "/sample" || meta.Cycle != 1 {
		t.Fatalf("meta = %+v", meta)
	}
	if len(meta.Branches) != 1 || len(meta.Branches[0].Baskets) != 5 {
		t.Fatalf("branches = %+v", meta.Branches)
	}
	if meta.Branches[0].Baskets[4].ByteStop != 120 {
		t.Fatalf("last basket = %+v", meta.Branches[0].Baskets[4])
	}
}

func TestLoadTreeMetaMissingObject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("branches: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTreeMeta(path); err == nil {
		t.Fatal("expected validation error")
	}
}
