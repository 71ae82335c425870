// Package config loads the basket reader's configuration from an
// optional YAML file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	File    FileConfig    `yaml:"file"`
	Read    ReadConfig    `yaml:"read"`
	Perf    PerfConfig    `yaml:"perf"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// FileConfig locates the data file and its tree metadata sidecar.
// Either Path (local file) or BucketURL+BucketKey (blob store) must be
// set.
type FileConfig struct {
	Path      string `yaml:"path"`
	BucketURL string `yaml:"bucket_url"` // e.g. "s3://bucket", "gs://bucket", "file:///dir"
	BucketKey string `yaml:"bucket_key"`
	Metadata  string `yaml:"metadata"` // tree metadata sidecar (YAML)
}

type ReadConfig struct {
	Branches   []string `yaml:"branches"` // empty means every branch
	EntryStart int64    `yaml:"entry_start"`
	EntryStop  int64    `yaml:"entry_stop"` // zero means end of tree
	Library    string   `yaml:"library"`
}

type PerfConfig struct {
	SourceWorkers         int   `yaml:"source_workers"`
	DecompressionWorkers  int   `yaml:"decompression_workers"`
	InterpretationWorkers int   `yaml:"interpretation_workers"`
	ObjectCacheItems      int   `yaml:"object_cache_items"`
	ArrayCacheBytes       int64 `yaml:"array_cache_bytes"`
}

type OutputConfig struct {
	Format string `yaml:"format"` // "json" | "parquet"
	Dir    string `yaml:"dir"`
	Table  string `yaml:"table"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds the configuration: defaults, then the YAML file at path
// (if non-empty), then environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Config{
		Perf: PerfConfig{
			SourceWorkers:         4,
			DecompressionWorkers:  4,
			InterpretationWorkers: 2,
		},
		Output: OutputConfig{
			Format: "json",
			Dir:    "./out",
			Table:  "sample",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.File.Path == "" && cfg.File.BucketURL == "" {
		return Config{}, fmt.Errorf("either file.path or file.bucket_url is required")
	}
	if cfg.File.BucketURL != "" && cfg.File.BucketKey == "" {
		return Config{}, fmt.Errorf("file.bucket_key is required with file.bucket_url")
	}
	if cfg.File.Metadata == "" {
		return Config{}, fmt.Errorf("file.metadata is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.File.Path = getenvDefault("FILE_PATH", cfg.File.Path)
	cfg.File.BucketURL = getenvDefault("BUCKET_URL", cfg.File.BucketURL)
	cfg.File.BucketKey = getenvDefault("BUCKET_KEY", cfg.File.BucketKey)
	cfg.File.Metadata = getenvDefault("TREE_METADATA", cfg.File.Metadata)

	if v := os.Getenv("BRANCHES"); v != "" {
		cfg.Read.Branches = splitList(v)
	}
	cfg.Read.EntryStart = getenvInt64("ENTRY_START", cfg.Read.EntryStart)
	cfg.Read.EntryStop = getenvInt64("ENTRY_STOP", cfg.Read.EntryStop)
	cfg.Read.Library = getenvDefault("LIBRARY", cfg.Read.Library)

	cfg.Perf.SourceWorkers = getenvInt("SOURCE_WORKERS", cfg.Perf.SourceWorkers)
	cfg.Perf.DecompressionWorkers = getenvInt("DECOMPRESSION_WORKERS", cfg.Perf.DecompressionWorkers)
	cfg.Perf.InterpretationWorkers = getenvInt("INTERPRETATION_WORKERS", cfg.Perf.InterpretationWorkers)
	cfg.Perf.ObjectCacheItems = getenvInt("OBJECT_CACHE_ITEMS", cfg.Perf.ObjectCacheItems)
	cfg.Perf.ArrayCacheBytes = getenvInt64("ARRAY_CACHE_BYTES", cfg.Perf.ArrayCacheBytes)

	cfg.Output.Format = getenvDefault("OUTPUT_FORMAT", cfg.Output.Format)
	cfg.Output.Dir = getenvDefault("OUTPUT_DIR", cfg.Output.Dir)
	cfg.Output.Table = getenvDefault("OUTPUT_TABLE", cfg.Output.Table)

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	cfg.Metrics.Address = getenvDefault("METRICS_ADDRESS", cfg.Metrics.Address)
	cfg.Metrics.Namespace = getenvDefault("METRICS_NAMESPACE", cfg.Metrics.Namespace)

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
