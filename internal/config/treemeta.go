package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TreeMeta is the YAML sidecar describing one tree's layout: where
// each branch's baskets live in the file and how to decode them.
type TreeMeta struct {
	Object   string       `yaml:"object"` // e.g. "/sample"
	Cycle    int          `yaml:"cycle"`
	Branches []BranchMeta `yaml:"branches"`
}

type BranchMeta struct {
	Name         string       `yaml:"name"`
	TypeID       int          `yaml:"type_id"`
	Dtype        string       `yaml:"dtype"` // e.g. ">i4"
	EntryOffsets []int64      `yaml:"entry_offsets"`
	Baskets      []BasketMeta `yaml:"baskets"`
}

type BasketMeta struct {
	ByteStart         int64  `yaml:"byte_start"`
	ByteStop          int64  `yaml:"byte_stop"`
	Codec             string `yaml:"codec"` // "none" | "zlib" | "lz4" | "zstd"
	UncompressedBytes int    `yaml:"uncompressed_bytes"`
	DataBytes         int    `yaml:"data_bytes,omitempty"`
}

// LoadTreeMeta reads and parses a tree metadata sidecar.
func LoadTreeMeta(path string) (*TreeMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tree metadata %s: %w", path, err)
	}
	var meta TreeMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse tree metadata %s: %w", path, err)
	}
	if meta.Object == "" {
		return nil, fmt.Errorf("tree metadata %s: object is required", path)
	}
	if len(meta.Branches) == 0 {
		return nil, fmt.Errorf("tree metadata %s: at least one branch is required", path)
	}
	if meta.Cycle == 0 {
		meta.Cycle = 1
	}
	return &meta, nil
}
