package interp

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Library renders stitched results into a downstream representation. Tags
// are part of array cache keys and must stay stable; the default "np" tag
// renders flat typed slices and keeps keys compatible with readers of the
// same files in other ecosystems.
type Library interface {
	// Tag is the library's cache-key tag.
	Tag() string

	// Numeric renders contiguous native-order bytes as a typed slice
	// of the given dtype.
	Numeric(dtype Dtype, data []byte) (any, error)

	// Group renders the arrays of a grouped branch's subbranches, in
	// the given name order.
	Group(columns map[string]any, names []string) (any, error)
}

// FlatLibrary renders numeric results as typed Go slices ([]int32,
// []float64, ...) and groups as a name-to-array map.
type FlatLibrary struct{}

// Tag implements Library.
func (FlatLibrary) Tag() string { return "np" }

// Numeric implements Library.
func (FlatLibrary) Numeric(dtype Dtype, data []byte) (any, error) {
	if len(data)%dtype.Size != 0 {
		return nil, fmt.Errorf("%d bytes do not divide into %d-byte elements", len(data), dtype.Size)
	}
	n := len(data) / dtype.Size

	switch {
	case dtype.Kind == 'i' && dtype.Size == 1:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(data[i])
		}
		return out, nil
	case dtype.Kind == 'u' && dtype.Size == 1:
		out := make([]uint8, n)
		copy(out, data)
		return out, nil
	case dtype.Kind == 'i' && dtype.Size == 2:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out, nil
	case dtype.Kind == 'u' && dtype.Size == 2:
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(data[i*2:])
		}
		return out, nil
	case dtype.Kind == 'i' && dtype.Size == 4:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case dtype.Kind == 'u' && dtype.Size == 4:
		out := make([]uint32, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		return out, nil
	case dtype.Kind == 'i' && dtype.Size == 8:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	case dtype.Kind == 'u' && dtype.Size == 8:
		out := make([]uint64, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(data[i*8:])
		}
		return out, nil
	case dtype.Kind == 'f' && dtype.Size == 4:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case dtype.Kind == 'f' && dtype.Size == 8:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
}

// Group implements Library.
func (FlatLibrary) Group(columns map[string]any, names []string) (any, error) {
	out := make(map[string]any, len(names))
	for _, name := range names {
		column, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("group is missing column %q", name)
		}
		out[name] = column
	}
	return out, nil
}

// Record is a grouped result with a stable column order.
type Record struct {
	Names   []string
	Columns map[string]any
}

// RecordLibrary renders numeric results the same way FlatLibrary does
// but groups subbranch arrays into a Record that preserves their order.
type RecordLibrary struct {
	FlatLibrary
}

// Tag implements Library.
func (RecordLibrary) Tag() string { return "rec" }

// Group implements Library.
func (RecordLibrary) Group(columns map[string]any, names []string) (any, error) {
	out := Record{
		Names:   make([]string, len(names)),
		Columns: make(map[string]any, len(names)),
	}
	copy(out.Names, names)
	for _, name := range names {
		column, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("group is missing column %q", name)
		}
		out.Columns[name] = column
	}
	return out, nil
}

var libraries = map[string]Library{
	FlatLibrary{}.Tag():   FlatLibrary{},
	RecordLibrary{}.Tag(): RecordLibrary{},
}

// LibraryByTag looks a library up by its cache-key tag.
func LibraryByTag(tag string) (Library, error) {
	lib, ok := libraries[tag]
	if !ok {
		return nil, fmt.Errorf("unknown output library %q", tag)
	}
	return lib, nil
}
