// Package interp defines the pluggable decode strategies that turn raw
// basket bytes into typed fragments and stitch fragments into final
// arrays clipped to a requested entry range.
package interp

import (
	"fmt"
)

// Dtype describes a fixed-width primitive element: byte order, kind and
// size. The string form follows the conventional dtype grammar, e.g.
// ">i4" (big-endian 4-byte signed int), "<f8", "u2". Without an explicit
// order prefix the element is native (little-endian) order.
type Dtype struct {
	Big  bool
	Kind byte // 'i' signed, 'u' unsigned, 'f' float
	Size int  // bytes per element: 1, 2, 4 or 8
}

// ParseDtype parses a dtype string such as ">i4", "<u2" or "f8".
func ParseDtype(s string) (Dtype, error) {
	orig := s
	var d Dtype
	if len(s) > 0 && (s[0] == '>' || s[0] == '<' || s[0] == '=') {
		d.Big = s[0] == '>'
		s = s[1:]
	}
	if len(s) != 2 {
		return Dtype{}, fmt.Errorf("invalid dtype %q", orig)
	}
	switch s[0] {
	case 'i', 'u', 'f':
		d.Kind = s[0]
	default:
		return Dtype{}, fmt.Errorf("invalid dtype kind in %q", orig)
	}
	switch s[1] {
	case '1':
		d.Size = 1
	case '2':
		d.Size = 2
	case '4':
		d.Size = 4
	case '8':
		d.Size = 8
	default:
		return Dtype{}, fmt.Errorf("invalid dtype size in %q", orig)
	}
	if d.Kind == 'f' && d.Size < 4 {
		return Dtype{}, fmt.Errorf("invalid float size in %q", orig)
	}
	return d, nil
}

// MustDtype is ParseDtype for compile-time constants; it panics on a
// malformed string.
func MustDtype(s string) Dtype {
	d, err := ParseDtype(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Native returns the same element type in native byte order.
func (d Dtype) Native() Dtype {
	d.Big = false
	return d
}

// String returns the conventional dtype string, e.g. ">i4".
func (d Dtype) String() string {
	order := "<"
	if d.Big {
		order = ">"
	}
	return fmt.Sprintf("%s%c%d", order, d.Kind, d.Size)
}

// Signature returns the cache-key form of the dtype: byte order letter,
// kind and size with a trailing call marker, e.g. "Bi4()" or "Li4()".
func (d Dtype) Signature() string {
	order := byte('L')
	if d.Big {
		order = 'B'
	}
	return fmt.Sprintf("%c%c%d()", order, d.Kind, d.Size)
}
