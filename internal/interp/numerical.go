package interp

import (
	"fmt"
)

// AsDtype interprets a branch of fixed-width primitive values: each entry
// is one element of From in the file, rendered as one element of To in
// the result. The usual configuration converts big-endian stored data to
// native order, e.g. NewAsDtype(">i4").
type AsDtype struct {
	From Dtype
	To   Dtype
}

// NewAsDtype builds the interpretation for a stored dtype string,
// rendering to the same element type in native order.
func NewAsDtype(from string) (AsDtype, error) {
	d, err := ParseDtype(from)
	if err != nil {
		return AsDtype{}, err
	}
	return AsDtype{From: d, To: d.Native()}, nil
}

// MustAsDtype is NewAsDtype that panics on a malformed dtype string.
func MustAsDtype(from string) AsDtype {
	a, err := NewAsDtype(from)
	if err != nil {
		panic(err)
	}
	return a
}

// CacheKey implements Interpretation. The form is stable:
// "AsDtype(Bi4(),Li4())".
func (a AsDtype) CacheKey() string {
	return fmt.Sprintf("AsDtype(%s,%s)", a.From.Signature(), a.To.Signature())
}

// ItemWidth implements Interpretation.
func (a AsDtype) ItemWidth() int { return a.From.Size }

// numericFragment is one basket's elements in native byte order.
type numericFragment struct {
	dtype Dtype // native
	data  []byte
}

func (f *numericFragment) Entries() int64 {
	return int64(len(f.data) / f.dtype.Size)
}

// BasketArray implements Interpretation: it converts the basket's bytes
// from stored to native order. byteOffsets is ignored; entries are fixed
// width.
func (a AsDtype) BasketArray(data []byte, byteOffsets []int32, basketCtx BasketContext) (Fragment, error) {
	size := a.From.Size
	if len(data)%size != 0 {
		return nil, fmt.Errorf("basket %d of branch %q holds %d bytes, not a multiple of item width %d",
			basketCtx.BasketNumber, basketCtx.BranchName, len(data), size)
	}
	native := make([]byte, len(data))
	if a.From.Big && size > 1 {
		for i := 0; i < len(data); i += size {
			for j := 0; j < size; j++ {
				native[i+j] = data[i+size-1-j]
			}
		}
	} else {
		copy(native, data)
	}
	return &numericFragment{dtype: a.To, data: native}, nil
}

// FinalArray implements Interpretation.
func (a AsDtype) FinalArray(fragments []Fragment, entryStart, entryStop int64, entryOffsets []int64, lib Library) (any, error) {
	if len(entryOffsets) != len(fragments)+1 {
		return nil, fmt.Errorf("%d fragments with %d entry offsets", len(fragments), len(entryOffsets))
	}

	size := int64(a.To.Size)
	var stitched []byte
	for i, fragment := range fragments {
		nf, ok := fragment.(*numericFragment)
		if !ok {
			return nil, fmt.Errorf("%w: fragment %d is %T", ErrFragmentMismatch, i, fragment)
		}
		basketStart, basketStop := entryOffsets[i], entryOffsets[i+1]
		if n := nf.Entries(); n != basketStop-basketStart {
			return nil, fmt.Errorf("fragment %d holds %d entries, basket covers %d-%d", i, n, basketStart, basketStop)
		}

		// Clip the fragment to its intersection with the request.
		localStart := entryStart - basketStart
		if localStart < 0 {
			localStart = 0
		}
		localStop := entryStop - basketStart
		if max := basketStop - basketStart; localStop > max {
			localStop = max
		}
		if localStop <= localStart {
			continue
		}
		stitched = append(stitched, nf.data[localStart*size:localStop*size]...)
	}
	if stitched == nil {
		stitched = []byte{}
	}

	return lib.Numeric(a.To, stitched)
}
