package interp

import (
	"errors"
)

// ErrGroupedBranch is returned when a grouping interpretation is asked to
// decode baskets directly; the caller must read the subbranches instead.
var ErrGroupedBranch = errors.New("grouped branch has no data of its own")

// ErrFragmentMismatch is returned when FinalArray receives fragments that
// do not belong to this interpretation.
var ErrFragmentMismatch = errors.New("fragment does not match interpretation")

// Fragment is one basket's decoded data over that basket's own entry
// range.
type Fragment interface {
	// Entries is the number of entries the fragment holds.
	Entries() int64
}

// BasketContext identifies the basket being decoded, for error messages
// and diagnostics.
type BasketContext struct {
	FilePath     string
	ObjectPath   string
	BranchName   string
	BasketNumber int
}

// Interpretation is a stateless decode strategy: one operation decodes a
// single basket's bytes into a typed fragment, the other stitches ordered
// fragments into the final array for an entry range. Implementations form
// a closed set (fixed-width numeric, grouped) selected per branch at
// configuration time.
type Interpretation interface {
	// CacheKey is the interpretation's identity in array cache keys,
	// e.g. "AsDtype(Bi4(),Li4())". Equal configurations produce equal
	// keys.
	CacheKey() string

	// ItemWidth is the stored width in bytes of one entry, or 0 when
	// entries are variable-width or the interpretation holds no data.
	ItemWidth() int

	// BasketArray decodes one basket's decompressed bytes into a
	// fragment over the basket's own entry range. byteOffsets is nil
	// for fixed-width entries. Deterministic given identical inputs.
	BasketArray(data []byte, byteOffsets []int32, basketCtx BasketContext) (Fragment, error)

	// FinalArray clips each fragment to its intersection with
	// [entryStart, entryStop), concatenates the clipped pieces in
	// basket order, and renders the result through lib. entryOffsets
	// holds the global entry boundary of every basket: fragment i
	// covers [entryOffsets[i], entryOffsets[i+1]). An empty or
	// out-of-bounds request produces an empty array, not an error.
	FinalArray(fragments []Fragment, entryStart, entryStop int64, entryOffsets []int64, lib Library) (any, error)
}
