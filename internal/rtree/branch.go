package rtree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/withObsrvr/obsrvr-basket-reader/internal/cache"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/compress"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/interp"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/source"
)

// ErrInterpretationMismatch is returned when a requested interpretation
// does not match the branch's stored data type.
var ErrInterpretationMismatch = errors.New("interpretation does not match branch type")

// ErrBasketCorrupt is returned when a basket's bytes cannot be parsed.
var ErrBasketCorrupt = errors.New("basket is corrupt")

// BasketInfo locates one basket inside the file and describes how to
// decode it.
type BasketInfo struct {
	// ByteStart and ByteStop delimit the compressed basket in the file.
	ByteStart int64
	ByteStop  int64

	// Codec is the compression algorithm of the stored bytes.
	Codec compress.Codec

	// UncompressedBytes is the size of the basket after decompression.
	UncompressedBytes int

	// DataBytes is the size of the content section within the
	// uncompressed basket. The remainder, if any, is a trailing table
	// of big-endian int32 byte offsets for variable-width data.
	// Zero means the whole basket is content.
	DataBytes int
}

// BranchInfo describes one branch of a tree: its identity, data type,
// and the layout of its baskets.
type BranchInfo struct {
	Name    string
	TypeID  int
	Dtype   string // format string such as ">i4"
	Baskets []BasketInfo

	// EntryOffsets has one element per basket boundary
	// (len(Baskets)+1), starting at 0 and ending at the branch's
	// total entry count.
	EntryOffsets []int64
}

// Basket is one decompressed basket of a branch.
type Basket struct {
	Number     int
	EntryStart int64
	EntryStop  int64

	// Data is the decompressed content section.
	Data []byte

	// ByteOffsets is the trailing offsets table for variable-width
	// data, nil for fixed-width branches.
	ByteOffsets []int32
}

// Entries returns the number of entries covered by the basket.
func (b *Basket) Entries() int64 { return b.EntryStop - b.EntryStart }

// Branch is a named column of a Tree, backed by an ordered sequence of
// baskets.
type Branch struct {
	info  BranchInfo
	dtype interp.Dtype
	tree  *Tree
	key   string

	mu      sync.Mutex
	baskets map[int]*Basket
}

func newBranch(t *Tree, info BranchInfo, objectKey string) (*Branch, error) {
	if len(info.EntryOffsets) != len(info.Baskets)+1 {
		return nil, fmt.Errorf("branch %q: %d baskets need %d entry offsets, got %d",
			info.Name, len(info.Baskets), len(info.Baskets)+1, len(info.EntryOffsets))
	}
	if len(info.EntryOffsets) > 0 && info.EntryOffsets[0] != 0 {
		return nil, fmt.Errorf("branch %q: entry offsets must start at 0, got %d",
			info.Name, info.EntryOffsets[0])
	}
	for i := 1; i < len(info.EntryOffsets); i++ {
		if info.EntryOffsets[i] < info.EntryOffsets[i-1] {
			return nil, fmt.Errorf("branch %q: entry offsets must be non-decreasing", info.Name)
		}
	}
	dtype, err := interp.ParseDtype(info.Dtype)
	if err != nil {
		return nil, fmt.Errorf("branch %q: %w", info.Name, err)
	}
	return &Branch{
		info:    info,
		dtype:   dtype,
		tree:    t,
		key:     cache.BranchKey(t.key, info.Name, info.TypeID),
		baskets: make(map[int]*Basket),
	}, nil
}

// Name returns the branch name.
func (b *Branch) Name() string { return b.info.Name }

// Dtype returns the branch's stored data type.
func (b *Branch) Dtype() interp.Dtype { return b.dtype }

// NumBaskets returns the number of baskets backing the branch.
func (b *Branch) NumBaskets() int { return len(b.info.Baskets) }

// NumEntries returns the branch's total entry count.
func (b *Branch) NumEntries() int64 {
	return b.info.EntryOffsets[len(b.info.EntryOffsets)-1]
}

// CacheKey returns the branch's identity string, used as a prefix of
// array cache keys.
func (b *Branch) CacheKey() string { return b.key }

// cachedBasket returns the decompressed basket if a prior request
// already materialized it.
func (b *Branch) cachedBasket(num int) *Basket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baskets[num]
}

func (b *Branch) storeBasket(bk *Basket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baskets[bk.Number] = bk
}

// fetchUnit is one basket's worth of pending work: either an already
// materialized Basket or the byte range to fetch it from.
type fetchUnit struct {
	branch    *Branch
	basketNum int
	rng       source.Range
	basket    *Basket
	chunk     *source.Chunk
}

// entriesToRangesOrBaskets resolves a normalized entry range to the
// ordered list of baskets overlapping it. Baskets already in the
// branch's basket cache are carried as-is; the rest carry byte ranges.
func (b *Branch) entriesToRangesOrBaskets(entryStart, entryStop int64) []*fetchUnit {
	var units []*fetchUnit
	offsets := b.info.EntryOffsets
	for num := range b.info.Baskets {
		if offsets[num+1] <= entryStart || offsets[num] >= entryStop {
			continue
		}
		u := &fetchUnit{branch: b, basketNum: num}
		if bk := b.cachedBasket(num); bk != nil {
			u.basket = bk
		} else {
			u.rng = source.Range{
				Start: b.info.Baskets[num].ByteStart,
				Stop:  b.info.Baskets[num].ByteStop,
			}
		}
		units = append(units, u)
	}
	return units
}

// validateInterpretation rejects interpretations whose item width or
// source dtype disagrees with the branch's stored type.
func (b *Branch) validateInterpretation(ip interp.Interpretation) error {
	if ad, ok := ip.(interp.AsDtype); ok {
		if ad.From != b.dtype {
			return fmt.Errorf("branch %q stores %s, requested %s: %w",
				b.info.Name, b.dtype, ad.From, ErrInterpretationMismatch)
		}
		return nil
	}
	if w := ip.ItemWidth(); w > 0 && w != b.dtype.Size {
		return fmt.Errorf("branch %q stores %d-byte items, interpretation wants %d: %w",
			b.info.Name, b.dtype.Size, w, ErrInterpretationMismatch)
	}
	return nil
}

// parseBasket decompresses one basket's raw bytes and splits them into
// the content section and the optional trailing byte-offsets table.
func (b *Branch) parseBasket(num int, raw []byte, decoder *compress.Decoder) (*Basket, error) {
	info := b.info.Baskets[num]
	data, err := decoder.Decompress(raw, info.Codec, info.UncompressedBytes)
	if err != nil {
		return nil, fmt.Errorf("branch %q basket %d: %w", b.info.Name, num, err)
	}

	bk := &Basket{
		Number:     num,
		EntryStart: b.info.EntryOffsets[num],
		EntryStop:  b.info.EntryOffsets[num+1],
	}

	dataBytes := info.DataBytes
	if dataBytes == 0 || dataBytes == len(data) {
		bk.Data = data
		return bk, nil
	}
	if dataBytes > len(data) || (len(data)-dataBytes)%4 != 0 {
		return nil, fmt.Errorf("branch %q basket %d: %d content bytes in a %d-byte basket: %w",
			b.info.Name, num, dataBytes, len(data), ErrBasketCorrupt)
	}
	bk.Data = data[:dataBytes]
	tail := data[dataBytes:]
	bk.ByteOffsets = make([]int32, len(tail)/4)
	for i := range bk.ByteOffsets {
		bk.ByteOffsets[i] = int32(binary.BigEndian.Uint32(tail[i*4:]))
	}
	return bk, nil
}

// NormalizeEntries converts user-facing entry bounds to a concrete
// half-open range within [0, total]. Negative bounds count back from
// total; a stop of zero means the end of the branch.
func NormalizeEntries(start, stop, total int64) (int64, int64) {
	if start < 0 {
		start += total
	}
	if stop <= 0 {
		stop += total
	}
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	if stop > total {
		stop = total
	}
	if stop < start {
		stop = start
	}
	return start, stop
}
