// Package source provides byte-range access to basket files. A Source
// turns requested byte ranges into Chunks whose bytes arrive through
// resource-bound futures, so that each underlying I/O handle is only ever
// touched by the one worker that owns it.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/withObsrvr/obsrvr-basket-reader/internal/futures"
)

// ErrReadBeyondEnd is returned when a requested range extends past the end
// of the file.
var ErrReadBeyondEnd = errors.New("read beyond end of file")

// Range is a half-open byte range [Start, Stop).
type Range struct {
	Start int64
	Stop  int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 { return r.Stop - r.Start }

// Chunk is one requested byte range and the future delivering its bytes.
type Chunk struct {
	Range
	future *futures.ResourceFuture
}

func newChunk(rng Range, future *futures.ResourceFuture) *Chunk {
	return &Chunk{Range: rng, future: future}
}

// Raw blocks until the chunk's bytes are available and returns them, or
// the fetch error verbatim.
func (c *Chunk) Raw(ctx context.Context) ([]byte, error) {
	v, err := c.future.Result(ctx)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// SetNotify installs a callback fired when the chunk's bytes arrive or the
// fetch fails. If the chunk is already settled the callback fires
// immediately.
func (c *Chunk) SetNotify(notify func()) {
	c.future.SetNotify(notify)
}

// Source reads byte ranges from one open file.
type Source interface {
	// Chunks requests all the given ranges at once. The returned chunks
	// are in request order; their bytes arrive in whatever order the
	// workers finish. notify, when non-nil, is called once per chunk as
	// it settles (success or failure).
	Chunks(ranges []Range, notify func(*Chunk)) ([]*Chunk, error)

	// NumBytes is the total size of the file.
	NumBytes() int64

	// Close releases every I/O handle held by the source. Reads after
	// Close fail.
	Close() error
}

// checkRange validates a requested range against the file size.
func checkRange(rng Range, numBytes int64) error {
	if rng.Start < 0 || rng.Stop < rng.Start {
		return fmt.Errorf("invalid byte range %d-%d", rng.Start, rng.Stop)
	}
	if rng.Stop > numBytes {
		return fmt.Errorf("%w: range %d-%d in file of %d bytes", ErrReadBeyondEnd, rng.Start, rng.Stop, numBytes)
	}
	return nil
}
