package source

import (
	"github.com/withObsrvr/obsrvr-basket-reader/internal/futures"
)

// MemSource serves byte ranges from an in-memory buffer. Chunks settle at
// request time, so it is the degenerate synchronous source; tests and
// small fully-buffered files use it.
type MemSource struct {
	data []byte
}

// NewMemSource wraps data without copying it.
func NewMemSource(data []byte) *MemSource {
	return &MemSource{data: data}
}

// Chunks implements Source. Every returned chunk is already settled.
func (s *MemSource) Chunks(ranges []Range, notify func(*Chunk)) ([]*Chunk, error) {
	chunks := make([]*Chunk, 0, len(ranges))
	for _, rng := range ranges {
		if err := checkRange(rng, int64(len(s.data))); err != nil {
			return nil, err
		}
		chunk := newChunk(rng, futures.ResolvedResource(s.data[rng.Start:rng.Stop:rng.Stop]))
		if notify != nil {
			chunk.SetNotify(func() { notify(chunk) })
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// NumBytes implements Source.
func (s *MemSource) NumBytes() int64 { return int64(len(s.data)) }

// Close implements Source; there is nothing to release.
func (s *MemSource) Close() error { return nil }
