package source

import (
	"fmt"
	"io"
	"os"

	"github.com/withObsrvr/obsrvr-basket-reader/internal/futures"
)

// FileResource is one exclusively-owned file handle. It is created by the
// source that owns it and only ever used by one pool worker.
type FileResource struct {
	path string
	file *os.File
}

// ReadRange reads the bytes in [rng.Start, rng.Stop).
func (r *FileResource) ReadRange(rng Range) ([]byte, error) {
	out := make([]byte, rng.Len())
	n, err := r.file.ReadAt(out, rng.Start)
	if err == io.EOF {
		if n == len(out) {
			return out, nil
		}
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, fmt.Errorf("read %s at %d-%d: %w", r.path, rng.Start, rng.Stop, err)
	}
	return out, nil
}

// Close releases the file handle.
func (r *FileResource) Close() error {
	return r.file.Close()
}

// MultithreadedFileSource reads a local file through a pool of workers,
// each owning its own handle on the same path. Fetches for different
// chunks proceed in parallel up to the number of workers.
type MultithreadedFileSource struct {
	path     string
	numBytes int64
	pool     *futures.ResourcePool
}

// DefaultNumWorkers is the handle count used when the caller does not
// choose one.
const DefaultNumWorkers = 4

// NewMultithreadedFileSource opens numWorkers handles on path (default
// DefaultNumWorkers when numWorkers <= 0) and starts one fetch worker per
// handle. The caller must Close the source to release the handles.
func NewMultithreadedFileSource(path string, numWorkers int) (*MultithreadedFileSource, error) {
	if numWorkers <= 0 {
		numWorkers = DefaultNumWorkers
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	resources := make([]futures.Resource, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		f, err := os.Open(path)
		if err != nil {
			for _, r := range resources {
				r.Close()
			}
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		resources = append(resources, &FileResource{path: path, file: f})
	}

	pool, err := futures.NewResourcePool(resources)
	if err != nil {
		for _, r := range resources {
			r.Close()
		}
		return nil, err
	}

	return &MultithreadedFileSource{
		path:     path,
		numBytes: info.Size(),
		pool:     pool,
	}, nil
}

// Chunks implements Source.
func (s *MultithreadedFileSource) Chunks(ranges []Range, notify func(*Chunk)) ([]*Chunk, error) {
	chunks := make([]*Chunk, 0, len(ranges))
	for _, rng := range ranges {
		if err := checkRange(rng, s.numBytes); err != nil {
			return nil, err
		}
		rng := rng
		future := futures.NewResourceFuture(func(resource futures.Resource) (any, error) {
			return resource.(*FileResource).ReadRange(rng)
		})
		chunk := newChunk(rng, future)
		if notify != nil {
			chunk.SetNotify(func() { notify(chunk) })
		}
		if _, err := s.pool.Submit(future); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", s.path, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// NumBytes implements Source.
func (s *MultithreadedFileSource) NumBytes() int64 { return s.numBytes }

// Path returns the file path this source reads.
func (s *MultithreadedFileSource) Path() string { return s.path }

// NumWorkers reports the handle count.
func (s *MultithreadedFileSource) NumWorkers() int { return s.pool.NumWorkers() }

// Close shuts the worker pool down and closes every handle. Chunks
// requested after Close fail with futures.ErrPoolClosed.
func (s *MultithreadedFileSource) Close() error {
	return s.pool.Close()
}
