package source

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver

	"github.com/withObsrvr/obsrvr-basket-reader/internal/futures"
)

// BlobResource is one exclusively-owned bucket handle for range reads of a
// single object. Each pool worker gets its own so that no handle is shared
// across goroutines.
type BlobResource struct {
	bucket *blob.Bucket
	key    string
}

// ReadRange reads the bytes in [rng.Start, rng.Stop) from the object.
func (r *BlobResource) ReadRange(ctx context.Context, rng Range) ([]byte, error) {
	reader, err := r.bucket.NewRangeReader(ctx, r.key, rng.Start, rng.Len(), nil)
	if err != nil {
		return nil, fmt.Errorf("range read %s at %d-%d: %w", r.key, rng.Start, rng.Stop, err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("range read %s at %d-%d: %w", r.key, rng.Start, rng.Stop, err)
	}
	return out, nil
}

// Close releases the bucket handle.
func (r *BlobResource) Close() error {
	return r.bucket.Close()
}

// BlobSource reads one object in a blob store (gs://, s3://, file://)
// through a pool of workers, each with its own bucket handle.
type BlobSource struct {
	url      string
	key      string
	numBytes int64
	pool     *futures.ResourcePool
}

// NewBlobSource opens numWorkers bucket handles (default DefaultNumWorkers
// when numWorkers <= 0) for the object key under bucketURL. Authentication
// follows the ambient credentials of the driver, as with any gocloud
// bucket. The caller must Close the source.
func NewBlobSource(ctx context.Context, bucketURL, key string, numWorkers int) (*BlobSource, error) {
	if numWorkers <= 0 {
		numWorkers = DefaultNumWorkers
	}

	resources := make([]futures.Resource, 0, numWorkers)
	var numBytes int64
	for i := 0; i < numWorkers; i++ {
		bucket, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			for _, r := range resources {
				r.Close()
			}
			return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
		}
		if i == 0 {
			attrs, err := bucket.Attributes(ctx, key)
			if err != nil {
				bucket.Close()
				for _, r := range resources {
					r.Close()
				}
				return nil, fmt.Errorf("stat %s in %s: %w", key, bucketURL, err)
			}
			numBytes = attrs.Size
		}
		resources = append(resources, &BlobResource{bucket: bucket, key: key})
	}

	pool, err := futures.NewResourcePool(resources)
	if err != nil {
		for _, r := range resources {
			r.Close()
		}
		return nil, err
	}

	return &BlobSource{
		url:      bucketURL,
		key:      key,
		numBytes: numBytes,
		pool:     pool,
	}, nil
}

// Chunks implements Source. Fetch tasks carry no deadline of their own;
// timeouts apply at the Chunk.Raw wait.
func (s *BlobSource) Chunks(ranges []Range, notify func(*Chunk)) ([]*Chunk, error) {
	chunks := make([]*Chunk, 0, len(ranges))
	for _, rng := range ranges {
		if err := checkRange(rng, s.numBytes); err != nil {
			return nil, err
		}
		rng := rng
		future := futures.NewResourceFuture(func(resource futures.Resource) (any, error) {
			return resource.(*BlobResource).ReadRange(context.Background(), rng)
		})
		chunk := newChunk(rng, future)
		if notify != nil {
			chunk.SetNotify(func() { notify(chunk) })
		}
		if _, err := s.pool.Submit(future); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", s.key, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// NumBytes implements Source.
func (s *BlobSource) NumBytes() int64 { return s.numBytes }

// Close shuts the worker pool down and closes every bucket handle.
func (s *BlobSource) Close() error {
	return s.pool.Close()
}
