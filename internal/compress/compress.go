// Package compress decompresses basket payloads. Each basket records the
// algorithm it was written with; the decoder treats the payload as an
// opaque byte transform from compressed to uncompressed bytes.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a basket's compression algorithm. The values are the
// on-disk algorithm ids of the file format — changing them breaks
// compatibility with existing files.
type Codec uint8

const (
	// CodecNone indicates an uncompressed basket.
	CodecNone Codec = 0

	// CodecZlib indicates zlib (RFC 1950) compression, the format's
	// historical default.
	CodecZlib Codec = 1

	// CodecLZ4 indicates LZ4 block compression.
	CodecLZ4 Codec = 4

	// CodecZstd indicates zstd compression.
	CodecZstd Codec = 5
)

// String returns the human-readable name of a codec.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZlib:
		return "zlib"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec from its string representation.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none", "":
		return CodecNone, nil
	case "zlib":
		return CodecZlib, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

// Decoder decompresses basket payloads. Decompress is safe for concurrent
// use; Close must not be called while calls are in flight.
type Decoder struct {
	zstdDecoder *zstd.Decoder
}

// NewDecoder creates a decoder with a single-goroutine zstd instance.
func NewDecoder() (*Decoder, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Decoder{zstdDecoder: dec}, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	if d.zstdDecoder != nil {
		d.zstdDecoder.Close()
	}
}

// Decompress expands data written with the given codec. uncompressedLen is
// the recorded size of the original payload; the result is exactly that
// long, and a mismatch is an error rather than a silent short read.
func (d *Decoder) Decompress(data []byte, codec Codec, uncompressedLen int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(data) != uncompressedLen {
			return nil, fmt.Errorf("uncompressed basket is %d bytes, recorded %d", len(data), uncompressedLen)
		}
		return data, nil

	case CodecZlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		defer r.Close()
		out := make([]byte, uncompressedLen)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		return out, nil

	case CodecLZ4:
		out := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != uncompressedLen {
			return nil, fmt.Errorf("lz4 basket expanded to %d bytes, recorded %d", n, uncompressedLen)
		}
		return out, nil

	case CodecZstd:
		out, err := d.zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedLen))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != uncompressedLen {
			return nil, fmt.Errorf("zstd basket expanded to %d bytes, recorded %d", len(out), uncompressedLen)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported codec: %d", uint8(codec))
	}
}

// Compress is the inverse transform, used by fixture writers and tooling.
// For CodecNone it returns the input unchanged (no copy).
func Compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil

	case CodecZlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		return buf.Bytes(), nil

	case CodecLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(data)))
		var c lz4.Compressor
		n, err := c.CompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// Incompressible input. Writers store such baskets with
			// CodecNone instead.
			return nil, fmt.Errorf("lz4 compress: incompressible input of %d bytes", len(data))
		}
		return out[:n], nil

	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd compress: %w", err)
		}
		out := enc.EncodeAll(data, nil)
		enc.Close()
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported codec: %d", uint8(codec))
	}
}
