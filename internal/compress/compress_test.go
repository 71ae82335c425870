package compress

import (
	"bytes"
	"testing"
)

func testPayload() []byte {
	// Repetitive enough that every codec can shrink it.
	payload := make([]byte, 0, 4096)
	for i := 0; i < 256; i++ {
		payload = append(payload, []byte("basket entry ")...)
		payload = append(payload, byte(i), byte(i>>4), 0)
	}
	return payload
}

func TestRoundTrip(t *testing.T) {
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	defer dec.Close()

	payload := testPayload()
	for _, codec := range []Codec{CodecNone, CodecZlib, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			compressed, err := Compress(payload, codec)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if codec != CodecNone && len(compressed) >= len(payload) {
				t.Errorf("codec %s did not shrink payload: %d >= %d", codec, len(compressed), len(payload))
			}

			out, err := dec.Decompress(compressed, codec, len(payload))
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	defer dec.Close()

	payload := testPayload()
	compressed, err := Compress(payload, CodecZlib)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if _, err := dec.Decompress(compressed, CodecZlib, len(payload)*2); err == nil {
		t.Error("expected error for wrong recorded size")
	}
}

func TestParseCodec(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZlib, CodecLZ4, CodecZstd} {
		parsed, err := ParseCodec(codec.String())
		if err != nil {
			t.Fatalf("ParseCodec(%q) failed: %v", codec.String(), err)
		}
		if parsed != codec {
			t.Errorf("ParseCodec(%q) = %v, want %v", codec.String(), parsed, codec)
		}
	}
	if _, err := ParseCodec("snappy"); err == nil {
		t.Error("expected error for unknown codec name")
	}
}
