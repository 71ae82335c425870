package tables

import (
	"bytes"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/obsrvr-basket-reader/internal/interp"
)

func TestWriteTable(t *testing.T) {
	cols := []Column{
		{Name: "i4", Dtype: interp.MustDtype(">i4")},
		{Name: "f8", Dtype: interp.MustDtype(">f8")},
	}
	arrays := map[string]any{
		"i4": []int32{10, 20, 30},
		"f8": []float64{0.5, 1.5, 2.5},
	}

	var buf bytes.Buffer
	rows, err := WriteTable(&buf, "sample", cols, arrays, 7)
	if err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if rows != 3 {
		t.Fatalf("rows = %d, want 3", rows)
	}

	pf, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if pf.NumRows() != 3 {
		t.Fatalf("parquet rows = %d, want 3", pf.NumRows())
	}
	schema := pf.Schema().String()
	for _, name := range []string{"entry", "i4", "f8"} {
		if !strings.Contains(schema, name) {
			t.Fatalf("schema %s missing column %q", schema, name)
		}
	}
}

func TestWriteTableLengthMismatch(t *testing.T) {
	cols := []Column{
		{Name: "i4", Dtype: interp.MustDtype(">i4")},
		{Name: "f8", Dtype: interp.MustDtype(">f8")},
	}
	arrays := map[string]any{
		"i4": []int32{10, 20, 30},
		"f8": []float64{0.5},
	}

	var buf bytes.Buffer
	if _, err := WriteTable(&buf, "sample", cols, arrays, 0); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestBuildRows(t *testing.T) {
	cols := []Column{{Name: "u2", Dtype: interp.MustDtype(">u2")}}
	rows, err := buildRows(cols, map[string]any{"u2": []uint16{5, 6}}, 100)
	if err != nil {
		t.Fatalf("buildRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0]["entry"] != int64(100) || rows[1]["entry"] != int64(101) {
		t.Fatalf("entry column = %v, %v", rows[0]["entry"], rows[1]["entry"])
	}
	if rows[1]["u2"] != uint16(6) {
		t.Fatalf("u2 column = %v", rows[1]["u2"])
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	data := []byte("hello baskets")
	sum := ComputeChecksum(data)
	if !strings.HasPrefix(sum, "sha256:") {
		t.Fatalf("checksum %q missing prefix", sum)
	}
	if !VerifyChecksum(data, sum) {
		t.Fatal("checksum should verify")
	}
	if VerifyChecksum([]byte("tampered"), sum) {
		t.Fatal("tampered data should not verify")
	}
}
