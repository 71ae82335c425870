package rtree

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/withObsrvr/obsrvr-basket-reader/internal/compress"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/interp"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/source"
)

// twoBranchTree builds a tree with an i4 branch and an f8 branch over
// the same 10-entry axis, split into baskets of 4, 4, 2.
func twoBranchTree(t *testing.T) (*File, *Tree) {
	t.Helper()
	boundaries := []int64{0, 4, 8, 10}

	i4Values := make([]int32, 10)
	f8Values := make([]float64, 10)
	for i := range i4Values {
		i4Values[i] = int32(i * 10)
		f8Values[i] = float64(i) / 2
	}

	var blob []byte
	var i4Infos, f8Infos []BasketInfo
	for i := 0; i+1 < len(boundaries); i++ {
		plain := encodeI4(i4Values[boundaries[i]:boundaries[i+1]])
		i4Infos = append(i4Infos, BasketInfo{
			ByteStart:         int64(len(blob)),
			ByteStop:          int64(len(blob) + len(plain)),
			Codec:             compress.CodecNone,
			UncompressedBytes: len(plain),
		})
		blob = append(blob, plain...)
	}
	for i := 0; i+1 < len(boundaries); i++ {
		plain := make([]byte, 8*(boundaries[i+1]-boundaries[i]))
		for j, v := range f8Values[boundaries[i]:boundaries[i+1]] {
			binary.BigEndian.PutUint64(plain[j*8:], math.Float64bits(v))
		}
		f8Infos = append(f8Infos, BasketInfo{
			ByteStart:         int64(len(blob)),
			ByteStop:          int64(len(blob) + len(plain)),
			Codec:             compress.CodecNone,
			UncompressedBytes: len(plain),
		})
		blob = append(blob, plain...)
	}

	f, err := NewFile("sample.dat", source.NewMemSource(blob), FileOptions{})
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	tree, err := f.Tree("/sample", 1, []BranchInfo{
		{Name: "i4", TypeID: 16, Dtype: ">i4", Baskets: i4Infos, EntryOffsets: boundaries},
		{Name: "f8", TypeID: 17, Dtype: ">f8", Baskets: f8Infos, EntryOffsets: boundaries},
	})
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	return f, tree
}

func TestTreeArrays(t *testing.T) {
	_, tree := twoBranchTree(t)

	out, err := tree.Arrays(context.Background(), map[string]interp.Interpretation{
		"i4": interp.MustAsDtype(">i4"),
		"f8": interp.MustAsDtype(">f8"),
	}, ArrayOptions{EntryStart: 2, EntryStop: 9})
	if err != nil {
		t.Fatalf("Arrays: %v", err)
	}

	wantI4 := []int32{20, 30, 40, 50, 60, 70, 80}
	wantF8 := []float64{1, 1.5, 2, 2.5, 3, 3.5, 4}
	if !reflect.DeepEqual(out["i4"], wantI4) {
		t.Fatalf("i4 = %v, want %v", out["i4"], wantI4)
	}
	if !reflect.DeepEqual(out["f8"], wantF8) {
		t.Fatalf("f8 = %v, want %v", out["f8"], wantF8)
	}
}

func TestTreeArraysUnknownBranch(t *testing.T) {
	_, tree := twoBranchTree(t)

	_, err := tree.Arrays(context.Background(), map[string]interp.Interpretation{
		"nope": interp.MustAsDtype(">i4"),
	}, ArrayOptions{})
	if err == nil {
		t.Fatal("expected unknown-branch error")
	}
}

func TestTreeArraysFirstErrorAborts(t *testing.T) {
	_, tree := twoBranchTree(t)

	out, err := tree.Arrays(context.Background(), map[string]interp.Interpretation{
		"i4": interp.MustAsDtype(">i4"),
		"f8": interp.MustAsDtype(">i4"), // wrong width
	}, ArrayOptions{})
	if !errors.Is(err, ErrInterpretationMismatch) {
		t.Fatalf("err = %v, want ErrInterpretationMismatch", err)
	}
	if out != nil {
		t.Fatalf("partial results returned: %v", out)
	}
}

func TestGroupedArray(t *testing.T) {
	_, tree := twoBranchTree(t)
	branch, err := tree.Branch("i4")
	if err != nil {
		t.Fatal(err)
	}

	grouped := interp.NewAsGrouped("sample", map[string]interp.Interpretation{
		"i4": interp.MustAsDtype(">i4"),
		"f8": interp.MustAsDtype(">f8"),
	})
	got, err := branch.Array(context.Background(), grouped, ArrayOptions{
		EntryStart: 0,
		EntryStop:  4,
	})
	if err != nil {
		t.Fatalf("Array: %v", err)
	}

	columns, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("grouped result = %#v", got)
	}
	if !reflect.DeepEqual(columns["i4"], []int32{0, 10, 20, 30}) {
		t.Fatalf("i4 column = %v", columns["i4"])
	}
	if !reflect.DeepEqual(columns["f8"], []float64{0, 0.5, 1, 1.5}) {
		t.Fatalf("f8 column = %v", columns["f8"])
	}
}

func TestConcurrentArrayRequestsShareCache(t *testing.T) {
	f, tree := twoBranchTree(t)
	branch, err := tree.Branch("i4")
	if err != nil {
		t.Fatal(err)
	}

	const callers = 16
	results := make([]any, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := branch.Array(context.Background(), interp.MustAsDtype(">i4"), ArrayOptions{})
			if err != nil {
				t.Errorf("Array: %v", err)
				return
			}
			results[i] = v
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if !reflect.DeepEqual(results[0], results[i]) {
			t.Fatalf("caller %d disagrees", i)
		}
	}
	if n := f.ArrayCache().Len(); n != 1 {
		t.Fatalf("cache entries = %d, want 1", n)
	}
}
