package tables

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// WriteTable transposes one array per column into parquet rows and
// writes them out. Every array must have the same length; rows carry a
// leading entry-number column starting at entryStart. Returns the row
// count.
func WriteTable(w io.Writer, table string, cols []Column, arrays map[string]any, entryStart int64) (int64, error) {
	schema, err := buildSchema(table, cols)
	if err != nil {
		return 0, err
	}
	rows, err := buildRows(cols, arrays, entryStart)
	if err != nil {
		return 0, err
	}

	pw := parquet.NewGenericWriter[map[string]any](w, schema)
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return 0, fmt.Errorf("write %s rows: %w", table, err)
		}
	}
	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("close %s writer: %w", table, err)
	}
	return int64(len(rows)), nil
}

func buildRows(cols []Column, arrays map[string]any, entryStart int64) ([]map[string]any, error) {
	length := -1
	for _, col := range cols {
		arr, ok := arrays[col.Name]
		if !ok {
			return nil, fmt.Errorf("no array for column %q", col.Name)
		}
		n, err := arrayLen(arr)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		if length >= 0 && n != length {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, n, length)
		}
		length = n
	}
	if length < 0 {
		length = 0
	}

	rows := make([]map[string]any, length)
	for i := range rows {
		row := make(map[string]any, len(cols)+1)
		row[entryColumn] = entryStart + int64(i)
		for _, col := range cols {
			row[col.Name] = arrayIndex(arrays[col.Name], i)
		}
		rows[i] = row
	}
	return rows, nil
}

func arrayLen(arr any) (int, error) {
	switch x := arr.(type) {
	case []int8:
		return len(x), nil
	case []uint8:
		return len(x), nil
	case []int16:
		return len(x), nil
	case []uint16:
		return len(x), nil
	case []int32:
		return len(x), nil
	case []uint32:
		return len(x), nil
	case []int64:
		return len(x), nil
	case []uint64:
		return len(x), nil
	case []float32:
		return len(x), nil
	case []float64:
		return len(x), nil
	default:
		return 0, fmt.Errorf("unsupported array type %T", arr)
	}
}

func arrayIndex(arr any, i int) any {
	switch x := arr.(type) {
	case []int8:
		return x[i]
	case []uint8:
		return x[i]
	case []int16:
		return x[i]
	case []uint16:
		return x[i]
	case []int32:
		return x[i]
	case []uint32:
		return x[i]
	case []int64:
		return x[i]
	case []uint64:
		return x[i]
	case []float32:
		return x[i]
	case []float64:
		return x[i]
	default:
		return nil
	}
}
