// Package tables renders materialized branch arrays as parquet tables.
package tables

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/obsrvr-basket-reader/internal/interp"
)

// Column pairs a branch name with its data type.
type Column struct {
	Name  string
	Dtype interp.Dtype
}

// entryColumn is the implicit leading column carrying the global entry
// number of each row.
const entryColumn = "entry"

// buildSchema assembles a parquet schema at runtime from the requested
// columns, prefixed by the entry-number column.
func buildSchema(table string, cols []Column) (*parquet.Schema, error) {
	group := parquet.Group{
		entryColumn: parquet.Int(64),
	}
	for _, col := range cols {
		if col.Name == entryColumn {
			return nil, fmt.Errorf("column name %q is reserved", entryColumn)
		}
		node, err := leafNode(col.Dtype)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		group[col.Name] = node
	}
	return parquet.NewSchema(table, group), nil
}

func leafNode(d interp.Dtype) (parquet.Node, error) {
	switch d.Kind {
	case 'i':
		return parquet.Int(d.Size * 8), nil
	case 'u':
		return parquet.Uint(d.Size * 8), nil
	case 'f':
		switch d.Size {
		case 4:
			return parquet.Leaf(parquet.FloatType), nil
		case 8:
			return parquet.Leaf(parquet.DoubleType), nil
		}
	}
	return nil, fmt.Errorf("no parquet mapping for dtype %s", d)
}
