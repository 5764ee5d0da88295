package format

import "github.com/querydeck/querydeck/internal/engine"

// DefaultPreviewRows caps how many result rows the workbench renders.
const DefaultPreviewRows = 200

type PreviewTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Preview formats at most limit rows of a materialized result. Rows past the
// cap are never touched.
func Preview(table engine.Table, limit int) PreviewTable {
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	count := table.RowCount()
	if count > limit {
		count = limit
	}

	rows := make([][]string, 0, count)
	for r := 0; r < count; r++ {
		row := make([]string, len(table.Columns))
		for c := range table.Columns {
			row[c] = Cell(table.Value(r, c))
		}
		rows = append(rows, row)
	}
	return PreviewTable{Columns: append([]string(nil), table.Columns...), Rows: rows}
}
