package spreadsheet

import "context"

// RowSource yields raw transaction rows from an external spreadsheet.
// The core only ever consumes rows; how the cells were parsed out of a
// workbook is the source's business.
type RowSource interface {
	ReadRows(ctx context.Context) ([]Row, error)
}
