// Package memory provides an in-memory row source for tests and local
// development without a spreadsheet backend.
package memory

import (
	"context"

	"budgetbook/internal/spreadsheet"
)

type Source struct {
	rows []spreadsheet.Row
}

var _ spreadsheet.RowSource = (*Source)(nil)

// New wraps a fixed set of rows as a RowSource.
func New(rows []spreadsheet.Row) *Source {
	return &Source{rows: rows}
}

func (s *Source) ReadRows(_ context.Context) ([]spreadsheet.Row, error) {
	out := make([]spreadsheet.Row, len(s.rows))
	copy(out, s.rows)
	return out, nil
}
