// Package spreadsheet defines the raw import row format and its
// normalization into ledger transactions.
package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"budgetbook/internal/core"
)

// Row is one raw spreadsheet row. All cells arrive as strings; numeric
// cells (serial dates, plain decimal amounts) are carried in their decimal
// string form.
type Row struct {
	Date         string `json:"date"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	Category     string `json:"category"`
	CategoryIcon string `json:"categoryIcon"`
	Type         string `json:"type"`
}

// Spreadsheets count days from their own epoch; serial 25569 is the Unix
// epoch (1970-01-01).
const unixEpochSerial = 25569

// SerialToDate converts a spreadsheet serial day number to a UTC day.
func SerialToDate(serial float64) core.Date {
	secs := int64(math.Round((serial - unixEpochSerial) * 86400))
	return core.DateOf(time.Unix(secs, 0))
}

// dateLayouts accepted for textual date cells, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"01/02/2006",
}

// ParseRowDate resolves a date cell: a parseable date string wins, a bare
// number is treated as a spreadsheet serial day count.
func ParseRowDate(cell string) (core.Date, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return core.Date{}, core.ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		return SerialToDate(serial), nil
	}
	return core.Date{}, core.ErrInvalidDate
}

// parseRowAmount coerces an amount cell to cents. Decimal strings with dot
// or comma separators are accepted, as are plain float renderings of
// numeric cells.
func parseRowAmount(cell string) (int64, error) {
	if cents, err := core.ParseDecimalToCents(cell); err == nil {
		return cents, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, core.ErrInvalidAmount
	}
	return core.FloatToCents(f)
}

// Normalize converts a raw row into a validated ledger transaction for the
// given owner: date resolution (textual or serial), amount coercion to
// cents, type lower-casing, default icon fill-in.
func (r Row) Normalize(userID string) (core.Transaction, error) {
	date, err := ParseRowDate(r.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("date %q: %w", r.Date, err)
	}

	cents, err := parseRowAmount(r.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", r.Amount, err)
	}

	icon := strings.TrimSpace(r.CategoryIcon)
	if icon == "" {
		icon = core.DefaultCategoryIcon
	}

	t := core.Transaction{
		UserID:       userID,
		Date:         date,
		Description:  strings.TrimSpace(r.Description),
		Amount:       core.Money{Cents: cents},
		Type:         core.TransactionType(strings.ToLower(strings.TrimSpace(r.Type))),
		Category:     strings.TrimSpace(r.Category),
		CategoryIcon: icon,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}
