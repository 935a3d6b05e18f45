// Package google reads import rows from a Google spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetbook/internal/spreadsheet"
)

// Client reads one sheet range as raw import rows. Values are fetched
// unformatted so date cells arrive as serial day numbers and amounts as
// plain decimals, exactly what spreadsheet.Row carries.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	readRange     string
}

var _ spreadsheet.RowSource = (*Client)(nil)

// New creates a Sheets-backed row source. Credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or Application
// Default Credentials, in that order.
func New(ctx context.Context, spreadsheetID, readRange string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(readRange) == "" {
		readRange = "Transactions!A:F"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if json := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); json != "" {
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON([]byte(json)),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	}
	if file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")); file != "" {
		return gsheet.NewService(ctx,
			goption.WithCredentialsFile(file),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	}
	// Fall back to Application Default Credentials
	return gsheet.NewService(ctx, goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
}

// ReadRows fetches the configured range and maps it to rows. The first row
// must be a header naming the columns (date, description, amount, category,
// categoryIcon, type in any order, case-insensitive).
func (c *Client) ReadRows(ctx context.Context) ([]spreadsheet.Row, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get values %s: %w", c.readRange, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	cols, err := headerIndex(resp.Values[0])
	if err != nil {
		return nil, err
	}

	rows := make([]spreadsheet.Row, 0, len(resp.Values)-1)
	for _, raw := range resp.Values[1:] {
		rows = append(rows, spreadsheet.Row{
			Date:         cellString(raw, cols["date"]),
			Description:  cellString(raw, cols["description"]),
			Amount:       cellString(raw, cols["amount"]),
			Category:     cellString(raw, cols["category"]),
			CategoryIcon: cellString(raw, cols["categoryicon"]),
			Type:         cellString(raw, cols["type"]),
		})
	}
	return rows, nil
}

func headerIndex(header []interface{}) (map[string]int, error) {
	cols := map[string]int{
		"date": -1, "description": -1, "amount": -1,
		"category": -1, "categoryicon": -1, "type": -1,
	}
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(fmt.Sprint(cell)))
		if _, known := cols[name]; known {
			cols[name] = i
		}
	}
	var missing []string
	for _, required := range []string{"date", "amount", "category", "type"} {
		if cols[required] == -1 {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected import header: missing %s", strings.Join(missing, ","))
	}
	return cols, nil
}

// cellString renders a cell to its decimal string form; numeric cells keep
// full precision so serial dates survive the round trip.
func cellString(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
