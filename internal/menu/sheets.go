package menu

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

// Sheet layout, one item per row after the header:
//
//	A: sku  B: name  C: category  D: price  E: cost  F: in stock (TRUE/FALSE)
//
// A row holding only column A starts a category block; items below it with
// an empty category column inherit it.
const (
	colSKU = iota
	colName
	colCategory
	colPrice
	colCost
	colInStock
)

// ValuesFetcher reads a cell range from a spreadsheet.
type ValuesFetcher interface {
	Values(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
}

type sheetsFetcher struct {
	service *sheets.Service
}

// NewSheetsFetcher builds a fetcher backed by the Google Sheets API. Empty
// credentials fall back to application default credentials.
func NewSheetsFetcher(ctx context.Context, credentialsJSON string) (ValuesFetcher, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &sheetsFetcher{service: svc}, nil
}

func (f *sheetsFetcher) Values(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := f.service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	return resp.Values, nil
}

// RowError describes a sheet row that could not be imported.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a spreadsheet import.
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped []RowError `json:"skipped"`
}

// SheetsImporter upserts menu items from a spreadsheet range.
type SheetsImporter struct {
	fetcher      ValuesFetcher
	menu         Service
	defaultRange string
	logg         *logger.Logger
}

func NewSheetsImporter(fetcher ValuesFetcher, menu Service, defaultRange string, logg *logger.Logger) (*SheetsImporter, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("sheets fetcher required")
	}
	if menu == nil {
		return nil, fmt.Errorf("menu service required")
	}
	if strings.TrimSpace(defaultRange) == "" {
		defaultRange = "A:F"
	}
	return &SheetsImporter{fetcher: fetcher, menu: menu, defaultRange: defaultRange, logg: logg}, nil
}

// Import reads the sheet and upserts every valid row in one batch. Rows that
// fail to parse are reported and skipped.
func (i *SheetsImporter) Import(ctx context.Context, spreadsheetID, readRange string, actor *Actor) (*ImportResult, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "spreadsheet id is required")
	}
	if strings.TrimSpace(readRange) == "" {
		readRange = i.defaultRange
	}

	rows, err := i.fetcher.Values(ctx, spreadsheetID, readRange)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch menu sheet")
	}
	if len(rows) <= 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no data found in spreadsheet")
	}

	inputs, skipped := ParseRows(rows)
	result := &ImportResult{Skipped: skipped}
	if len(inputs) == 0 {
		return result, nil
	}

	upserted, err := i.menu.UpsertMany(ctx, inputs, actor)
	if err != nil {
		return nil, err
	}
	for _, item := range upserted {
		if item.Created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	if i.logg != nil {
		i.logg.Info(i.logg.WithFields(ctx, map[string]any{
			"spreadsheet_id": spreadsheetID,
			"created":        result.Created,
			"updated":        result.Updated,
			"skipped":        len(result.Skipped),
		}), "menu sheet imported")
	}
	return result, nil
}

// ParseRows converts raw sheet values into upsert inputs. The first row is
// the header. Row numbers in the returned errors are 1-based like the sheet.
func ParseRows(rows [][]any) ([]UpsertInput, []RowError) {
	var (
		inputs   []UpsertInput
		skipped  []RowError
		category string
		seen     = map[string]int{}
		order    int
	)
	for idx := 1; idx < len(rows); idx++ {
		row := rows[idx]
		sheetRow := idx + 1
		if blankRow(row) {
			continue
		}
		if isCategoryRow(row) {
			category = cell(row, colSKU)
			order = 0
			continue
		}

		input := UpsertInput{
			SKU:      cell(row, colSKU),
			Name:     cell(row, colName),
			Category: cell(row, colCategory),
		}
		if input.Category == "" {
			input.Category = category
		}
		if input.SKU == "" || input.Name == "" {
			skipped = append(skipped, RowError{Row: sheetRow, Reason: "sku and name are required"})
			continue
		}
		key := strings.ToUpper(input.SKU)
		if first, dup := seen[key]; dup {
			skipped = append(skipped, RowError{Row: sheetRow, Reason: fmt.Sprintf("duplicate sku, first seen on row %d", first)})
			continue
		}

		price, err := ParseAmount(cell(row, colPrice))
		if err != nil {
			skipped = append(skipped, RowError{Row: sheetRow, Reason: "invalid price"})
			continue
		}
		input.Price = price
		if raw := cell(row, colCost); raw != "" {
			cost, err := ParseAmount(raw)
			if err != nil {
				skipped = append(skipped, RowError{Row: sheetRow, Reason: "invalid cost"})
				continue
			}
			input.Cost = cost
		}
		if raw := cell(row, colInStock); raw != "" {
			inStock, err := parseFlag(raw)
			if err != nil {
				skipped = append(skipped, RowError{Row: sheetRow, Reason: "invalid in stock flag"})
				continue
			}
			input.InStock = &inStock
		}

		input.SortOrder = order
		order++
		seen[key] = sheetRow
		inputs = append(inputs, input)
	}
	return inputs, skipped
}

// ParseAmount reads a VND amount such as "45.000", "45,000 ₫" or "45000".
// VND has no minor unit so both separators are treated as grouping.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer(".", "", ",", "", " ", "", "₫", "", "đ", "", "VND", "", "vnd", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount")
	}
	return amount, nil
}

func parseFlag(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "có", "co", "yes", "y", "x":
		return true, nil
	case "không", "khong", "no", "n":
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func cell(row []any, col int) string {
	if col >= len(row) || row[col] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[col]))
}

func blankRow(row []any) bool {
	for col := range row {
		if cell(row, col) != "" {
			return false
		}
	}
	return true
}

func isCategoryRow(row []any) bool {
	if cell(row, colSKU) == "" {
		return false
	}
	for col := colName; col < len(row); col++ {
		if cell(row, col) != "" {
			return false
		}
	}
	return true
}
