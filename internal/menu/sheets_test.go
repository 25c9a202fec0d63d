package menu

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
)

type stubFetcher struct {
	rows     [][]any
	err      error
	gotID    string
	gotRange string
}

func (f *stubFetcher) Values(_ context.Context, spreadsheetID, readRange string) ([][]any, error) {
	f.gotID = spreadsheetID
	f.gotRange = readRange
	return f.rows, f.err
}

func menuSheet() [][]any {
	return [][]any{
		{"SKU", "Tên", "Nhóm", "Giá", "Giá vốn", "Còn hàng"},
		{"Đồ uống"},
		{"TS-01", "Trà Sữa", "", "45.000", "15.000", "TRUE"},
		{"TD-01", "Trà Đào", "", "40,000 ₫", "", "không"},
		{},
		{"Đồ ăn"},
		{"BM-01", "Bánh Mì", "", 25000, 10000},
		{"BM-02", "", "", "30000"},
		{"BM-03", "Bánh Mì Pate", "", "ba mươi"},
		{"ts-01", "Trà Sữa Lặp", "", "45000"},
	}
}

func TestParseRows(t *testing.T) {
	inputs, skipped := ParseRows(menuSheet())
	require.Len(t, inputs, 3)

	assert.Equal(t, "TS-01", inputs[0].SKU)
	assert.Equal(t, "Đồ uống", inputs[0].Category)
	assert.True(t, inputs[0].Price.Equal(decimal.NewFromInt(45000)))
	assert.True(t, inputs[0].Cost.Equal(decimal.NewFromInt(15000)))
	require.NotNil(t, inputs[0].InStock)
	assert.True(t, *inputs[0].InStock)
	assert.Equal(t, 0, inputs[0].SortOrder)

	assert.True(t, inputs[1].Price.Equal(decimal.NewFromInt(40000)))
	require.NotNil(t, inputs[1].InStock)
	assert.False(t, *inputs[1].InStock)
	assert.Equal(t, 1, inputs[1].SortOrder)

	assert.Equal(t, "Đồ ăn", inputs[2].Category)
	assert.Nil(t, inputs[2].InStock)
	assert.Equal(t, 0, inputs[2].SortOrder)

	require.Len(t, skipped, 3)
	assert.Equal(t, 8, skipped[0].Row)
	assert.Equal(t, 9, skipped[1].Row)
	assert.Equal(t, "invalid price", skipped[1].Reason)
	assert.Equal(t, 10, skipped[2].Row)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]int64{
		"45.000":    45000,
		"45,000 ₫":  45000,
		"1.250.000": 1250000,
		"30000 VND": 30000,
		"0":         0,
	}
	for raw, want := range cases {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), "%s parsed as %s", raw, got)
	}
	for _, raw := range []string{"", "abc", "-5000"} {
		_, err := ParseAmount(raw)
		assert.Error(t, err, raw)
	}
}

func TestSheetsImporterUpsertsRows(t *testing.T) {
	svc, db, emitter := newTestService(t)
	seedItem(t, db, "TS-01", "Trà Sữa Cũ", "drinks", 39000, false)
	fetcher := &stubFetcher{rows: menuSheet()}
	importer, err := NewSheetsImporter(fetcher, svc, "", nil)
	require.NoError(t, err)

	result, err := importer.Import(context.Background(), "sheet-123", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "sheet-123", fetcher.gotID)
	assert.Equal(t, "A:F", fetcher.gotRange)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Len(t, result.Skipped, 3)
	assert.Len(t, emitter.events, 3)

	var stored models.MenuItem
	require.NoError(t, db.First(&stored, "sku = ?", "TS-01").Error)
	assert.Equal(t, "Trà Sữa", stored.Name)
	assert.True(t, stored.Price.Equal(decimal.NewFromInt(45000)))

	var soldOut models.MenuItem
	require.NoError(t, db.First(&soldOut, "sku = ?", "TD-01").Error)
	assert.False(t, soldOut.InStock)
}

func TestSheetsImporterErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := NewSheetsImporter(nil, svc, "", nil)
	require.Error(t, err)

	importer, err := NewSheetsImporter(&stubFetcher{err: errors.New("quota")}, svc, "A:F", nil)
	require.NoError(t, err)
	_, err = importer.Import(ctx, "sheet", "", nil)
	requireCode(t, err, pkgerrors.CodeDependency)

	_, err = importer.Import(ctx, " ", "", nil)
	requireCode(t, err, pkgerrors.CodeValidation)

	empty, err := NewSheetsImporter(&stubFetcher{rows: [][]any{{"SKU"}}}, svc, "A:F", nil)
	require.NoError(t, err)
	_, err = empty.Import(ctx, "sheet", "", nil)
	requireCode(t, err, pkgerrors.CodeValidation)
}
