package document

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "plain integer", input: "1000", want: "1000", ok: true},
		{name: "labeled amount", input: "Total: 1234.56", want: "1234.56", ok: true},
		{name: "thousands separators stripped", input: "1,234,567.89", want: "1234567.89", ok: true},
		{name: "single decimal digit not captured", input: "10.5", want: "10", ok: true},
		{name: "first number wins", input: "2 x 300.00", want: "2", ok: true},
		{name: "no number at all", input: "to be confirmed", ok: false},
		{name: "empty string", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractAmount(tt.input)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestParseProforma_LabeledDocument(t *testing.T) {
	text := "Vendor: Acme Corp\nCurrency: EUR\nTotal: 1,250.00\n\nLaptop - 1000.00\nDocking station - 250.00\n"

	meta := ParseProforma(text, "Hardware refresh", decimal.NewFromInt(1250))

	assert.Equal(t, "Acme Corp", meta.Vendor)
	assert.Equal(t, "EUR", meta.Currency)
	require.NotNil(t, meta.Total)
	assert.Equal(t, "1250.00", meta.Total.StringFixed(2))

	require.Len(t, meta.Items, 2)
	assert.Equal(t, "Laptop", meta.Items[0].Description)
	assert.Equal(t, "1000.00", meta.Items[0].Price.StringFixed(2))
	assert.Equal(t, "Docking station", meta.Items[1].Description)
	assert.Equal(t, "250.00", meta.Items[1].Price.StringFixed(2))

	assert.Equal(t, text, meta.TextPreview)
}

func TestParseProforma_FallsBackWhenUnstructured(t *testing.T) {
	meta := ParseProforma("scanned noise with no labels", "Office chairs", decimal.RequireFromString("499.99"))

	assert.Equal(t, DefaultVendor, meta.Vendor)
	assert.Equal(t, DefaultCurrency, meta.Currency)
	require.NotNil(t, meta.Total)
	assert.Equal(t, "499.99", meta.Total.StringFixed(2))

	require.Len(t, meta.Items, 1)
	assert.Equal(t, "Office chairs", meta.Items[0].Description)
	assert.Equal(t, "499.99", meta.Items[0].Price.StringFixed(2))
}

func TestParseProforma_FirstTotalLineWins(t *testing.T) {
	meta := ParseProforma("Subtotal: 900.00\nTotal: 990.00", "order", decimal.NewFromInt(1))

	require.NotNil(t, meta.Total)
	assert.Equal(t, "900.00", meta.Total.StringFixed(2))
}

func TestParseProforma_TotalLineWithoutNumberUsesFallback(t *testing.T) {
	meta := ParseProforma("Total: TBD\nWidget - 25.00", "Widget order", decimal.NewFromInt(30))

	require.NotNil(t, meta.Total)
	assert.Equal(t, "30.00", meta.Total.StringFixed(2))
	require.Len(t, meta.Items, 1)
	assert.Equal(t, "Widget", meta.Items[0].Description)
}

func TestParseProforma_SkipsNonPositiveItemLines(t *testing.T) {
	meta := ParseProforma("Discount - 0.00\nWidget - 25.00", "order", decimal.NewFromInt(25))

	require.Len(t, meta.Items, 1)
	assert.Equal(t, "Widget", meta.Items[0].Description)
}

func TestParseProforma_PreviewTruncated(t *testing.T) {
	meta := ParseProforma(strings.Repeat("a", 600), "order", decimal.NewFromInt(1))

	assert.Len(t, meta.TextPreview, 500)
}

func TestMergeEnrichment_KeepsOnlyNovelKeys(t *testing.T) {
	meta := ParseProforma("Vendor: Acme Corp", "order", decimal.NewFromInt(10))

	MergeEnrichment(meta, map[string]interface{}{
		"vendor":        "Someone Else",
		"total":         "9999",
		"items":         []interface{}{},
		"payment_terms": "NET 30",
		"po_box":        "1234",
	})

	assert.Equal(t, "Acme Corp", meta.Vendor)
	require.NotNil(t, meta.Enriched)
	assert.Equal(t, "NET 30", meta.Enriched["payment_terms"])
	assert.Equal(t, "1234", meta.Enriched["po_box"])
	assert.NotContains(t, meta.Enriched, "vendor")
	assert.NotContains(t, meta.Enriched, "total")
	assert.NotContains(t, meta.Enriched, "items")
}

func TestMergeEnrichment_NoNovelKeysLeavesEnrichedNil(t *testing.T) {
	meta := ParseProforma("", "order", decimal.NewFromInt(10))

	MergeEnrichment(meta, map[string]interface{}{"vendor": "x", "currency": "EUR"})

	assert.Nil(t, meta.Enriched)
}

func TestMergeEnrichment_NilSafe(t *testing.T) {
	MergeEnrichment(nil, map[string]interface{}{"vendor": "x"})

	meta := ParseProforma("", "order", decimal.NewFromInt(10))
	MergeEnrichment(meta, nil)
	assert.Nil(t, meta.Enriched)
}
