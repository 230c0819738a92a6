// Package document holds the pure workflow logic around proforma parsing,
// purchase order generation and receipt validation. Nothing here touches the
// database or the filesystem; services orchestrate the side effects.
package document

import (
	"regexp"
	"strings"
	"unicode"

	"backend/internal/model"

	"github.com/shopspring/decimal"
)

const (
	DefaultVendor   = "Unknown Vendor"
	DefaultCurrency = "USD"

	// previewLen caps how much raw text is retained for audit/debug.
	previewLen = 500
)

// currencyRe matches the first currency-like number in a string. Decimals are
// only captured when exactly two digits follow the point, so "10.5" parses
// as 10.
var currencyRe = regexp.MustCompile(`[0-9]+(?:\.[0-9]{2})?`)

// ExtractAmount pulls the first currency-like number out of a string,
// ignoring thousands separators.
func ExtractAmount(value string) (decimal.Decimal, bool) {
	match := currencyRe.FindString(strings.ReplaceAll(value, ",", ""))
	if match == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseProforma turns raw proforma text into structured metadata. Labels are
// matched case-insensitively per line; every field has a deterministic
// fallback so the result is always complete:
//   - vendor: first "vendor" label line, else "Unknown Vendor"
//   - currency: first "currency" label line, else "USD"
//   - total: first number on the first line containing "total", else the
//     request's stated amount
//   - items: lines containing a hyphen and a digit parsed as
//     "description - price"; if none yields a positive amount, one synthetic
//     item from the request title/amount
func ParseProforma(text, fallbackTitle string, fallbackAmount decimal.Decimal) *model.ProformaMetadata {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, line)
		}
	}

	vendor := labelValue(lines, "vendor")
	if vendor == "" {
		vendor = DefaultVendor
	}
	currency := labelValue(lines, "currency")
	if currency == "" {
		currency = DefaultCurrency
	}

	var total *decimal.Decimal
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line), "total") {
			if d, ok := ExtractAmount(line); ok {
				total = &d
			}
			break
		}
	}
	if total == nil {
		if d, ok := ExtractAmount(fallbackAmount.String()); ok {
			total = &d
		}
	}

	var items []model.LineItem
	for _, line := range lines {
		if !strings.Contains(line, "-") || !containsDigit(line) {
			continue
		}
		amount, ok := ExtractAmount(line)
		if !ok || !amount.IsPositive() {
			continue
		}
		description := strings.TrimSpace(strings.Split(line, "-")[0])
		items = append(items, model.LineItem{Description: description, Price: amount})
	}
	if len(items) == 0 {
		items = []model.LineItem{{Description: fallbackTitle, Price: fallbackAmount}}
	}

	preview := text
	if runes := []rune(text); len(runes) > previewLen {
		preview = string(runes[:previewLen])
	}

	return &model.ProformaMetadata{
		Vendor:      vendor,
		Currency:    currency,
		Total:       total,
		Items:       items,
		TextPreview: preview,
	}
}

// MergeEnrichment folds model-extracted keys into parsed metadata. The local
// parser produces every named field, so those keys are discarded outright;
// only novel keys are kept. Enrichment can add, never override.
func MergeEnrichment(meta *model.ProformaMetadata, enriched map[string]interface{}) {
	if meta == nil || len(enriched) == 0 {
		return
	}
	for k, v := range enriched {
		switch k {
		case "vendor", "currency", "total", "items", "text_preview":
			continue
		}
		if meta.Enriched == nil {
			meta.Enriched = make(map[string]interface{})
		}
		meta.Enriched[k] = v
	}
}

// labelValue returns the text after the colon of the first line whose
// lowercase form starts with the label. Lines without a colon are ignored.
func labelValue(lines []string, label string) string {
	for _, line := range lines {
		if !strings.HasPrefix(strings.ToLower(line), label) {
			continue
		}
		if parts := strings.Split(line, ":"); len(parts) > 1 {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return ""
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
