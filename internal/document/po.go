package document

import (
	"fmt"
	"strings"
	"time"

	"backend/internal/model"
)

// PONumber derives the deterministic purchase order number for a request:
// PO-YYYYMMDD-XXXXXXXX, where the suffix is the first 8 characters of the
// request id, uppercased.
func PONumber(requestID string, now time.Time) string {
	suffix := requestID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("PO-%s-%s", now.Format("20060102"), strings.ToUpper(suffix))
}

// GeneratePurchaseOrder builds the purchase order for a request transitioning
// to approved. It returns the structured PO metadata and the rendered text
// artifact; the caller stores the artifact and merges the metadata. Items and
// total fall back to the request's description/amount when the proforma
// metadata carries none.
func GeneratePurchaseOrder(req *model.PurchaseRequest, meta *model.ProformaMetadata, now time.Time) (model.POMetadata, string) {
	poNumber := PONumber(req.ID.String(), now)

	items := []model.LineItem{}
	vendor := DefaultVendor
	currency := DefaultCurrency
	total := req.Amount

	if meta != nil {
		items = meta.Items
		if meta.Vendor != "" {
			vendor = meta.Vendor
		}
		if meta.Currency != "" {
			currency = meta.Currency
		}
		if meta.Total != nil && !meta.Total.IsZero() {
			total = *meta.Total
		}
	}
	if len(items) == 0 {
		items = []model.LineItem{{Description: req.Description, Price: req.Amount}}
	}

	lines := []string{
		"Purchase Order: " + poNumber,
		"Generated: " + now.Format(time.RFC3339),
		"Vendor: " + vendor,
		"",
		"Items:",
	}
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("- %s: %s", item.Description, item.Price.StringFixed(2)))
	}
	lines = append(lines, "", fmt.Sprintf("Total (%s): %s", currency, total.StringFixed(2)))

	po := model.POMetadata{
		PONumber:    poNumber,
		GeneratedAt: now,
		Items:       items,
		Total:       total,
		Currency:    currency,
	}
	return po, strings.Join(lines, "\n")
}
