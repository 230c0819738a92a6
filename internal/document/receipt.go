package document

import (
	"strings"
	"time"

	"backend/internal/model"
)

// Discrepancy messages recorded for human review.
const (
	DiscrepancyVendor = "Vendor name mismatch"
	DiscrepancyTotal  = "Total amount mismatch"
)

// ValidateReceipt cross-checks extracted receipt text against the request's
// purchase order. The result is advisory: it is stored for review and never
// blocks the workflow.
//
// vendor_match: the proforma vendor appears (case-insensitively) in the text.
// PO metadata carries no vendor of its own, so the document metadata vendor
// is the reference value.
// price_match: the PO total, rendered exactly as on the PO document, appears
// verbatim in the text; the request amount stands in when no PO total exists.
// items_match: the PO declares at least one item (presence only, not
// line-level reconciliation); it never produces a discrepancy.
func ValidateReceipt(req *model.PurchaseRequest, receiptText string, now time.Time) model.ReceiptValidation {
	meta := req.DocumentMetadata
	var po *model.POMetadata
	vendor := ""
	if meta != nil {
		po = meta.PurchaseOrder
		vendor = meta.Vendor
	}

	textLower := strings.ToLower(receiptText)
	vendorMatch := vendor != "" && strings.Contains(textLower, strings.ToLower(vendor))

	total := req.Amount
	if po != nil && !po.Total.IsZero() {
		total = po.Total
	}
	priceMatch := !total.IsZero() && strings.Contains(receiptText, total.StringFixed(2))

	discrepancies := []string{}
	if !vendorMatch {
		discrepancies = append(discrepancies, DiscrepancyVendor)
	}
	if !priceMatch {
		discrepancies = append(discrepancies, DiscrepancyTotal)
	}

	return model.ReceiptValidation{
		IsValid:       len(discrepancies) == 0,
		Discrepancies: discrepancies,
		VendorMatch:   vendorMatch,
		PriceMatch:    priceMatch,
		ItemsMatch:    po != nil && len(po.Items) > 0,
		CheckedAt:     now,
	}
}
