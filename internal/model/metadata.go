package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is a single priced line parsed from a proforma or carried on a
// purchase order.
type LineItem struct {
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// ProformaMetadata is the structured result of proforma text extraction.
// Locally parsed fields always win over LLM enrichment; Enriched carries only
// keys the local parser does not produce, so enrichment stays additive.
type ProformaMetadata struct {
	Vendor      string           `json:"vendor"`
	Currency    string           `json:"currency"`
	Total       *decimal.Decimal `json:"total"`
	Items       []LineItem       `json:"items"`
	TextPreview string           `json:"text_preview"`

	Enriched map[string]interface{} `json:"enriched,omitempty"`

	// PurchaseOrder is set once, when the request transitions to approved.
	PurchaseOrder *POMetadata `json:"purchase_order,omitempty"`
}

// POMetadata describes a generated purchase order artifact.
type POMetadata struct {
	PONumber    string          `json:"po_number"`
	GeneratedAt time.Time       `json:"generated_at"`
	Items       []LineItem      `json:"items"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
}

// ReceiptValidation is the advisory result of cross-checking a submitted
// receipt against the purchase order. It never blocks the workflow; it is
// recorded for human review.
type ReceiptValidation struct {
	IsValid       bool      `json:"is_valid"`
	Discrepancies []string  `json:"discrepancies"`
	VendorMatch   bool      `json:"vendor_match"`
	PriceMatch    bool      `json:"price_match"`
	ItemsMatch    bool      `json:"items_match"`
	CheckedAt     time.Time `json:"checked_at"`
}
