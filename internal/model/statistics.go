package model

import (
	"time"
)

// WorkflowStats aggregates request volumes and approved spend for a time
// window. Amounts are informational aggregates, reported as floats.
type WorkflowStats struct {
	TotalRequests         int64   `json:"total_requests"`
	PendingRequests       int64   `json:"pending_requests"`
	ApprovedRequests      int64   `json:"approved_requests"`
	RejectedRequests      int64   `json:"rejected_requests"`
	TotalApprovedAmount   float64 `json:"total_approved_amount"`
	AverageApprovedAmount float64 `json:"average_approved_amount"`

	PurchaseOrdersGenerated int64 `json:"purchase_orders_generated"`
	ReceiptsSubmitted       int64 `json:"receipts_submitted"`
	ValidReceipts           int64 `json:"valid_receipts"`

	TopRequesters []RequesterRanking `json:"top_requesters"`

	TimeRangeStartDate time.Time `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time `json:"time_range_end_date"`
}

// RequesterRanking ranks an owner by approved spend within the window.
type RequesterRanking struct {
	UserID        string  `json:"user_id"`
	UserName      string  `json:"user_name"`
	RequestCount  int64   `json:"request_count"`
	ApprovedValue float64 `json:"approved_value"`
}
