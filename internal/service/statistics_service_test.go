package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatistics_AggregatesWindow(t *testing.T) {
	db := newTestDB(t)
	alice := seedUserRow(t, db, "Alice", model.RoleStaff)
	bob := seedUserRow(t, db, "Bob", model.RoleStaff)

	inWindow := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	seedRequestRow(t, db, alice, "Approved one", "100.00", model.StatusApproved, inWindow)
	seedRequestRow(t, db, alice, "Approved two", "300.00", model.StatusApproved, inWindow)
	seedRequestRow(t, db, bob, "Pending", "50.00", model.StatusPending, inWindow)
	seedRequestRow(t, db, bob, "Rejected", "70.00", model.StatusRejected, inWindow)
	seedRequestRow(t, db, bob, "Ancient", "999.00", model.StatusApproved, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	// one generated purchase order and two receipts, one of them valid
	poTime := time.Date(2024, 5, 12, 9, 0, 0, 0, time.UTC)
	var reqs []model.PurchaseRequest
	require.NoError(t, db.Where("status = ?", model.StatusApproved).Where("created_at >= ?", inWindow.Add(-time.Hour)).Order("title").Find(&reqs).Error)
	require.Len(t, reqs, 2)

	reqs[0].POGeneratedAt = &poTime
	reqs[0].ReceiptPath = "receipts/one.txt"
	reqs[0].ReceiptValidation = &model.ReceiptValidation{IsValid: true, Discrepancies: []string{}}
	require.NoError(t, db.Save(&reqs[0]).Error)

	reqs[1].ReceiptPath = "receipts/two.txt"
	reqs[1].ReceiptValidation = &model.ReceiptValidation{IsValid: false, Discrepancies: []string{"Vendor name mismatch"}}
	require.NoError(t, db.Save(&reqs[1]).Error)

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC)
	stats, err := NewStatisticsService(db).GetStatistics(context.Background(), start, end)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.PendingRequests)
	assert.EqualValues(t, 2, stats.ApprovedRequests)
	assert.EqualValues(t, 1, stats.RejectedRequests)
	assert.InDelta(t, 400.0, stats.TotalApprovedAmount, 0.001)
	assert.InDelta(t, 200.0, stats.AverageApprovedAmount, 0.001)
	assert.EqualValues(t, 1, stats.PurchaseOrdersGenerated)
	assert.EqualValues(t, 2, stats.ReceiptsSubmitted)
	assert.EqualValues(t, 1, stats.ValidReceipts)
	assert.True(t, stats.TimeRangeStartDate.Equal(start))
	assert.True(t, stats.TimeRangeEndDate.Equal(end))

	require.Len(t, stats.TopRequesters, 1)
	assert.Equal(t, alice.ID.String(), stats.TopRequesters[0].UserID)
	assert.Equal(t, "Alice", stats.TopRequesters[0].UserName)
	assert.EqualValues(t, 2, stats.TopRequesters[0].RequestCount)
	assert.InDelta(t, 400.0, stats.TopRequesters[0].ApprovedValue, 0.001)
}

func TestGetStatistics_EmptyWindow(t *testing.T) {
	db := newTestDB(t)

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	stats, err := NewStatisticsService(db).GetStatistics(context.Background(), start, end)
	require.NoError(t, err)

	assert.EqualValues(t, 0, stats.TotalRequests)
	assert.Zero(t, stats.TotalApprovedAmount)
	assert.Zero(t, stats.AverageApprovedAmount)
	assert.EqualValues(t, 0, stats.ReceiptsSubmitted)
	assert.Empty(t, stats.TopRequesters)
}
