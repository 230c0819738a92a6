package service

import (
	"context"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.WorkflowStats, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetStatistics aggregates request volumes and approved spend inside a time
// bracket. Receipt validity is counted in Go because the validation verdict
// lives inside a JSON column.
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.WorkflowStats, error) {
	response := model.WorkflowStats{
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
	}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.PurchaseRequest{}).
			Where("created_at >= ? AND created_at <= ?", startDate, endDate)
	}

	if err := base().Count(&response.TotalRequests).Error; err != nil {
		return response, err
	}
	if err := base().Where("status = ?", model.StatusPending).Count(&response.PendingRequests).Error; err != nil {
		return response, err
	}
	if err := base().Where("status = ?", model.StatusApproved).Count(&response.ApprovedRequests).Error; err != nil {
		return response, err
	}
	if err := base().Where("status = ?", model.StatusRejected).Count(&response.RejectedRequests).Error; err != nil {
		return response, err
	}

	var approvedSpend struct {
		Total   float64
		Average float64
	}
	if err := base().
		Select("COALESCE(SUM(amount), 0) as total, COALESCE(AVG(amount), 0) as average").
		Where("status = ?", model.StatusApproved).
		Scan(&approvedSpend).Error; err != nil {
		return response, err
	}
	response.TotalApprovedAmount = approvedSpend.Total
	response.AverageApprovedAmount = approvedSpend.Average

	if err := s.db.WithContext(ctx).Model(&model.PurchaseRequest{}).
		Where("po_generated_at >= ? AND po_generated_at <= ?", startDate, endDate).
		Count(&response.PurchaseOrdersGenerated).Error; err != nil {
		return response, err
	}

	// Receipt verdicts live in the receipt_validation JSON column, so the
	// valid/invalid split is tallied in Go for cross-database portability.
	var receipted []model.PurchaseRequest
	if err := base().
		Select("receipt_validation").
		Where("receipt_path <> ''").
		Find(&receipted).Error; err != nil {
		return response, err
	}
	response.ReceiptsSubmitted = int64(len(receipted))
	for _, r := range receipted {
		if r.ReceiptValidation != nil && r.ReceiptValidation.IsValid {
			response.ValidReceipts++
		}
	}

	var topRequesters []model.RequesterRanking
	if err := s.db.WithContext(ctx).Table("purchase_requests").
		Select("users.id as user_id, users.name as user_name, COUNT(purchase_requests.id) as request_count, COALESCE(SUM(purchase_requests.amount), 0) as approved_value").
		Joins("JOIN users ON users.id = purchase_requests.created_by_id").
		Where("purchase_requests.status = ? AND purchase_requests.created_at >= ? AND purchase_requests.created_at <= ?", model.StatusApproved, startDate, endDate).
		Group("users.id, users.name").
		Order("approved_value DESC").
		Limit(5).
		Scan(&topRequesters).Error; err != nil {
		return response, err
	}
	response.TopRequesters = topRequesters

	return response, nil
}
