package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApprovalRepository interface {
	// Upsert writes the approval keyed by (request, approver, level),
	// overwriting status and comment if the row already exists.
	Upsert(ctx context.Context, approval *model.Approval) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error)
	ApprovedLevels(ctx context.Context, requestID uuid.UUID) ([]int, error)
	HasApprovedLevel(ctx context.Context, requestID uuid.UUID, level int) (bool, error)
	DeleteByRequest(ctx context.Context, requestID uuid.UUID) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Upsert(ctx context.Context, approval *model.Approval) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "request_id"},
			{Name: "approver_id"},
			{Name: "approver_level"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"status", "comment", "updated_at"}),
	}).Create(approval).Error
}

func (r *approvalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := GetDB(ctx, r.db).
		Preload("Approver").
		Where("request_id = ?", requestID).
		Order("approver_level asc, created_at asc").
		Find(&approvals).Error; err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *approvalRepository) ApprovedLevels(ctx context.Context, requestID uuid.UUID) ([]int, error) {
	var levels []int
	if err := GetDB(ctx, r.db).
		Model(&model.Approval{}).
		Distinct("approver_level").
		Where("request_id = ? AND status = ?", requestID, model.StatusApproved).
		Pluck("approver_level", &levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

func (r *approvalRepository) HasApprovedLevel(ctx context.Context, requestID uuid.UUID, level int) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).
		Model(&model.Approval{}).
		Where("request_id = ? AND approver_level = ? AND status = ?", requestID, level, model.StatusApproved).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *approvalRepository) DeleteByRequest(ctx context.Context, requestID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("request_id = ?", requestID).Delete(&model.Approval{}).Error
}
