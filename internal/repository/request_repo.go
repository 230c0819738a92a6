package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RequestRepository interface {
	Create(ctx context.Context, req *model.PurchaseRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	// FindByIDForUpdate loads the request under a row lock so concurrent
	// approve/reject/receipt flows serialize on it. Must run inside a
	// transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	List(ctx context.Context, ownerID *uuid.UUID, status string, page, limit int) ([]model.PurchaseRequest, int64, error)
	ListBetween(ctx context.Context, ownerID *uuid.UUID, from, to *time.Time) ([]model.PurchaseRequest, error)
	Save(ctx context.Context, req *model.PurchaseRequest) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := withRelations(GetDB(ctx, r.db)).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	db := GetDB(ctx, r.db)
	// sqlite (used in tests) has no SELECT FOR UPDATE; its single-writer
	// transactions already serialize.
	if db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var req model.PurchaseRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) List(ctx context.Context, ownerID *uuid.UUID, status string, page, limit int) ([]model.PurchaseRequest, int64, error) {
	var requests []model.PurchaseRequest
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.PurchaseRequest{})
	if ownerID != nil {
		query = query.Where("created_by_id = ?", *ownerID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetchQuery := withRelations(db)
	if ownerID != nil {
		fetchQuery = fetchQuery.Where("created_by_id = ?", *ownerID)
	}
	if status != "" {
		fetchQuery = fetchQuery.Where("status = ?", status)
	}
	if err := fetchQuery.Order("created_at desc").Offset(offset).Limit(limit).Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *requestRepository) ListBetween(ctx context.Context, ownerID *uuid.UUID, from, to *time.Time) ([]model.PurchaseRequest, error) {
	var requests []model.PurchaseRequest
	query := withRelations(GetDB(ctx, r.db))
	if ownerID != nil {
		query = query.Where("created_by_id = ?", *ownerID)
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}
	if err := query.Order("created_at desc").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) Save(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Save(req).Error
}

func (r *requestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.PurchaseRequest{}).Error
}

// withRelations preloads everything a request representation renders:
// requester, and the approval chain in display order with approver names.
func withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("CreatedBy").
		Preload("Approvals", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("approver_level asc, created_at asc")
		}).
		Preload("Approvals.Approver")
}
