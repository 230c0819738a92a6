package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"backend/internal/database"
	"backend/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		ID:    uuid.New(),
		Email: uuid.NewString() + "@example.com",
		Name:  "Test User",
		Role:  role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedRequest(t *testing.T, db *gorm.DB, owner *model.User, status string) *model.PurchaseRequest {
	t.Helper()
	req := &model.PurchaseRequest{
		Title:       "Test purchase",
		Description: "seeded",
		Amount:      decimal.RequireFromString("100.00"),
		Status:      status,
		CreatedByID: owner.ID,
	}
	require.NoError(t, db.Create(req).Error)
	return req
}

func TestApprovalUpsert_OverwritesSameKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewApprovalRepository(db)

	owner := seedUser(t, db, model.RoleStaff)
	approver := seedUser(t, db, model.RoleApproverL1)
	req := seedRequest(t, db, owner, model.StatusPending)

	require.NoError(t, repo.Upsert(ctx, &model.Approval{
		RequestID:     req.ID,
		ApproverID:    approver.ID,
		ApproverLevel: 1,
		Status:        model.StatusApproved,
		Comment:       "looks good",
	}))
	require.NoError(t, repo.Upsert(ctx, &model.Approval{
		RequestID:     req.ID,
		ApproverID:    approver.ID,
		ApproverLevel: 1,
		Status:        model.StatusRejected,
		Comment:       "changed my mind",
	}))

	approvals, err := repo.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, model.StatusRejected, approvals[0].Status)
	assert.Equal(t, "changed my mind", approvals[0].Comment)
	require.NotNil(t, approvals[0].Approver)
	assert.Equal(t, approver.ID, approvals[0].Approver.ID)
}

func TestApprovedLevels(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewApprovalRepository(db)

	owner := seedUser(t, db, model.RoleStaff)
	req := seedRequest(t, db, owner, model.StatusPending)

	levels, err := repo.ApprovedLevels(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, levels)

	// two distinct level-1 approvers still count as one level
	for i := 0; i < 2; i++ {
		approver := seedUser(t, db, model.RoleApproverL1)
		require.NoError(t, repo.Upsert(ctx, &model.Approval{
			RequestID:     req.ID,
			ApproverID:    approver.ID,
			ApproverLevel: 1,
			Status:        model.StatusApproved,
		}))
	}
	levels, err = repo.ApprovedLevels(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, levels)

	l2 := seedUser(t, db, model.RoleApproverL2)
	require.NoError(t, repo.Upsert(ctx, &model.Approval{
		RequestID:     req.ID,
		ApproverID:    l2.ID,
		ApproverLevel: 2,
		Status:        model.StatusApproved,
	}))
	levels, err = repo.ApprovedLevels(ctx, req.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, levels)
}

func TestHasApprovedLevel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewApprovalRepository(db)

	owner := seedUser(t, db, model.RoleStaff)
	approver := seedUser(t, db, model.RoleApproverL1)
	req := seedRequest(t, db, owner, model.StatusPending)

	ok, err := repo.HasApprovedLevel(ctx, req.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// a rejection at the level does not satisfy it
	require.NoError(t, repo.Upsert(ctx, &model.Approval{
		RequestID:     req.ID,
		ApproverID:    approver.ID,
		ApproverLevel: 1,
		Status:        model.StatusRejected,
	}))
	ok, err = repo.HasApprovedLevel(ctx, req.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Upsert(ctx, &model.Approval{
		RequestID:     req.ID,
		ApproverID:    approver.ID,
		ApproverLevel: 1,
		Status:        model.StatusApproved,
	}))
	ok, err = repo.HasApprovedLevel(ctx, req.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasApprovedLevel(ctx, req.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteByRequest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewApprovalRepository(db)

	owner := seedUser(t, db, model.RoleStaff)
	approver := seedUser(t, db, model.RoleApproverL1)
	req := seedRequest(t, db, owner, model.StatusPending)

	require.NoError(t, repo.Upsert(ctx, &model.Approval{
		RequestID:     req.ID,
		ApproverID:    approver.ID,
		ApproverLevel: 1,
		Status:        model.StatusApproved,
	}))
	require.NoError(t, repo.DeleteByRequest(ctx, req.ID))

	approvals, err := repo.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, approvals)
}

func TestRequestList_FiltersByOwnerAndStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRequestRepository(db)

	alice := seedUser(t, db, model.RoleStaff)
	bob := seedUser(t, db, model.RoleStaff)
	seedRequest(t, db, alice, model.StatusPending)
	seedRequest(t, db, alice, model.StatusApproved)
	seedRequest(t, db, bob, model.StatusPending)

	all, total, err := repo.List(ctx, nil, "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	mine, total, err := repo.List(ctx, &alice.ID, "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, mine, 2)
	for _, r := range mine {
		assert.Equal(t, alice.ID, r.CreatedByID)
		require.NotNil(t, r.CreatedBy)
	}

	pending, total, err := repo.List(ctx, &alice.ID, model.StatusPending, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, pending, 1)

	paged, total, err := repo.List(ctx, nil, "", 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, paged, 1)
}

func TestRequestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRequestRepository(db)

	owner := seedUser(t, db, model.RoleStaff)
	req := seedRequest(t, db, owner, model.StatusPending)

	require.NoError(t, repo.Delete(ctx, req.ID))

	_, err := repo.FindByID(ctx, req.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserUpsert_RefreshesClaims(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)

	id := uuid.New()
	require.NoError(t, repo.Upsert(ctx, &model.User{ID: id, Email: "old@example.com", Name: "Old Name", Role: model.RoleStaff}))
	require.NoError(t, repo.Upsert(ctx, &model.User{ID: id, Email: "new@example.com", Name: "New Name", Role: model.RoleApproverL1}))

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	user, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "New Name", user.Name)
	assert.Equal(t, model.RoleApproverL1, user.Role)
}

func TestAuditList_FiltersByAction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewAuditRepository(db)

	actor := seedUser(t, db, model.RoleStaff)
	require.NoError(t, repo.Log(ctx, &model.AuditLog{
		UserID:     &actor.ID,
		Action:     model.ActionCreateRequest,
		EntityID:   uuid.NewString(),
		EntityName: "purchase_request",
		Details:    `{"title":"Test"}`,
	}))
	require.NoError(t, repo.Log(ctx, &model.AuditLog{
		Action:     model.ActionGeneratePO,
		EntityID:   uuid.NewString(),
		EntityName: "purchase_request",
	}))

	all, total, err := repo.List(ctx, "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	created, total, err := repo.List(ctx, model.ActionCreateRequest, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].User)
	assert.Equal(t, actor.ID, created[0].User.ID)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tm := NewTransactionManager(db)
	requests := NewRequestRepository(db)

	owner := seedUser(t, db, model.RoleStaff)

	err := tm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := requests.Create(txCtx, &model.PurchaseRequest{
			Title:       "doomed",
			Amount:      decimal.NewFromInt(10),
			Status:      model.StatusPending,
			CreatedByID: owner.ID,
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	var count int64
	require.NoError(t, db.Model(&model.PurchaseRequest{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tm := NewTransactionManager(db)
	requests := NewRequestRepository(db)

	owner := seedUser(t, db, model.RoleStaff)

	var id uuid.UUID
	err := tm.RunInTx(ctx, func(txCtx context.Context) error {
		req := &model.PurchaseRequest{
			Title:       "kept",
			Amount:      decimal.NewFromInt(10),
			Status:      model.StatusPending,
			CreatedByID: owner.ID,
		}
		if err := requests.Create(txCtx, req); err != nil {
			return err
		}
		id = req.ID
		return nil
	})
	require.NoError(t, err)

	got, err := requests.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)
}

func TestRunInTx_RetriesOnlyTransientErrors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tm := NewTransactionManager(db)

	permanent := 0
	err := tm.RunInTx(ctx, func(txCtx context.Context) error {
		permanent++
		return errors.New("constraint violation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, permanent)

	transient := 0
	err = tm.RunInTx(ctx, func(txCtx context.Context) error {
		transient++
		return fmt.Errorf("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 3, transient)
}
