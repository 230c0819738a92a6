package service

import (
	"testing"
	"time"

	"backend/internal/database"
	"backend/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the workflow schema.
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

func seedUserRow(t *testing.T, db *gorm.DB, name string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		ID:    uuid.New(),
		Email: uuid.NewString() + "@example.com",
		Name:  name,
		Role:  role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// seedRequestRow inserts a request directly, backdating created_at so tests
// can place rows inside or outside a reporting window.
func seedRequestRow(t *testing.T, db *gorm.DB, owner *model.User, title, amount, status string, createdAt time.Time) *model.PurchaseRequest {
	t.Helper()
	req := &model.PurchaseRequest{
		Title:       title,
		Description: "seeded",
		Amount:      decimal.RequireFromString(amount),
		Status:      status,
		CreatedByID: owner.ID,
	}
	require.NoError(t, db.Create(req).Error)
	require.NoError(t, db.Model(req).UpdateColumn("created_at", createdAt).Error)
	req.CreatedAt = createdAt
	return req
}
