package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateRequest   = "CREATE_PURCHASE_REQUEST"
	ActionUpdateRequest   = "UPDATE_PURCHASE_REQUEST"
	ActionWithdrawRequest = "WITHDRAW_PURCHASE_REQUEST"
	ActionApproveRequest  = "APPROVE_PURCHASE_REQUEST"
	ActionRejectRequest   = "REJECT_PURCHASE_REQUEST"
	ActionGeneratePO      = "GENERATE_PURCHASE_ORDER"
	ActionSubmitReceipt   = "SUBMIT_RECEIPT"
)

// AuditLog tracks Who, What, and When for every workflow mutation. Rows are
// written inside the same transaction as the change they record.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
