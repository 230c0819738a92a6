package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approval records one approver's decision at one tier of a request's chain.
// The composite unique key makes re-decisions overwrite in place rather than
// append; a request is fully approved once approved rows cover every tier in
// 1..RequiredApprovalLevels.
type Approval struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_approvals_request_approver_level" json:"request_id"`
	ApproverID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_approvals_request_approver_level" json:"approver_id"`
	Approver      *User     `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	ApproverLevel int       `gorm:"not null;uniqueIndex:idx_approvals_request_approver_level" json:"approver_level"`
	Status        string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Comment       string    `gorm:"type:text" json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
