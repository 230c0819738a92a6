package model

import (
	"time"

	"github.com/google/uuid"
)

// User mirrors the identity provider's account record. Rows are upserted from
// verified token claims whenever an actor's action is persisted, so requests
// and approvals can render requester/approver names. The provider stays the
// source of truth; this table is never used to authenticate anyone.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Role      Role      `gorm:"type:varchar(32);not null;default:'staff'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
