package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Status enum constants shared by purchase requests and approvals
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// RequiredApprovalLevels is the number of distinct tiers that must hold an
// approved Approval before a request transitions to approved.
const RequiredApprovalLevels = 2

// PurchaseRequest is the aggregate root of the approval workflow. Status only
// ever moves pending -> approved or pending -> rejected; the purchase order
// attachment is generated exactly once, at the approved transition.
type PurchaseRequest struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title            string          `gorm:"type:varchar(255);not null" json:"title"`
	Description      string          `gorm:"type:text" json:"description"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status           string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedByID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"created_by"`
	CreatedBy        *User           `gorm:"foreignKey:CreatedByID" json:"user,omitempty"`
	UpdatedByID      *uuid.UUID      `gorm:"type:uuid" json:"updated_by"`
	LastApprovedByID *uuid.UUID      `gorm:"type:uuid" json:"last_approved_by"`
	LastApprovedBy   *User           `gorm:"foreignKey:LastApprovedByID" json:"-"`

	// Attachment paths are relative to the media root; handlers expose them
	// as absolute URLs.
	ProformaPath      string `gorm:"type:varchar(512)" json:"-"`
	PurchaseOrderPath string `gorm:"type:varchar(512)" json:"-"`
	ReceiptPath       string `gorm:"type:varchar(512)" json:"-"`

	DocumentMetadata  *ProformaMetadata  `gorm:"type:jsonb;serializer:json" json:"document_metadata"`
	ReceiptValidation *ReceiptValidation `gorm:"type:jsonb;serializer:json" json:"receipt_validation"`
	POGeneratedAt     *time.Time         `json:"po_generated_at"`

	Approvals []Approval `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"approvals"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
