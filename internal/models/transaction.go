package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TransactionInitiated = "initiated"
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
	TransactionExpired   = "expired"
)

// Transaction is the audit record for one payment attempt. Rows are never
// deleted and status only moves forward through the confirmation state
// machine, so there is no soft-delete column. Amount is in minor currency
// units (cents).
type Transaction struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key"`
	CheckoutRequestID *string   `gorm:"uniqueIndex"`
	MerchantRequestID string
	Quantity          int    `gorm:"not null;default:1"`
	Amount            int64  `gorm:"not null"`
	PhoneNumber       string `gorm:"not null"`
	Status            string `gorm:"not null;default:'initiated';index"`
	MpesaReceipt      string
	ResultDesc        string
	UserID            uuid.UUID
	EventID           uuid.UUID
	TicketTypeID      uuid.UUID
	TicketID          uuid.UUID
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (tx *Transaction) BeforeCreate(db *gorm.DB) (err error) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	return
}

// TerminalStatus reports whether the status can no longer change.
func TerminalStatus(status string) bool {
	switch status {
	case TransactionCompleted, TransactionFailed, TransactionExpired:
		return true
	}
	return false
}
