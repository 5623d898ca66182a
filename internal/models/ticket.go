package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TicketUnpaid = "unpaid"
	TicketPaid   = "paid"
)

type Ticket struct {
	gorm.Model
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	TicketNumber  string    `gorm:"not null;unique"`
	Quantity      int       `gorm:"not null;default:1"`
	TotalPrice    int64     `gorm:"not null"`
	PaymentStatus string    `gorm:"not null;default:'unpaid';index"`
	MpesaReceipt  string
	QRData        string
	IsUsed        bool `gorm:"not null;default:false"`
	PurchasedAt   *time.Time
	EventID       uuid.UUID
	Event         Event
	UserID        uuid.UUID
	User          User
	TicketTypeID  uuid.UUID
	TicketType    TicketType
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}
