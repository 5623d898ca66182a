package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Price is stored in minor currency units (cents).
type TicketType struct {
	gorm.Model
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	Name         string    `gorm:"not null"`
	Description  string
	Price        int64 `gorm:"not null"`
	Quantity     int   `gorm:"not null"`
	SoldQuantity int   `gorm:"not null;default:0"`
	SalesStart   *time.Time
	SalesEnd     *time.Time
	EventID      uuid.UUID
	Event        Event
}

func (tt *TicketType) BeforeCreate(tx *gorm.DB) (err error) {
	if tt.ID == uuid.Nil {
		tt.ID = uuid.New()
	}
	return
}
