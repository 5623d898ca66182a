package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventDraft         = "draft"
	EventPendingReview = "pending_review"
	EventPublished     = "published"
	EventRejected      = "rejected"
)

type Event struct {
	gorm.Model
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	Title           string    `gorm:"not null"`
	Description     string    `gorm:"not null"`
	Venue           string    `gorm:"not null"`
	City            string    `gorm:"not null"`
	StartTime       time.Time `gorm:"not null"`
	EndTime         time.Time `gorm:"not null"`
	Status          string    `gorm:"not null;default:'draft';index"`
	ViewCount       int       `gorm:"not null;default:0"`
	CategoryID      uuid.UUID `gorm:"type:uuid"`
	Category        Category
	UserID          uuid.UUID
	User            User
	TicketTypes     []TicketType
	ModeratedByID   *uuid.UUID `gorm:"type:uuid"`
	ModeratedAt     *time.Time
	ModerationNotes string
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}
