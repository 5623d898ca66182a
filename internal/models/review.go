package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Review struct {
	gorm.Model
	ID      uuid.UUID `gorm:"type:uuid;primary_key"`
	Rating  int       `gorm:"not null"`
	Comment string
	EventID uuid.UUID `gorm:"uniqueIndex:idx_reviews_event_user"`
	Event   Event
	UserID  uuid.UUID `gorm:"uniqueIndex:idx_reviews_event_user"`
	User    User
}

func (review *Review) BeforeCreate(tx *gorm.DB) (err error) {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	return
}
