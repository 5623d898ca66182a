package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/helpers"
	"github.com/wachira567/eventhub-backend/internal/models"
)

type ModerationRequest struct {
	Notes string `json:"notes"`
}

func ListPendingEvents(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var events []models.Event
	err := gormDB.Preload("Category").Preload("User").
		Where("status = ?", models.EventPendingReview).
		Order("updated_at ASC").Find(&events).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving pending events.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func moderateEvent(c *gin.Context, newStatus string) {
	eventID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	moderatorID := userID.(uuid.UUID)

	var req ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil && newStatus == models.EventRejected {
		helpers.RespondWithError(c, http.StatusBadRequest, "Rejection requires a notes field.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	if event.Status != models.EventPendingReview {
		helpers.RespondWithError(c, http.StatusConflict, "Event is not pending review.")
		return
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":           newStatus,
		"moderated_by_id":  moderatorID,
		"moderated_at":     &now,
		"moderation_notes": req.Notes,
	}

	if err := gormDB.Model(&event).Updates(updates).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to moderate event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event moderated successfully.",
		"status":  newStatus,
	})
}

func ApproveEvent(c *gin.Context) {
	moderateEvent(c, models.EventPublished)
}

func RejectEvent(c *gin.Context) {
	moderateEvent(c, models.EventRejected)
}
