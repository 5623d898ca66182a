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

type EventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description" binding:"required"`
	Venue       string    `json:"venue" binding:"required"`
	City        string    `json:"city" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
	CategoryID  uuid.UUID `json:"category_id" binding:"required"`
}

func CreateEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	if !req.EndTime.After(req.StartTime) {
		helpers.RespondWithError(c, http.StatusBadRequest, "End time must be after start time.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var category models.Category
	if err := gormDB.First(&category, "id = ?", req.CategoryID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid category.")
		return
	}

	event := models.Event{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		City:        req.City,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Status:      models.EventDraft,
		CategoryID:  category.ID,
		UserID:      userID.(uuid.UUID),
	}

	if err := gormDB.Create(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create event.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Event created successfully.",
		"event_id": event.ID,
	})
}

func GetEvent(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Preload("Category").Preload("User").Preload("TicketTypes").Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return
	}

	if event.Status != models.EventPublished {
		userID, _ := c.Get("user_id")
		role, _ := c.Get("role")
		if userID != event.UserID && role != models.RoleAdmin {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
	}

	gormDB.Model(&event).UpdateColumn("view_count", gorm.Expr("view_count + 1"))

	c.JSON(http.StatusOK, event)
}

func ListEvents(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	page := c.DefaultQuery("page", "1")
	limit := c.DefaultQuery("limit", "10")

	city := c.Query("city")
	categoryID := c.Query("category_id")
	search := c.Query("search")

	pageNum, err := helpers.StringToInt(page)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid page number.")
		return
	}

	limitNum, err := helpers.StringToInt(limit)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
		return
	}

	query := gormDB.Model(&models.Event{}).Where("status = ?", models.EventPublished)
	if city != "" {
		query = query.Where("city = ?", city)
	}
	if categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	if search != "" {
		query = query.Where("title ILIKE ? OR description ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var totalCount int64
	query.Count(&totalCount)

	var events []models.Event
	offset := (pageNum - 1) * limitNum
	err = query.Preload("Category").Preload("TicketTypes").Offset(offset).Limit(limitNum).Order("start_time ASC").Find(&events).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving events.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":      events,
		"total":       totalCount,
		"page":        pageNum,
		"limit":       limitNum,
		"total_pages": (totalCount + int64(limitNum) - 1) / int64(limitNum),
	})
}

func UpdateEvent(c *gin.Context) {
	eventID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", eventID, userID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusForbidden, "Event not found or you don't have permission to update.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error finding event.")
		return
	}

	event.Title = req.Title
	event.Description = req.Description
	event.Venue = req.Venue
	event.City = req.City
	event.StartTime = req.StartTime
	event.EndTime = req.EndTime
	event.CategoryID = req.CategoryID

	// Edits to a published event go back through moderation.
	if event.Status == models.EventPublished {
		event.Status = models.EventPendingReview
	}

	if err := gormDB.Save(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event updated successfully."})
}

func DeleteEvent(c *gin.Context) {
	eventID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	role, _ := c.Get("role")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	query := gormDB.Where("id = ?", eventID)
	if role != models.RoleAdmin {
		query = query.Where("user_id = ?", userID)
	}

	var event models.Event
	if err := query.First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Event not found or you don't have permission to delete.")
		return
	}

	var soldTickets int64
	gormDB.Model(&models.Ticket{}).
		Where("event_id = ? AND payment_status = ?", event.ID, models.TicketPaid).
		Count(&soldTickets)
	if soldTickets > 0 {
		helpers.RespondWithError(c, http.StatusConflict, "Cannot delete an event with sold tickets.")
		return
	}

	if err := gormDB.Delete(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to delete event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully."})
}

func SubmitEventForReview(c *gin.Context) {
	eventID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", eventID, userID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Event not found or you don't have permission.")
		return
	}

	if event.Status != models.EventDraft && event.Status != models.EventRejected {
		helpers.RespondWithError(c, http.StatusConflict, "Only draft or rejected events can be submitted for review.")
		return
	}

	if err := gormDB.Model(&event).Update("status", models.EventPendingReview).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to submit event for review.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event submitted for review."})
}

func GetMyEvents(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var events []models.Event
	err := gormDB.Preload("Category").Preload("TicketTypes").
		Where("user_id = ?", userID).Order("created_at DESC").Find(&events).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving events.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
