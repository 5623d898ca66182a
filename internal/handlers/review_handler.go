package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/helpers"
	"github.com/wachira567/eventhub-backend/internal/models"
)

type ReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

func ListEventReviews(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var reviews []models.Review
	err := gormDB.Preload("User").Where("event_id = ?", eventID).Order("created_at DESC").Find(&reviews).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving reviews.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func CreateEventReview(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Rating must be between 1 and 5.")
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

	var event models.Event
	if err := gormDB.Where("id = ? AND status = ?", eventID, models.EventPublished).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	// Only paying attendees can review.
	var paidTickets int64
	gormDB.Model(&models.Ticket{}).
		Where("event_id = ? AND user_id = ? AND payment_status = ?", eventID, userID, models.TicketPaid).
		Count(&paidTickets)
	if paidTickets == 0 {
		helpers.RespondWithError(c, http.StatusForbidden, "Only attendees with a paid ticket can review this event.")
		return
	}

	var existing models.Review
	if result := gormDB.Where("event_id = ? AND user_id = ?", eventID, userID).First(&existing); result.Error == nil {
		helpers.RespondWithError(c, http.StatusConflict, "You have already reviewed this event.")
		return
	}

	review := models.Review{
		ID:      uuid.New(),
		Rating:  req.Rating,
		Comment: req.Comment,
		EventID: eventID,
		UserID:  userID.(uuid.UUID),
	}

	if err := gormDB.Create(&review).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create review.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Review created successfully.",
		"review_id": review.ID,
	})
}

func UpdateReview(c *gin.Context) {
	reviewID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Rating must be between 1 and 5.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var review models.Review
	if err := gormDB.Where("id = ? AND user_id = ?", reviewID, userID).First(&review).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Review not found or you don't have permission to update.")
		return
	}

	review.Rating = req.Rating
	review.Comment = req.Comment

	if err := gormDB.Save(&review).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update review.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Review updated successfully."})
}

func DeleteReview(c *gin.Context) {
	reviewID := c.Param("id")
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

	query := gormDB.Where("id = ?", reviewID)
	if role != models.RoleAdmin {
		query = query.Where("user_id = ?", userID)
	}

	var review models.Review
	if err := query.First(&review).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Review not found or you don't have permission to delete.")
		return
	}

	if err := gormDB.Delete(&review).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to delete review.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Review deleted successfully."})
}

func GetEventReviewStats(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var stats struct {
		Count   int64
		Average float64
	}
	err := gormDB.Model(&models.Review{}).
		Select("COUNT(*) AS count, COALESCE(AVG(rating), 0) AS average").
		Where("event_id = ?", eventID).
		Scan(&stats).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving review stats.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"review_count":   stats.Count,
		"average_rating": stats.Average,
	})
}
