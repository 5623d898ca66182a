package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/helpers"
	"github.com/wachira567/eventhub-backend/internal/models"
)

// Revenue figures are sums over completed transactions only, so pending and
// failed payment attempts never inflate the numbers.

func GetOrganizerAnalytics(c *gin.Context) {
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

	var eventCount int64
	gormDB.Model(&models.Event{}).Where("user_id = ?", userID).Count(&eventCount)

	var publishedCount int64
	gormDB.Model(&models.Event{}).
		Where("user_id = ? AND status = ?", userID, models.EventPublished).
		Count(&publishedCount)

	var totals struct {
		TicketsSold int64
		Revenue     int64
	}
	err := gormDB.Model(&models.Transaction{}).
		Select("COALESCE(SUM(transactions.quantity), 0) AS tickets_sold, COALESCE(SUM(transactions.amount), 0) AS revenue").
		Joins("JOIN events ON events.id = transactions.event_id").
		Where("events.user_id = ? AND transactions.status = ?", userID, models.TransactionCompleted).
		Scan(&totals).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error computing analytics.")
		return
	}

	var totalViews int64
	gormDB.Model(&models.Event{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(view_count), 0)").
		Scan(&totalViews)

	c.JSON(http.StatusOK, gin.H{
		"total_events":     eventCount,
		"published_events": publishedCount,
		"tickets_sold":     totals.TicketsSold,
		"revenue":          totals.Revenue,
		"total_views":      totalViews,
	})
}

func GetEventAnalytics(c *gin.Context) {
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

	var event models.Event
	if err := gormDB.Preload("TicketTypes").Where("id = ?", eventID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	if event.UserID != userID && role != models.RoleAdmin {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to view these analytics.")
		return
	}

	var totals struct {
		TicketsSold int64
		Revenue     int64
	}
	err := gormDB.Model(&models.Transaction{}).
		Select("COALESCE(SUM(quantity), 0) AS tickets_sold, COALESCE(SUM(amount), 0) AS revenue").
		Where("event_id = ? AND status = ?", event.ID, models.TransactionCompleted).
		Scan(&totals).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error computing analytics.")
		return
	}

	var attendedCount int64
	gormDB.Model(&models.Ticket{}).
		Where("event_id = ? AND is_used = ?", event.ID, true).
		Count(&attendedCount)

	capacity := 0
	for _, tt := range event.TicketTypes {
		capacity += tt.Quantity
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":     event.ID,
		"title":        event.Title,
		"tickets_sold": totals.TicketsSold,
		"revenue":      totals.Revenue,
		"attended":     attendedCount,
		"capacity":     capacity,
		"view_count":   event.ViewCount,
	})
}
