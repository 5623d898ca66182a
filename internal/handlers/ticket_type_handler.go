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

type TicketTypeRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	Price       int64      `json:"price" binding:"min=0"`
	Quantity    int        `json:"quantity" binding:"required,min=1"`
	SalesStart  *time.Time `json:"sales_start"`
	SalesEnd    *time.Time `json:"sales_end"`
}

func ownedEvent(c *gin.Context, gormDB *gorm.DB) (*models.Event, bool) {
	eventID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return nil, false
	}

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", eventID, userID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Event not found or you don't have permission.")
		return nil, false
	}
	return &event, true
}

func CreateTicketType(c *gin.Context) {
	var req TicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	if req.Price%100 != 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Price must be a whole shilling amount.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	event, ok := ownedEvent(c, gormDB)
	if !ok {
		return
	}

	ticketType := models.TicketType{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		SalesStart:  req.SalesStart,
		SalesEnd:    req.SalesEnd,
		EventID:     event.ID,
	}

	if err := gormDB.Create(&ticketType).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create ticket type.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":        "Ticket type created successfully.",
		"ticket_type_id": ticketType.ID,
	})
}

func ListTicketTypes(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var ticketTypes []models.TicketType
	if err := gormDB.Where("event_id = ?", eventID).Order("price ASC").Find(&ticketTypes).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving ticket types.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket_types": ticketTypes})
}

func UpdateTicketType(c *gin.Context) {
	ticketTypeID := c.Param("ttId")

	var req TicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	if req.Price%100 != 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Price must be a whole shilling amount.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	event, ok := ownedEvent(c, gormDB)
	if !ok {
		return
	}

	var ticketType models.TicketType
	if err := gormDB.Where("id = ? AND event_id = ?", ticketTypeID, event.ID).First(&ticketType).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket type not found.")
		return
	}

	if req.Quantity < ticketType.SoldQuantity {
		helpers.RespondWithError(c, http.StatusConflict, "Quantity cannot be lower than tickets already sold.")
		return
	}

	ticketType.Name = req.Name
	ticketType.Description = req.Description
	ticketType.Price = req.Price
	ticketType.Quantity = req.Quantity
	ticketType.SalesStart = req.SalesStart
	ticketType.SalesEnd = req.SalesEnd

	if err := gormDB.Save(&ticketType).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update ticket type.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ticket type updated successfully."})
}

func DeleteTicketType(c *gin.Context) {
	ticketTypeID := c.Param("ttId")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	event, ok := ownedEvent(c, gormDB)
	if !ok {
		return
	}

	var ticketType models.TicketType
	if err := gormDB.Where("id = ? AND event_id = ?", ticketTypeID, event.ID).First(&ticketType).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket type not found.")
		return
	}

	if ticketType.SoldQuantity > 0 {
		helpers.RespondWithError(c, http.StatusConflict, "Cannot delete a ticket type with sold tickets.")
		return
	}

	if err := gormDB.Delete(&ticketType).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to delete ticket type.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ticket type deleted successfully."})
}
