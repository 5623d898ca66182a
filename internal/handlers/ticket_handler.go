package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/helpers"
	"github.com/wachira567/eventhub-backend/internal/models"
	"github.com/wachira567/eventhub-backend/internal/payments"
)

func qrSigningKey() []byte {
	return []byte(os.Getenv("QR_SIGNING_KEY"))
}

func GetMyTickets(c *gin.Context) {
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

	var tickets []models.Ticket
	err := gormDB.Preload("Event").Preload("TicketType").
		Where("user_id = ?", userID).Order("created_at DESC").Find(&tickets).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// GetTicketQR renders the activated ticket's credential as a PNG.
func GetTicketQR(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var ticket models.Ticket
	if err := gormDB.First(&ticket, "id = ?", ticketID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}

	if ticket.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to view this ticket.")
		return
	}

	if ticket.PaymentStatus != models.TicketPaid || ticket.QRData == "" {
		helpers.RespondWithError(c, http.StatusConflict, "Ticket has not been paid for yet.")
		return
	}

	if ticket.IsUsed {
		helpers.RespondWithError(c, http.StatusForbidden, "Ticket already used.")
		return
	}

	qrImage, err := qrcode.Encode(ticket.QRData, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

// ValidateTicket is the organizer-side scan: verifies the credential
// signature and marks the ticket used.
func ValidateTicket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	var req struct {
		QRData string `json:"qr_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	ticketID, err := payments.ParseTicketCredential(req.QRData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid QR code format.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var ticket models.Ticket
	if err := gormDB.Preload("Event").First(&ticket, "id = ?", ticketID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}

	if !payments.VerifyTicketCredential(ticket.QRData, req.QRData, qrSigningKey()) {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid QR code signature.")
		return
	}

	if ticket.Event.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to validate this ticket.")
		return
	}

	if ticket.PaymentStatus != models.TicketPaid {
		helpers.RespondWithError(c, http.StatusForbidden, "Ticket has not been paid for.")
		return
	}

	// Conditional update so two gates scanning the same ticket admit once.
	result := gormDB.Model(&models.Ticket{}).
		Where("id = ? AND is_used = ?", ticket.ID, false).
		Update("is_used", true)
	if result.Error != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to validate ticket.")
		return
	}
	if result.RowsAffected == 0 {
		helpers.RespondWithError(c, http.StatusForbidden, "Ticket already used.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket validated successfully.",
		"ticket": gin.H{
			"ticket_number": ticket.TicketNumber,
			"event_title":   ticket.Event.Title,
			"quantity":      ticket.Quantity,
		},
	})
}
