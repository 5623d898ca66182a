package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/helpers"
	"github.com/wachira567/eventhub-backend/internal/models"
)

// ExportEventAttendeesCSV streams the paid-ticket holders of an event.
// Organizer of the event or admin only.
func ExportEventAttendeesCSV(c *gin.Context) {
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
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	if event.UserID != userID && role != models.RoleAdmin {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to export this event.")
		return
	}

	var tickets []models.Ticket
	err := gormDB.Preload("User").Preload("TicketType").
		Where("event_id = ? AND payment_status = ?", event.ID, models.TicketPaid).
		Order("created_at ASC").Find(&tickets).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"ticket_number", "name", "email", "phone_number", "ticket_type", "quantity", "total_price", "mpesa_receipt", "purchased_at", "checked_in"}
	if err := writer.Write(header); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to build CSV.")
		return
	}

	for _, ticket := range tickets {
		purchasedAt := ""
		if ticket.PurchasedAt != nil {
			purchasedAt = ticket.PurchasedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			ticket.TicketNumber,
			ticket.User.Name,
			ticket.User.Email,
			ticket.User.PhoneNumber,
			ticket.TicketType.Name,
			strconv.Itoa(ticket.Quantity),
			strconv.FormatInt(ticket.TotalPrice, 10),
			ticket.MpesaReceipt,
			purchasedAt,
			strconv.FormatBool(ticket.IsUsed),
		}
		if err := writer.Write(row); err != nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to build CSV.")
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to build CSV.")
		return
	}

	filename := fmt.Sprintf("attendees-%s.csv", event.ID)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}
