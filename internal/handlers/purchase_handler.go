package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/helpers"
	"github.com/wachira567/eventhub-backend/internal/middleware"
	"github.com/wachira567/eventhub-backend/internal/models"
	"github.com/wachira567/eventhub-backend/internal/payments"
)

type PurchaseRequest struct {
	EventID      uuid.UUID `json:"event_id" binding:"required"`
	TicketTypeID uuid.UUID `json:"ticket_type_id" binding:"required"`
	Quantity     int       `json:"quantity" binding:"required,min=1"`
	PhoneNumber  string    `json:"phone_number" binding:"required"`
}

func newTicketNumber() string {
	return fmt.Sprintf("TKT-%s", strings.ToUpper(uuid.New().String()[:8]))
}

// CreatePurchase reserves tickets and kicks off the STK push. The ticket is
// created unpaid and only becomes usable once the confirmation state machine
// completes the transaction.
func CreatePurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	phone, err := helpers.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid phone number format.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	userUUID := userID.(uuid.UUID)

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	coordinator := middleware.GetCoordinator(c)
	if coordinator == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Payment service not available.")
		return
	}

	var event models.Event
	if err := gormDB.Where("id = ? AND status = ?", req.EventID, models.EventPublished).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	var ticketType models.TicketType
	if err := gormDB.Where("id = ? AND event_id = ?", req.TicketTypeID, event.ID).First(&ticketType).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket type not found.")
		return
	}

	now := time.Now().UTC()
	if ticketType.SalesStart != nil && now.Before(*ticketType.SalesStart) {
		helpers.RespondWithError(c, http.StatusConflict, "Ticket sales have not started.")
		return
	}
	if ticketType.SalesEnd != nil && now.After(*ticketType.SalesEnd) {
		helpers.RespondWithError(c, http.StatusConflict, "Ticket sales have ended.")
		return
	}

	totalPrice := ticketType.Price * int64(req.Quantity)
	if totalPrice%100 != 0 {
		helpers.RespondWithError(c, http.StatusConflict, "Ticket price cannot be charged in whole shillings.")
		return
	}

	ticket := models.Ticket{
		ID:           uuid.New(),
		TicketNumber: newTicketNumber(),
		Quantity:     req.Quantity,
		TotalPrice:   totalPrice,
		EventID:      event.ID,
		UserID:       userUUID,
		TicketTypeID: ticketType.ID,
	}

	transaction := models.Transaction{
		ID:           uuid.New(),
		Quantity:     req.Quantity,
		Amount:       totalPrice,
		PhoneNumber:  phone,
		Status:       models.TransactionInitiated,
		UserID:       userUUID,
		EventID:      event.ID,
		TicketTypeID: ticketType.ID,
		TicketID:     ticket.ID,
	}

	err = persistPurchase(c.Request.Context(), gormDB, &ticket, &transaction)
	if err != nil {
		if errors.Is(err, errSoldOut) {
			helpers.RespondWithError(c, http.StatusConflict, "Not enough tickets available.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create purchase.")
		return
	}

	if err := coordinator.Initiate(c.Request.Context(), &transaction); err != nil {
		releaseReservation(gormDB, ticketType.ID, req.Quantity)

		if errors.Is(err, payments.ErrInvalidPhoneNumber) {
			helpers.RespondWithError(c, http.StatusBadRequest, "The payment provider rejected the phone number.")
			return
		}
		if errors.Is(err, payments.ErrGatewayUnavailable) {
			helpers.RespondWithError(c, http.StatusBadGateway, "Payment service is temporarily unavailable. Please try again.")
			return
		}
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to initiate payment.")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":             "Payment prompt sent. Enter your PIN to complete the purchase.",
		"transaction_id":      transaction.ID,
		"status":              transaction.Status,
		"checkout_request_id": transaction.CheckoutRequestID,
		"ticket_id":           ticket.ID,
		"amount":              transaction.Amount,
	})
}

var errSoldOut = errors.New("sold out")

// persistPurchase reserves inventory and writes the ticket and transaction
// rows in one database transaction.
func persistPurchase(ctx context.Context, gormDB *gorm.DB, ticket *models.Ticket, txn *models.Transaction) error {
	return gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional increment so concurrent purchases cannot oversell.
		result := tx.Model(&models.TicketType{}).
			Where("id = ? AND sold_quantity + ? <= quantity", ticket.TicketTypeID, ticket.Quantity).
			UpdateColumn("sold_quantity", gorm.Expr("sold_quantity + ?", ticket.Quantity))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errSoldOut
		}

		if err := tx.Create(ticket).Error; err != nil {
			return err
		}
		if err := tx.Create(txn).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return payments.ErrDuplicateReference
			}
			return err
		}
		return nil
	})
}

func releaseReservation(gormDB *gorm.DB, ticketTypeID uuid.UUID, quantity int) {
	gormDB.Model(&models.TicketType{}).
		Where("id = ?", ticketTypeID).
		UpdateColumn("sold_quantity", gorm.Expr("sold_quantity - ?", quantity))
}
