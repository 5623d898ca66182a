package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/helpers"
	"github.com/wachira567/eventhub-backend/internal/middleware"
	"github.com/wachira567/eventhub-backend/internal/models"
	"github.com/wachira567/eventhub-backend/internal/payments"
)

// stkCallbackEnvelope is the Daraja webhook payload. Metadata items are
// name/value pairs; Amount arrives as whole shillings.
type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func parseSTKCallback(data []byte) (payments.Callback, error) {
	var envelope stkCallbackEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return payments.Callback{}, err
	}

	stk := envelope.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return payments.Callback{}, errors.New("missing checkout request id")
	}

	cb := payments.Callback{
		CheckoutRequestID: stk.CheckoutRequestID,
		ResultCode:        stk.ResultCode,
		ResultDesc:        stk.ResultDesc,
	}

	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				cb.Amount = int64(math.Round(v * 100))
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				cb.MpesaReceipt = v
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				cb.PhoneNumber = strconv.FormatFloat(v, 'f', -1, 64)
			case string:
				cb.PhoneNumber = v
			}
		}
	}
	return cb, nil
}

// STKPushCallback receives the provider's asynchronous confirmation. The
// provider redelivers on non-200 responses, so duplicates and resolved
// anomalies are acknowledged with success.
func STKPushCallback(c *gin.Context) {
	coordinator := middleware.GetCoordinator(c)
	if coordinator == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Payment service not available.")
		return
	}

	data, err := c.GetRawData()
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Failed to read callback body.")
		return
	}

	cb, err := parseSTKCallback(data)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid callback payload.")
		return
	}

	err = coordinator.HandleCallback(c.Request.Context(), cb)
	switch {
	case err == nil, errors.Is(err, payments.ErrValidationMismatch):
		// Mismatches are resolved (transaction failed, anomaly logged);
		// acknowledging stops provider retries.
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
	case errors.Is(err, payments.ErrNotFound):
		helpers.RespondWithError(c, http.StatusNotFound, "Transaction not found.")
	default:
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to process callback.")
	}
}

// GetPaymentStatus returns the current transaction state for client polling.
func GetPaymentStatus(c *gin.Context) {
	txStore := middleware.GetTransactionStore(c)
	if txStore == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Payment service not available.")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid transaction ID.")
		return
	}

	tx, err := txStore.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Transaction not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving transaction.")
		return
	}

	userID, _ := c.Get("user_id")
	role, _ := c.Get("role")
	if tx.UserID != userID && role != models.RoleAdmin {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to view this transaction.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_id":    tx.ID,
		"status":            tx.Status,
		"amount":            tx.Amount,
		"mpesa_receipt":     tx.MpesaReceipt,
		"result_desc":       tx.ResultDesc,
		"payment_completed": tx.Status == models.TransactionCompleted,
	})
}

// QueryPayment forces a gateway poll for a pending transaction; the fallback
// when the callback never arrives.
func QueryPayment(c *gin.Context) {
	coordinator := middleware.GetCoordinator(c)
	if coordinator == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Payment service not available.")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid transaction ID.")
		return
	}

	tx, err := coordinator.Poll(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Transaction not found.")
			return
		}
		if errors.Is(err, payments.ErrGatewayUnavailable) {
			helpers.RespondWithError(c, http.StatusBadGateway, "Payment service is temporarily unavailable.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to query payment status.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_id":    tx.ID,
		"status":            tx.Status,
		"payment_completed": tx.Status == models.TransactionCompleted,
	})
}

// ListTransactions is the admin audit view.
func ListTransactions(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	page := c.DefaultQuery("page", "1")
	limit := c.DefaultQuery("limit", "20")
	status := c.Query("status")

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

	query := gormDB.Model(&models.Transaction{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var totalCount int64
	query.Count(&totalCount)

	var transactions []models.Transaction
	offset := (pageNum - 1) * limitNum
	err = query.Offset(offset).Limit(limitNum).Order("created_at DESC").Find(&transactions).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving transactions.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"total":        totalCount,
		"page":         pageNum,
		"limit":        limitNum,
	})
}
