package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wachira567/eventhub-backend/internal/payments"
)

func PaymentMiddleware(coordinator *payments.Coordinator, store payments.TransactionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("payment_coordinator", coordinator)
		c.Set("transaction_store", store)
		c.Next()
	}
}

func GetCoordinator(c *gin.Context) *payments.Coordinator {
	coordinator, exists := c.Get("payment_coordinator")
	if !exists {
		return nil
	}
	return coordinator.(*payments.Coordinator)
}

func GetTransactionStore(c *gin.Context) payments.TransactionStore {
	store, exists := c.Get("transaction_store")
	if !exists {
		return nil
	}
	return store.(payments.TransactionStore)
}
