package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wachira567/eventhub-backend/internal/models"
)

// GatewayStatus is the provider-reported outcome of a payment.
type GatewayStatus string

const (
	GatewayPending   GatewayStatus = "pending"
	GatewayCompleted GatewayStatus = "completed"
	GatewayFailed    GatewayStatus = "failed"
)

// InitiateResult is the provisional acknowledgment of an STK push.
type InitiateResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	Description       string
}

// QueryResult is a polled transaction status.
type QueryResult struct {
	Status      GatewayStatus
	Description string
}

// Gateway abstracts the external mobile-money provider. Amounts are in minor
// currency units.
type Gateway interface {
	Initiate(ctx context.Context, amount int64, phoneNumber, accountReference string) (*InitiateResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResult, error)
}

// TransactionStore is the durable record of payment attempts. Status is only
// ever mutated through CompareAndTransition, which serializes transitions per
// transaction without a global lock.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByCheckoutRequestID(ctx context.Context, ref string) (*models.Transaction, error)
	CompareAndTransition(ctx context.Context, id uuid.UUID, expected, next string, fields map[string]interface{}) error
	// ListUnresolved returns initiated and pending transactions last touched
	// before olderThan, oldest first.
	ListUnresolved(ctx context.Context, olderThan time.Time) ([]models.Transaction, error)
}

// TicketActivator finalizes ticket issuance once a transaction is confirmed.
// Activate must be idempotent: a second call for the same ticket returns
// ErrAlreadyActivated and changes nothing.
type TicketActivator interface {
	Activate(ctx context.Context, ticketID uuid.UUID, receipt string) error
}

// Callback is a provider confirmation, delivered over the webhook or derived
// from a poll. ResultCode zero means success. Amount is in minor units.
type Callback struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            int64
	MpesaReceipt      string
	PhoneNumber       string
}
