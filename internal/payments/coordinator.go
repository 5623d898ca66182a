package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wachira567/eventhub-backend/internal/models"
)

// CoordinatorConfig tunes the confirmation state machine. PendingTimeout
// should exceed the provider's STK prompt expiry.
type CoordinatorConfig struct {
	PendingTimeout  time.Duration
	InitiateRetries int
	InitiateBackoff time.Duration
}

// Coordinator drives transactions through
// initiated -> pending -> {completed | failed | expired}. It is the only
// component that mutates transaction status, always through the store's
// compare-and-transition, so duplicate or racing confirmations collapse into
// no-ops instead of double activations.
type Coordinator struct {
	store     TransactionStore
	gateway   Gateway
	activator TicketActivator
	log       *zap.Logger

	pendingTimeout  time.Duration
	initiateRetries int
	initiateBackoff time.Duration
	now             func() time.Time
}

func NewCoordinator(store TransactionStore, gateway Gateway, activator TicketActivator, log *zap.Logger, cfg CoordinatorConfig) *Coordinator {
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = 2 * time.Minute
	}
	if cfg.InitiateRetries <= 0 {
		cfg.InitiateRetries = 3
	}
	if cfg.InitiateBackoff <= 0 {
		cfg.InitiateBackoff = 2 * time.Second
	}
	return &Coordinator{
		store:           store,
		gateway:         gateway,
		activator:       activator,
		log:             log,
		pendingTimeout:  cfg.PendingTimeout,
		initiateRetries: cfg.InitiateRetries,
		initiateBackoff: cfg.InitiateBackoff,
		now:             time.Now,
	}
}

// Initiate asks the gateway to push the payment prompt for a freshly created
// transaction and records the assigned reference. Transient gateway errors are
// retried with backoff; anything that still fails marks the transaction
// failed before surfacing the error.
func (c *Coordinator) Initiate(ctx context.Context, tx *models.Transaction) error {
	res, err := c.initiateWithRetry(ctx, tx)
	if err != nil {
		if ferr := c.forceFail(ctx, tx.ID, tx.Status, err.Error()); ferr != nil {
			c.log.Error("failed to mark unacknowledged transaction failed",
				zap.String("transaction_id", tx.ID.String()), zap.Error(ferr))
		}
		return err
	}

	fields := map[string]interface{}{
		"checkout_request_id": res.CheckoutRequestID,
		"merchant_request_id": res.MerchantRequestID,
	}
	err = c.store.CompareAndTransition(ctx, tx.ID, models.TransactionInitiated, models.TransactionPending, fields)
	if errors.Is(err, ErrStaleState) {
		// The row moved while the gateway call was in flight, e.g. the sweep
		// expired it. Surface the durable state rather than stamping pending.
		cur, gerr := c.store.GetByID(ctx, tx.ID)
		if gerr != nil {
			return gerr
		}
		*tx = *cur
		return nil
	}
	if err != nil {
		return err
	}
	tx.CheckoutRequestID = &res.CheckoutRequestID
	tx.MerchantRequestID = res.MerchantRequestID
	tx.Status = models.TransactionPending
	return nil
}

func (c *Coordinator) initiateWithRetry(ctx context.Context, tx *models.Transaction) (*InitiateResult, error) {
	reference := tx.ID.String()
	var lastErr error
	for attempt := 0; attempt < c.initiateRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.initiateBackoff * time.Duration(attempt)):
			}
		}

		res, err := c.gateway.Initiate(ctx, tx.Amount, tx.PhoneNumber, reference)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrGatewayUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// HandleCallback applies a provider confirmation. It is idempotent: a
// duplicate or late delivery for a transaction already in a terminal state is
// acknowledged without touching the ticket.
func (c *Coordinator) HandleCallback(ctx context.Context, cb Callback) error {
	tx, err := c.store.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		return err
	}

	if models.TerminalStatus(tx.Status) {
		return nil
	}

	if cb.ResultCode != 0 {
		return c.fail(ctx, tx.ID, cb.ResultDesc)
	}

	if mismatch := c.validate(tx, cb); mismatch != "" {
		c.log.Error("payment confirmation rejected",
			zap.String("anomaly", "confirmation_mismatch"),
			zap.String("transaction_id", tx.ID.String()),
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Int64("expected_amount", tx.Amount),
			zap.Int64("reported_amount", cb.Amount),
			zap.String("detail", mismatch))
		if err := c.fail(ctx, tx.ID, mismatch); err != nil {
			return err
		}
		return ErrValidationMismatch
	}

	return c.complete(ctx, tx, cb.MpesaReceipt, cb.ResultDesc)
}

// validate checks the reported confirmation against the stored transaction.
// Amounts must match exactly; the payer phone must match when reported.
func (c *Coordinator) validate(tx *models.Transaction, cb Callback) string {
	if cb.Amount != tx.Amount {
		return fmt.Sprintf("amount mismatch: expected %d, reported %d", tx.Amount, cb.Amount)
	}
	if tx.CheckoutRequestID == nil || *tx.CheckoutRequestID != cb.CheckoutRequestID {
		return "checkout request id mismatch"
	}
	if cb.PhoneNumber != "" && cb.PhoneNumber != tx.PhoneNumber {
		return "phone number mismatch"
	}
	return ""
}

// Poll refreshes a pending transaction from the gateway. It is the fallback
// for lost callbacks and also drives expiry when the transaction is overdue.
func (c *Coordinator) Poll(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	tx, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if tx.Status != models.TransactionPending || tx.CheckoutRequestID == nil {
		return tx, nil
	}

	res, err := c.gateway.QueryStatus(ctx, *tx.CheckoutRequestID)
	if err != nil {
		// Confirmation-path errors are not retried; the sweep picks the
		// transaction up again.
		return tx, err
	}

	switch res.Status {
	case GatewayCompleted:
		if err := c.complete(ctx, tx, "", res.Description); err != nil {
			return tx, err
		}
	case GatewayFailed:
		if err := c.fail(ctx, tx.ID, res.Description); err != nil {
			return tx, err
		}
	case GatewayPending:
		if c.overdue(tx) {
			if err := c.expire(ctx, tx.ID); err != nil {
				return tx, err
			}
		}
	}

	return c.store.GetByID(ctx, id)
}

// ExpireStale resolves transactions stuck past the pending timeout. Pending
// transactions are re-queried at the gateway first, so a confirmation lost to
// a crash between the gateway call and the local transition is still applied.
// Returns the number of transactions moved to a terminal state.
func (c *Coordinator) ExpireStale(ctx context.Context) (int, error) {
	cutoff := c.now().Add(-c.pendingTimeout)
	stuck, err := c.store.ListUnresolved(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range stuck {
		tx := &stuck[i]

		if tx.Status == models.TransactionInitiated || tx.CheckoutRequestID == nil {
			// Initiation never got an acknowledged reference; nothing to query.
			err := c.store.CompareAndTransition(ctx, tx.ID, tx.Status, models.TransactionExpired,
				map[string]interface{}{"result_desc": "initiation not acknowledged within window"})
			if err == nil {
				resolved++
			} else if !errors.Is(err, ErrStaleState) {
				c.log.Error("failed to expire unacknowledged transaction",
					zap.String("transaction_id", tx.ID.String()), zap.Error(err))
			}
			continue
		}

		res, err := c.gateway.QueryStatus(ctx, *tx.CheckoutRequestID)
		if err != nil {
			c.log.Warn("gateway query failed during sweep",
				zap.String("transaction_id", tx.ID.String()), zap.Error(err))
			continue
		}

		switch res.Status {
		case GatewayCompleted:
			err = c.complete(ctx, tx, "", res.Description)
		case GatewayFailed:
			err = c.fail(ctx, tx.ID, res.Description)
		case GatewayPending:
			err = c.expire(ctx, tx.ID)
		}
		if err != nil {
			c.log.Error("sweep failed to resolve transaction",
				zap.String("transaction_id", tx.ID.String()), zap.Error(err))
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (c *Coordinator) complete(ctx context.Context, tx *models.Transaction, receipt, desc string) error {
	now := c.now().UTC()
	fields := map[string]interface{}{
		"result_desc":  desc,
		"completed_at": &now,
	}
	if receipt != "" {
		fields["mpesa_receipt"] = receipt
	}

	err := c.store.CompareAndTransition(ctx, tx.ID, models.TransactionPending, models.TransactionCompleted, fields)
	if errors.Is(err, ErrStaleState) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.activator.Activate(ctx, tx.TicketID, receipt); err != nil && !errors.Is(err, ErrAlreadyActivated) {
		return err
	}
	return nil
}

func (c *Coordinator) fail(ctx context.Context, id uuid.UUID, desc string) error {
	err := c.store.CompareAndTransition(ctx, id, models.TransactionPending, models.TransactionFailed,
		map[string]interface{}{"result_desc": desc})
	if errors.Is(err, ErrStaleState) {
		return nil
	}
	return err
}

func (c *Coordinator) forceFail(ctx context.Context, id uuid.UUID, from, desc string) error {
	err := c.store.CompareAndTransition(ctx, id, from, models.TransactionFailed,
		map[string]interface{}{"result_desc": desc})
	if errors.Is(err, ErrStaleState) {
		return nil
	}
	return err
}

func (c *Coordinator) expire(ctx context.Context, id uuid.UUID) error {
	err := c.store.CompareAndTransition(ctx, id, models.TransactionPending, models.TransactionExpired,
		map[string]interface{}{"result_desc": "no confirmation within window"})
	if errors.Is(err, ErrStaleState) {
		return nil
	}
	return err
}

func (c *Coordinator) overdue(tx *models.Transaction) bool {
	return c.now().Sub(tx.UpdatedAt) > c.pendingTimeout
}
