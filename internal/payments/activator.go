package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/models"
)

// Activator marks tickets paid exactly once. The unpaid->paid flip is a
// conditional update, so two confirmations racing on the same ticket can only
// activate it once; the loser sees ErrAlreadyActivated.
type Activator struct {
	db         *gorm.DB
	signingKey []byte
}

func NewActivator(db *gorm.DB, signingKey []byte) *Activator {
	return &Activator{db: db, signingKey: signingKey}
}

func (a *Activator) Activate(ctx context.Context, ticketID uuid.UUID, receipt string) error {
	var ticket models.Ticket
	if err := a.db.WithContext(ctx).First(&ticket, "id = ?", ticketID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		return err
	}

	if ticket.PaymentStatus == models.TicketPaid {
		return ErrAlreadyActivated
	}

	credential, err := BuildTicketCredential(ticket.ID, ticket.EventID, a.signingKey)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"payment_status": models.TicketPaid,
		"qr_data":        credential,
		"purchased_at":   &now,
		"updated_at":     now,
	}
	if receipt != "" {
		fields["mpesa_receipt"] = receipt
	}

	result := a.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND payment_status = ?", ticketID, models.TicketUnpaid).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyActivated
	}
	return nil
}
