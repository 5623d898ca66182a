package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/models"
	"github.com/wachira567/eventhub-backend/internal/payments"
)

// TransactionStore is the Postgres implementation of the coordinator's
// transaction persistence. The unique index on checkout_request_id enforces
// one transaction per gateway reference; compare-and-transition is a single
// conditional UPDATE, which acts as a per-row lock under concurrent
// confirmations.
type TransactionStore struct {
	db *gorm.DB
}

func NewTransactionStore(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx *models.Transaction) error {
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return payments.ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (s *TransactionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payments.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *TransactionStore) GetByCheckoutRequestID(ctx context.Context, ref string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).First(&tx, "checkout_request_id = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payments.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *TransactionStore) CompareAndTransition(ctx context.Context, id uuid.UUID, expected, next string, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     next,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return payments.ErrDuplicateReference
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return payments.ErrStaleState
	}
	return nil
}

func (s *TransactionStore) ListUnresolved(ctx context.Context, olderThan time.Time) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{models.TransactionInitiated, models.TransactionPending}, olderThan).
		Order("updated_at ASC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
