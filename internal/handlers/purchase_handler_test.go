package handlers

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/models"
	"github.com/wachira567/eventhub-backend/internal/payments"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, WithoutReturning: true}), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	return gormDB, mock
}

func purchasePair() (*models.Ticket, *models.Transaction) {
	ticket := &models.Ticket{
		ID:           uuid.New(),
		TicketNumber: newTicketNumber(),
		Quantity:     2,
		TotalPrice:   100000,
		EventID:      uuid.New(),
		UserID:       uuid.New(),
		TicketTypeID: uuid.New(),
	}
	txn := &models.Transaction{
		ID:           uuid.New(),
		Quantity:     ticket.Quantity,
		Amount:       ticket.TotalPrice,
		PhoneNumber:  "254700000000",
		Status:       models.TransactionInitiated,
		UserID:       ticket.UserID,
		EventID:      ticket.EventID,
		TicketTypeID: ticket.TicketTypeID,
		TicketID:     ticket.ID,
	}
	return ticket, txn
}

// The reservation, the ticket and the transaction row must commit or roll
// back together on one connection.
func TestPersistPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("commits the reservation and both rows together", func(t *testing.T) {
		gormDB, mock := newMockDB(t)
		ticket, txn := purchasePair()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "ticket_types"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "tickets"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "transactions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, persistPurchase(ctx, gormDB, ticket, txn))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sold out rolls back without inserting", func(t *testing.T) {
		gormDB, mock := newMockDB(t)
		ticket, txn := purchasePair()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "ticket_types"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := persistPurchase(ctx, gormDB, ticket, txn)
		require.ErrorIs(t, err, errSoldOut)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed transaction insert rolls back the reservation", func(t *testing.T) {
		gormDB, mock := newMockDB(t)
		ticket, txn := purchasePair()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "ticket_types"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "tickets"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "transactions"`).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		err := persistPurchase(ctx, gormDB, ticket, txn)
		require.ErrorIs(t, err, payments.ErrDuplicateReference)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
