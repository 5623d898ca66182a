package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wachira567/eventhub-backend/internal/models"
)

type fakeStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*models.Transaction
	byRef map[string]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:  make(map[uuid.UUID]*models.Transaction),
		byRef: make(map[string]uuid.UUID),
	}
}

func (s *fakeStore) Create(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.CheckoutRequestID != nil {
		if _, ok := s.byRef[*tx.CheckoutRequestID]; ok {
			return ErrDuplicateReference
		}
		s.byRef[*tx.CheckoutRequestID] = tx.ID
	}
	cp := *tx
	s.byID[tx.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *fakeStore) GetByCheckoutRequestID(_ context.Context, ref string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *fakeStore) CompareAndTransition(_ context.Context, id uuid.UUID, expected, next string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if tx.Status != expected {
		return ErrStaleState
	}

	tx.Status = next
	tx.UpdatedAt = time.Now().UTC()
	for k, v := range fields {
		switch k {
		case "checkout_request_id":
			ref := v.(string)
			if existing, ok := s.byRef[ref]; ok && existing != id {
				return ErrDuplicateReference
			}
			tx.CheckoutRequestID = &ref
			s.byRef[ref] = id
		case "merchant_request_id":
			tx.MerchantRequestID = v.(string)
		case "mpesa_receipt":
			tx.MpesaReceipt = v.(string)
		case "result_desc":
			tx.ResultDesc = v.(string)
		case "completed_at":
			tx.CompletedAt = v.(*time.Time)
		}
	}
	return nil
}

func (s *fakeStore) ListUnresolved(_ context.Context, olderThan time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, tx := range s.byID {
		if models.TerminalStatus(tx.Status) {
			continue
		}
		if tx.UpdatedAt.Before(olderThan) {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (s *fakeStore) status(t *testing.T, id uuid.UUID) string {
	t.Helper()
	tx, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	return tx.Status
}

type fakeGateway struct {
	mu            sync.Mutex
	initiateErrs  []error
	initiateCalls int
	result        InitiateResult
	queryResult   *QueryResult
	queryErr      error
}

func (g *fakeGateway) Initiate(_ context.Context, _ int64, _, _ string) (*InitiateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	call := g.initiateCalls
	g.initiateCalls++
	if call < len(g.initiateErrs) && g.initiateErrs[call] != nil {
		return nil, g.initiateErrs[call]
	}
	res := g.result
	return &res, nil
}

func (g *fakeGateway) QueryStatus(_ context.Context, _ string) (*QueryResult, error) {
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	res := *g.queryResult
	return &res, nil
}

type fakeActivator struct {
	mu        sync.Mutex
	activated map[uuid.UUID]int
}

func newFakeActivator() *fakeActivator {
	return &fakeActivator{activated: make(map[uuid.UUID]int)}
}

func (a *fakeActivator) Activate(_ context.Context, ticketID uuid.UUID, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activated[ticketID]++
	if a.activated[ticketID] > 1 {
		return ErrAlreadyActivated
	}
	return nil
}

func (a *fakeActivator) count(ticketID uuid.UUID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activated[ticketID]
}

func newTestCoordinator(store *fakeStore, gateway *fakeGateway, activator *fakeActivator) *Coordinator {
	c := NewCoordinator(store, gateway, activator, zap.NewNop(), CoordinatorConfig{
		PendingTimeout:  time.Minute,
		InitiateRetries: 3,
		InitiateBackoff: time.Millisecond,
	})
	return c
}

func seedTransaction(t *testing.T, store *fakeStore, status string, ref string) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ID:          uuid.New(),
		Quantity:    1,
		Amount:      50000,
		PhoneNumber: "254700000000",
		Status:      status,
		UserID:      uuid.New(),
		EventID:     uuid.New(),
		TicketID:    uuid.New(),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if ref != "" {
		tx.CheckoutRequestID = &ref
	}
	require.NoError(t, store.Create(context.Background(), tx))
	return tx
}

func successCallback(ref string) Callback {
	return Callback{
		CheckoutRequestID: ref,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		Amount:            50000,
		MpesaReceipt:      "QGR7TEST11",
		PhoneNumber:       "254700000000",
	}
}

func TestCoordinator_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns reference and moves to pending", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{result: InitiateResult{CheckoutRequestID: "ABC123", MerchantRequestID: "M-1"}}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionInitiated, "")
		require.NoError(t, coordinator.Initiate(ctx, tx))

		stored, err := store.GetByID(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, models.TransactionPending, stored.Status)
		require.NotNil(t, stored.CheckoutRequestID)
		require.Equal(t, "ABC123", *stored.CheckoutRequestID)
		require.Equal(t, "M-1", stored.MerchantRequestID)
	})

	t.Run("retries transient gateway errors", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{
			initiateErrs: []error{ErrGatewayUnavailable, ErrGatewayUnavailable},
			result:       InitiateResult{CheckoutRequestID: "ABC124"},
		}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionInitiated, "")
		require.NoError(t, coordinator.Initiate(ctx, tx))
		require.Equal(t, 3, gateway.initiateCalls)
		require.Equal(t, models.TransactionPending, store.status(t, tx.ID))
	})

	t.Run("gives up after bounded retries and fails the transaction", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{
			initiateErrs: []error{ErrGatewayUnavailable, ErrGatewayUnavailable, ErrGatewayUnavailable},
		}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionInitiated, "")
		err := coordinator.Initiate(ctx, tx)
		require.ErrorIs(t, err, ErrGatewayUnavailable)
		require.Equal(t, 3, gateway.initiateCalls)
		require.Equal(t, models.TransactionFailed, store.status(t, tx.ID))
	})

	t.Run("reports the durable state when the row moved during initiation", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{result: InitiateResult{CheckoutRequestID: "ABC138"}}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionInitiated, "")
		// The sweep resolves the row while the gateway call is in flight.
		require.NoError(t, store.CompareAndTransition(ctx, tx.ID, models.TransactionInitiated, models.TransactionExpired, nil))

		require.NoError(t, coordinator.Initiate(ctx, tx))
		require.Equal(t, models.TransactionExpired, tx.Status)
		require.Nil(t, tx.CheckoutRequestID)
		require.Equal(t, models.TransactionExpired, store.status(t, tx.ID))
	})

	t.Run("does not retry invalid phone numbers", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{initiateErrs: []error{ErrInvalidPhoneNumber}}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionInitiated, "")
		err := coordinator.Initiate(ctx, tx)
		require.ErrorIs(t, err, ErrInvalidPhoneNumber)
		require.Equal(t, 1, gateway.initiateCalls)
		require.Equal(t, models.TransactionFailed, store.status(t, tx.ID))
	})
}

func TestCoordinator_HandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("success completes and activates exactly once", func(t *testing.T) {
		store := newFakeStore()
		activator := newFakeActivator()
		coordinator := newTestCoordinator(store, &fakeGateway{}, activator)

		tx := seedTransaction(t, store, models.TransactionPending, "ABC123")
		require.NoError(t, coordinator.HandleCallback(ctx, successCallback("ABC123")))

		stored, err := store.GetByID(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, models.TransactionCompleted, stored.Status)
		require.Equal(t, "QGR7TEST11", stored.MpesaReceipt)
		require.NotNil(t, stored.CompletedAt)
		require.Equal(t, 1, activator.count(tx.TicketID))

		// Identical re-delivery is acknowledged without re-activating.
		require.NoError(t, coordinator.HandleCallback(ctx, successCallback("ABC123")))
		require.Equal(t, models.TransactionCompleted, store.status(t, tx.ID))
		require.Equal(t, 1, activator.count(tx.TicketID))
	})

	t.Run("many duplicate deliveries still activate once", func(t *testing.T) {
		store := newFakeStore()
		activator := newFakeActivator()
		coordinator := newTestCoordinator(store, &fakeGateway{}, activator)

		tx := seedTransaction(t, store, models.TransactionPending, "ABC125")

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = coordinator.HandleCallback(ctx, successCallback("ABC125"))
			}()
		}
		wg.Wait()

		require.Equal(t, models.TransactionCompleted, store.status(t, tx.ID))
		require.Equal(t, 1, activator.count(tx.TicketID))
	})

	t.Run("amount mismatch forces failed and never activates", func(t *testing.T) {
		store := newFakeStore()
		activator := newFakeActivator()
		coordinator := newTestCoordinator(store, &fakeGateway{}, activator)

		tx := seedTransaction(t, store, models.TransactionPending, "ABC126")

		cb := successCallback("ABC126")
		cb.Amount = 40000
		err := coordinator.HandleCallback(ctx, cb)
		require.ErrorIs(t, err, ErrValidationMismatch)
		require.Equal(t, models.TransactionFailed, store.status(t, tx.ID))
		require.Equal(t, 0, activator.count(tx.TicketID))
	})

	t.Run("phone mismatch forces failed", func(t *testing.T) {
		store := newFakeStore()
		activator := newFakeActivator()
		coordinator := newTestCoordinator(store, &fakeGateway{}, activator)

		tx := seedTransaction(t, store, models.TransactionPending, "ABC127")

		cb := successCallback("ABC127")
		cb.PhoneNumber = "254711111111"
		err := coordinator.HandleCallback(ctx, cb)
		require.ErrorIs(t, err, ErrValidationMismatch)
		require.Equal(t, models.TransactionFailed, store.status(t, tx.ID))
		require.Equal(t, 0, activator.count(tx.TicketID))
	})

	t.Run("provider failure marks failed", func(t *testing.T) {
		store := newFakeStore()
		activator := newFakeActivator()
		coordinator := newTestCoordinator(store, &fakeGateway{}, activator)

		tx := seedTransaction(t, store, models.TransactionPending, "ABC128")

		cb := Callback{CheckoutRequestID: "ABC128", ResultCode: 1032, ResultDesc: "Request cancelled by user"}
		require.NoError(t, coordinator.HandleCallback(ctx, cb))
		require.Equal(t, models.TransactionFailed, store.status(t, tx.ID))
		require.Equal(t, "Request cancelled by user", mustGet(t, store, tx.ID).ResultDesc)
		require.Equal(t, 0, activator.count(tx.TicketID))
	})

	t.Run("unknown reference", func(t *testing.T) {
		store := newFakeStore()
		coordinator := newTestCoordinator(store, &fakeGateway{}, newFakeActivator())

		err := coordinator.HandleCallback(ctx, successCallback("NOPE"))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("late callback after expiry is a no-op", func(t *testing.T) {
		store := newFakeStore()
		activator := newFakeActivator()
		coordinator := newTestCoordinator(store, &fakeGateway{}, activator)

		tx := seedTransaction(t, store, models.TransactionExpired, "ABC129")

		require.NoError(t, coordinator.HandleCallback(ctx, successCallback("ABC129")))
		require.Equal(t, models.TransactionExpired, store.status(t, tx.ID))
		require.Equal(t, 0, activator.count(tx.TicketID))
	})
}

func TestCoordinator_Poll(t *testing.T) {
	ctx := context.Background()

	t.Run("completed at gateway completes locally", func(t *testing.T) {
		store := newFakeStore()
		activator := newFakeActivator()
		gateway := &fakeGateway{queryResult: &QueryResult{Status: GatewayCompleted, Description: "processed"}}
		coordinator := newTestCoordinator(store, gateway, activator)

		tx := seedTransaction(t, store, models.TransactionPending, "ABC130")

		polled, err := coordinator.Poll(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, models.TransactionCompleted, polled.Status)
		require.Equal(t, 1, activator.count(tx.TicketID))
	})

	t.Run("still pending within window stays pending", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{queryResult: &QueryResult{Status: GatewayPending}}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionPending, "ABC131")

		polled, err := coordinator.Poll(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, models.TransactionPending, polled.Status)
	})

	t.Run("still pending past window expires exactly once", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{queryResult: &QueryResult{Status: GatewayPending}}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionPending, "ABC132")
		coordinator.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

		polled, err := coordinator.Poll(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, models.TransactionExpired, polled.Status)

		// A second overdue poll finds a terminal state and does nothing.
		polled, err = coordinator.Poll(ctx, tx.ID)
		require.NoError(t, err)
		require.Equal(t, models.TransactionExpired, polled.Status)
	})

	t.Run("gateway error surfaces without state change", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{queryErr: ErrGatewayUnavailable}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionPending, "ABC133")

		_, err := coordinator.Poll(ctx, tx.ID)
		require.ErrorIs(t, err, ErrGatewayUnavailable)
		require.Equal(t, models.TransactionPending, store.status(t, tx.ID))
	})
}

func TestCoordinator_ExpireStale(t *testing.T) {
	ctx := context.Background()

	t.Run("expires unacknowledged initiations", func(t *testing.T) {
		store := newFakeStore()
		coordinator := newTestCoordinator(store, &fakeGateway{}, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionInitiated, "")
		coordinator.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

		resolved, err := coordinator.ExpireStale(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, resolved)
		require.Equal(t, models.TransactionExpired, store.status(t, tx.ID))
	})

	t.Run("recovers a completion lost before the local transition", func(t *testing.T) {
		store := newFakeStore()
		activator := newFakeActivator()
		gateway := &fakeGateway{queryResult: &QueryResult{Status: GatewayCompleted, Description: "processed"}}
		coordinator := newTestCoordinator(store, gateway, activator)

		tx := seedTransaction(t, store, models.TransactionPending, "ABC134")
		coordinator.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

		resolved, err := coordinator.ExpireStale(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, resolved)
		require.Equal(t, models.TransactionCompleted, store.status(t, tx.ID))
		require.Equal(t, 1, activator.count(tx.TicketID))
	})

	t.Run("expires pending transactions the gateway still reports pending", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{queryResult: &QueryResult{Status: GatewayPending}}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionPending, "ABC135")
		coordinator.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

		resolved, err := coordinator.ExpireStale(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, resolved)
		require.Equal(t, models.TransactionExpired, store.status(t, tx.ID))
	})

	t.Run("skips transactions the gateway cannot answer for", func(t *testing.T) {
		store := newFakeStore()
		gateway := &fakeGateway{queryErr: ErrGatewayUnavailable}
		coordinator := newTestCoordinator(store, gateway, newFakeActivator())

		tx := seedTransaction(t, store, models.TransactionPending, "ABC136")
		coordinator.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

		resolved, err := coordinator.ExpireStale(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, resolved)
		require.Equal(t, models.TransactionPending, store.status(t, tx.ID))
	})
}

func TestFakeStore_CompareAndTransitionContract(t *testing.T) {
	// The store contract the coordinator depends on: a mismatched expected
	// status is a typed no-op, never a state change.
	ctx := context.Background()
	store := newFakeStore()
	tx := seedTransaction(t, store, models.TransactionCompleted, "ABC137")

	err := store.CompareAndTransition(ctx, tx.ID, models.TransactionPending, models.TransactionFailed, nil)
	require.ErrorIs(t, err, ErrStaleState)
	require.Equal(t, models.TransactionCompleted, store.status(t, tx.ID))

	err = store.CompareAndTransition(ctx, uuid.New(), models.TransactionPending, models.TransactionFailed, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func mustGet(t *testing.T, store *fakeStore, id uuid.UUID) *models.Transaction {
	t.Helper()
	tx, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return tx
}
