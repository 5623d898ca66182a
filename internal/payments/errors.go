package payments

import "errors"

var (
	// ErrNotFound is returned when a transaction lookup misses.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicateReference is returned when a gateway reference is already
	// bound to another transaction.
	ErrDuplicateReference = errors.New("duplicate gateway reference")

	// ErrStaleState is returned by a conditional update whose expected status
	// no longer matches. Callers treat it as a no-op.
	ErrStaleState = errors.New("transaction state changed concurrently")

	// ErrGatewayUnavailable marks transient gateway failures. Retried with
	// backoff during initiation only.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrInvalidPhoneNumber is surfaced to the user and never retried.
	ErrInvalidPhoneNumber = errors.New("invalid phone number")

	// ErrInvalidAmount rejects totals the provider cannot charge exactly.
	// M-Pesa bills whole shillings, so amounts must be a multiple of 100
	// cents. Never retried.
	ErrInvalidAmount = errors.New("amount not chargeable in whole shillings")

	// ErrValidationMismatch marks a confirmation whose amount, reference or
	// phone number disagrees with the stored transaction. The transaction is
	// forced to failed.
	ErrValidationMismatch = errors.New("confirmation does not match transaction")

	// ErrAlreadyActivated means the ticket was activated by an earlier
	// confirmation. Callers treat it as success.
	ErrAlreadyActivated = errors.New("ticket already activated")
)
