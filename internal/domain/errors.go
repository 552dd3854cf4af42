package domain

import "errors"

var (
	// ErrLocationNotFound is returned when an order references a location that is
	// absent from the active configuration snapshot. Orders are rejected before dispatch.
	ErrLocationNotFound = errors.New("location not found")
	// ErrConfigInvalid signals a malformed configuration snapshot. On reload the
	// prior snapshot stays active; at process start this is fatal.
	ErrConfigInvalid = errors.New("configuration invalid")
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderExists   = errors.New("order already exists")

	// Provider error taxonomy. Provider clients normalize vendor responses into
	// these sentinels so the dispatcher's retry policy stays vendor-agnostic.
	ErrProviderUnauthorized = errors.New("provider rejected credentials")
	ErrProviderRejected     = errors.New("provider rejected order")
	ErrProviderRateLimited  = errors.New("provider rate limited")
	ErrProviderUnreachable  = errors.New("provider unreachable")

	// ErrInvalidSignature means the webhook payload failed HMAC verification.
	// Unverified payloads are never applied to order state.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrDuplicateEvent marks a webhook already processed under its
	// (provider, event id) idempotency key. Acknowledged as a no-op.
	ErrDuplicateEvent = errors.New("duplicate webhook event")

	// ErrReconcileBusy is returned when a reconciliation run for the same
	// location/provider pair is already in flight.
	ErrReconcileBusy = errors.New("reconciliation already running")

	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Retryable reports whether a provider failure is worth another attempt.
// Rate limits and network failures retry; auth failures and vendor
// rejections need operator attention instead.
func Retryable(err error) bool {
	return errors.Is(err, ErrProviderRateLimited) || errors.Is(err, ErrProviderUnreachable)
}
