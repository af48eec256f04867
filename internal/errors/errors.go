package errors

import (
	"errors"
	"fmt"
)

type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Field + ": " + e.Message
}

// Sentinel kinds for the rate subsystem. Wrap with %w and classify with
// errors.Is at the boundaries.
var (
	// ErrStoreUnavailable marks a transient database failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrProviderUnavailable marks a network/HTTP/parse failure of the
	// external rate provider.
	ErrProviderUnavailable = errors.New("rate provider unavailable")
	// ErrRateMissing marks an exhausted fallback chain.
	ErrRateMissing = errors.New("rate missing")
	// ErrMigrationFailure marks a catastrophic backfill failure.
	ErrMigrationFailure = errors.New("migration failure")
	// ErrConfiguration marks missing or invalid startup configuration.
	ErrConfiguration = errors.New("configuration error")
)

// StoreUnavailable wraps err as a transient store failure.
func StoreUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// ProviderUnavailable wraps err as a provider failure.
func ProviderUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, err)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ErrValidation
	return errors.As(err, &ve)
}
