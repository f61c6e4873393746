package booking

import "errors"

// Error kinds produced by the reservation lifecycle and the stores behind
// it. Validation errors are expected outcomes and surface to the user as a
// plain chat message; only ErrStorageUnavailable indicates a fault.
var (
	ErrInvalidOrExpiredToken         = errors.New("request token is invalid or expired")
	ErrConflictingPendingReservation = errors.New("a pending reservation already exists for this mobile")
	ErrSlotUnavailable               = errors.New("slot is no longer available")
	ErrAmbiguousState                = errors.New("ambiguous reservation state")
	ErrStorageUnavailable            = errors.New("storage unavailable")
	ErrNotFound                      = errors.New("not found")
)

// IsValidation reports whether err is an expected validation outcome rather
// than a fault.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidOrExpiredToken) ||
		errors.Is(err, ErrConflictingPendingReservation) ||
		errors.Is(err, ErrSlotUnavailable)
}
