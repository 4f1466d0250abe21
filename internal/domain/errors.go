package domain

import (
	"errors"
	"fmt"
)

// VenueError wraps a failure from the venue client with a transient/permanent
// classification. The executor retries transient errors only.
type VenueError struct {
	Op        string // venue operation: "submit_order", "get_balance", ...
	Transient bool
	Err       error
}

func (e *VenueError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("venue %s (%s): %v", e.Op, class, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// NewTransientVenueError marks err as retryable (network, timeout, rate limit,
// 5xx class).
func NewTransientVenueError(op string, err error) error {
	return &VenueError{Op: op, Transient: true, Err: err}
}

// NewPermanentVenueError marks err as non-retryable (rejected order, invalid
// market, 4xx class).
func NewPermanentVenueError(op string, err error) error {
	return &VenueError{Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err is a venue error worth retrying.
// Unclassified errors are treated as permanent: never resubmit blindly.
func IsTransient(err error) bool {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Transient
	}
	return false
}

var (
	// ErrValidation marks malformed snapshots or config: drop the cycle, no retry.
	ErrValidation = errors.New("validation error")

	// ErrPositionExists is returned by the ledger when a market already has an
	// open position (no pyramiding).
	ErrPositionExists = errors.New("position already open for market")

	// ErrPositionNotFound is returned when closing a market with no open position.
	ErrPositionNotFound = errors.New("no open position for market")

	// ErrPersistence marks a storage failure for a trade that corresponds to a
	// real fill. Escalates to a fatal alert if retries exhaust.
	ErrPersistence = errors.New("persistence error")
)
