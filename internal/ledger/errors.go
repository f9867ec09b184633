package ledger

import (
	"errors"
	"fmt"

	"escrowline/internal/domain"
)

// Validation failures. Every mutating operation fails atomically: when one
// of these is returned, no project, vault, or reputation state changed.
var (
	ErrInvalidDeadline        = errors.New("deadline must be in the future")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrIncorrectPaymentAmount = errors.New("incorrect payment amount")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrFeeExceedsMaximum      = errors.New("fee cannot exceed 10%")
	ErrUnknownPaymentToken    = errors.New("unknown payment token")
)

func transitionError(op string, status domain.Status) error {
	return fmt.Errorf("%w: cannot %s from status %s", ErrInvalidStateTransition, op, status)
}
