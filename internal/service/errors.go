package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation          = errors.New("invalid checkout input")
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrCaptureMismatch     = errors.New("captured amount does not match payable total")
	ErrCommit              = errors.New("checkout commit failed")
	ErrPaymentFailed       = errors.New("payment was not completed")
	ErrForbidden           = errors.New("resource belongs to another user")
	IllegalTransitionError = errors.New("illegal transition of checkout status")
)

// CaptureMismatchError reports what the gateway captured against what the
// ledger says should have been collected.
type CaptureMismatchError struct {
	Captured decimal.Decimal
	Expected decimal.Decimal
}

func (e *CaptureMismatchError) Error() string {
	return fmt.Sprintf("%s: captured %s, expected %s", ErrCaptureMismatch, e.Captured.StringFixed(2), e.Expected.StringFixed(2))
}

func (e *CaptureMismatchError) Is(target error) bool {
	return target == ErrCaptureMismatch
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
