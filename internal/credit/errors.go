package credit

import (
	"errors"
	"fmt"
)

// ErrInsufficientCredits is the sentinel for rejected deductions. Use
// errors.Is against it; the concrete *InsufficientCreditsError carries the
// amounts involved.
var ErrInsufficientCredits = errors.New("insufficient credits")

// InsufficientCreditsError reports a deduction that exceeds both pools.
type InsufficientCreditsError struct {
	TenantID         string
	Required         int64
	MonthlyRemaining int64
	PurchasedBalance int64
}

// Error implements the error interface.
func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for tenant %s: required %d, monthly remaining %d, purchased balance %d",
		e.TenantID, e.Required, e.MonthlyRemaining, e.PurchasedBalance)
}

// Unwrap makes errors.Is(err, ErrInsufficientCredits) work.
func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// Available returns the total credits the tenant could still spend.
func (e *InsufficientCreditsError) Available() int64 {
	return e.MonthlyRemaining + e.PurchasedBalance
}
