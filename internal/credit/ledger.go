// Package credit implements the tenant credit ledger: atomic
// check-and-deduct and refund over the two per-tenant pools.
//
// The monthly pool is a quota whose usage is computed from run history;
// the purchased pool is a decrementing balance column. Refunding a monthly
// charge therefore means zeroing the run's credits_from_monthly field (done
// by the caller), while refunding a purchased charge goes through Refund.
package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/bargom/runforge/internal/database/repository"
)

// Split describes how a deduction was drawn from the two pools.
type Split struct {
	FromMonthly   int64 `json:"fromMonthly"`
	FromPurchased int64 `json:"fromPurchased"`
}

// Total returns the full deducted amount.
func (s Split) Total() int64 {
	return s.FromMonthly + s.FromPurchased
}

// Ledger performs credit operations against a tenant's pools. All mutating
// methods must run inside a transaction: CheckAndDeduct takes an exclusive
// lock on the tenant row and relies on the transaction to hold it for the
// duration of the read-then-write sequence.
type Ledger struct {
	repos *repository.Repositories
	now   func() time.Time
}

// NewLedger creates a Ledger over the given repositories. Bind the
// repositories to a transaction first for mutating calls.
func NewLedger(repos *repository.Repositories) *Ledger {
	return &Ledger{repos: repos, now: time.Now}
}

// NewLedgerWithClock creates a Ledger with a custom clock, for tests.
func NewLedgerWithClock(repos *repository.Repositories, now func() time.Time) *Ledger {
	return &Ledger{repos: repos, now: now}
}

// PeriodStart returns the start of the calendar month containing t, in UTC.
// The boundary is strict: a run created one instant before it does not
// count against the current period.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CheckAndDeduct draws amount credits from the tenant's pools, monthly
// first, and returns the split. The whole request is rejected when the
// remainder exceeds the purchased balance; no partial deduction happens.
//
// Test runs are metered at zero: the split is empty and neither pool is
// read or written, matching their exclusion from the monthly-usage sum.
func (l *Ledger) CheckAndDeduct(ctx context.Context, tenantID string, amount int64, isTestRun bool) (Split, error) {
	if amount < 0 {
		return Split{}, fmt.Errorf("deduction amount must not be negative, got %d", amount)
	}
	if isTestRun || amount == 0 {
		return Split{}, nil
	}

	// Exclusive lock: concurrent deductions for this tenant serialize here
	// and never observe a stale balance.
	tenant, err := l.repos.Tenants.GetForUpdate(ctx, tenantID)
	if err != nil {
		return Split{}, fmt.Errorf("locking tenant %s: %w", tenantID, err)
	}

	used, err := l.repos.Runs.SumMonthlyCreditsSince(ctx, tenantID, PeriodStart(l.now()))
	if err != nil {
		return Split{}, err
	}

	remaining := tenant.MonthlyCredits - used
	if remaining < 0 {
		remaining = 0
	}

	split := Split{FromMonthly: amount}
	if split.FromMonthly > remaining {
		split.FromMonthly = remaining
	}
	split.FromPurchased = amount - split.FromMonthly

	if split.FromPurchased > tenant.PurchasedCredits {
		return Split{}, &InsufficientCreditsError{
			TenantID:         tenantID,
			Required:         amount,
			MonthlyRemaining: remaining,
			PurchasedBalance: tenant.PurchasedCredits,
		}
	}

	if split.FromPurchased > 0 {
		if err := l.repos.Tenants.AdjustPurchasedCredits(ctx, tenantID, -split.FromPurchased); err != nil {
			return Split{}, fmt.Errorf("deducting purchased credits: %w", err)
		}
	}

	return split, nil
}

// Refund returns previously deducted purchased credits to the tenant.
// Monthly amounts are refunded by the caller zeroing the run's
// credits_from_monthly field, not through this operation.
func (l *Ledger) Refund(ctx context.Context, tenantID string, purchasedAmount int64) error {
	if purchasedAmount < 0 {
		return fmt.Errorf("refund amount must not be negative, got %d", purchasedAmount)
	}
	if purchasedAmount == 0 {
		return nil
	}
	if err := l.repos.Tenants.AdjustPurchasedCredits(ctx, tenantID, purchasedAmount); err != nil {
		return fmt.Errorf("refunding purchased credits: %w", err)
	}
	return nil
}

// MonthlyUsed returns the tenant's monthly-pool usage for the current period.
func (l *Ledger) MonthlyUsed(ctx context.Context, tenantID string) (int64, error) {
	return l.repos.Runs.SumMonthlyCreditsSince(ctx, tenantID, PeriodStart(l.now()))
}
