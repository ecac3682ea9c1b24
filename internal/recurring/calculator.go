package recurring

import (
	"fmt"
	"time"
)

// A recurring item's monthly savings target is frozen at the start of
// each month so it does not fluctuate as balances move. The freeze is
// invalidated by a new month or by any change to the item's amount,
// frequency, rollover balance, or due date.

// TargetStore is the persistence the calculator needs.
type TargetStore interface {
	GetFrozenTarget(recurringID string) (*FrozenTarget, error)
	SetFrozenTarget(p SetTargetParams) error
}

// CalculateParams are the live inputs for one recurring item.
type CalculateParams struct {
	RecurringID       string
	CategoryID        string
	Amount            float64
	FrequencyMonths   float64
	MonthsUntilDue    float64
	RolloverAmount    float64
	BudgetedThisMonth float64
	NextDueDate       string
	// CurrentMonth defaults to the present month when empty.
	CurrentMonth string
}

// Result is the resolved target plus monthly progress.
type Result struct {
	FrozenTarget           float64 `json:"frozen_target"`
	BalanceAtStart         float64 `json:"balance_at_start"`
	ContributedThisMonth   float64 `json:"contributed_this_month"`
	MonthlyProgressPercent float64 `json:"monthly_progress_percent"`
	WasRecalculated        bool    `json:"was_recalculated"`
}

// Calculator resolves frozen targets against a store.
type Calculator struct {
	store TargetStore
}

func NewCalculator(store TargetStore) *Calculator {
	return &Calculator{store: store}
}

// Calculate returns the frozen target for an item, recomputing and
// re-freezing only when the stored fingerprint no longer matches the
// live inputs. Repeat calls within a month with unchanged inputs are
// stable.
func (c *Calculator) Calculate(p CalculateParams) (Result, error) {
	currentMonth := p.CurrentMonth
	if currentMonth == "" {
		currentMonth = time.Now().UTC().Format("2006-01")
	}

	stored, err := c.store.GetFrozenTarget(p.RecurringID)
	if err != nil {
		return Result{}, err
	}

	if !fingerprintMatches(stored, p, currentMonth) {
		frozen := monthlyTarget(p.Amount, p.FrequencyMonths, p.MonthsUntilDue, p.RolloverAmount)
		err := c.store.SetFrozenTarget(SetTargetParams{
			RecurringID:  p.RecurringID,
			CategoryID:   p.CategoryID,
			FrozenTarget: frozen,
			TargetMonth:  currentMonth,
			Amount:       p.Amount,
			Frequency:    p.FrequencyMonths,
			Rollover:     p.RolloverAmount,
			NextDueDate:  p.NextDueDate,
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to freeze target: %w", err)
		}
		return resolve(frozen, p.RolloverAmount, p.BudgetedThisMonth, true), nil
	}

	return resolve(stored.FrozenMonthlyTarget, derefFloat(stored.FrozenRollover),
		p.BudgetedThisMonth, false), nil
}

// fingerprintMatches reports whether the stored freeze was computed
// from the same inputs for the same month.
func fingerprintMatches(stored *FrozenTarget, p CalculateParams, currentMonth string) bool {
	if stored == nil {
		return false
	}
	return stored.TargetMonth == currentMonth &&
		stored.FrozenAmount == p.Amount &&
		stored.FrozenFrequency == p.FrequencyMonths &&
		stored.FrozenRollover != nil && *stored.FrozenRollover == p.RolloverAmount &&
		derefString(stored.FrozenNextDueDate) == p.NextDueDate
}

// monthlyTarget computes the rate to freeze.
//
// Sub-monthly items use the monthly equivalent: $78 weekly with
// frequency 0.25 needs $312 a month. Monthly items need the shortfall.
// Infrequent items spread the shortfall over the months left until due.
func monthlyTarget(amount, frequencyMonths, monthsUntilDue, startingBalance float64) float64 {
	switch {
	case frequencyMonths < 1:
		monthlyEquivalent := amount / frequencyMonths
		return RoundMonthlyRate(max(0, monthlyEquivalent-startingBalance))
	case frequencyMonths == 1:
		return RoundMonthlyRate(max(0, amount-startingBalance))
	default:
		shortfall := max(0, amount-startingBalance)
		monthsRemaining := max(1, monthsUntilDue)
		if shortfall > 0 {
			return RoundMonthlyRate(shortfall / monthsRemaining)
		}
		return 0
	}
}

func resolve(frozen, balanceAtStart, budgeted float64, recalculated bool) Result {
	contributed := max(0, budgeted)
	progress := 100.0
	if frozen > 0 {
		progress = contributed / frozen * 100
	}
	return Result{
		FrozenTarget:           frozen,
		BalanceAtStart:         balanceAtStart,
		ContributedThisMonth:   contributed,
		MonthlyProgressPercent: progress,
		WasRecalculated:        recalculated,
	}
}

// RoundMonthlyRate rounds a rate to the nearest whole dollar, half up,
// with a $1 floor for any positive rate. Zero or negative rates mean
// fully funded and stay 0.
func RoundMonthlyRate(rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	rounded := float64(int(rate + 0.5))
	if rounded < 1 {
		return 1
	}
	return rounded
}

// RateAfterCatchup is the rate an item settles at once a catch-up
// period ends: items saving above their ideal rate drop back to it,
// everything else keeps its frozen rate.
func RateAfterCatchup(frozenTarget, idealMonthlyRate float64) float64 {
	if frozenTarget > idealMonthlyRate {
		return idealMonthlyRate
	}
	return frozenTarget
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
