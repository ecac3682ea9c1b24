package recurring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclosion/backend/internal/database"
)

func newTestCalculator(t *testing.T) (*Calculator, *Store) {
	t.Helper()
	db := database.MustOpenForTest()
	t.Cleanup(func() { db.Close() })
	store := NewStore(db)
	return NewCalculator(store), store
}

func TestRoundMonthlyRate(t *testing.T) {
	assert.Equal(t, 0.0, RoundMonthlyRate(0))
	assert.Equal(t, 0.0, RoundMonthlyRate(-5))
	assert.Equal(t, 1.0, RoundMonthlyRate(0.42), "small rates floor at $1")
	assert.Equal(t, 3.0, RoundMonthlyRate(2.5), "half rounds up")
	assert.Equal(t, 2.0, RoundMonthlyRate(2.49))
}

func TestRateAfterCatchup(t *testing.T) {
	assert.Equal(t, 10.0, RateAfterCatchup(25, 10), "catch-up drops to ideal")
	assert.Equal(t, 8.0, RateAfterCatchup(8, 10), "below ideal keeps frozen rate")
}

func TestCalculateYearlyCatchUp(t *testing.T) {
	calc, _ := newTestCalculator(t)

	// $600/year, due in 6 months, $150 already saved: ($600-$150)/6 = $75.
	result, err := calc.Calculate(CalculateParams{
		RecurringID:       "rec-1",
		Amount:            600,
		FrequencyMonths:   12,
		MonthsUntilDue:    6,
		RolloverAmount:    150,
		BudgetedThisMonth: 75,
		NextDueDate:       "2025-09-01",
		CurrentMonth:      "2025-03",
	})
	require.NoError(t, err)
	assert.Equal(t, 75.0, result.FrozenTarget)
	assert.Equal(t, 150.0, result.BalanceAtStart)
	assert.Equal(t, 75.0, result.ContributedThisMonth)
	assert.InDelta(t, 100.0, result.MonthlyProgressPercent, 0.001)
	assert.True(t, result.WasRecalculated)
}

func TestCalculateIsStableWithinMonth(t *testing.T) {
	calc, _ := newTestCalculator(t)

	params := CalculateParams{
		RecurringID:     "rec-1",
		Amount:          600,
		FrequencyMonths: 12,
		MonthsUntilDue:  6,
		RolloverAmount:  150,
		NextDueDate:     "2025-09-01",
		CurrentMonth:    "2025-03",
	}

	first, err := calc.Calculate(params)
	require.NoError(t, err)
	assert.True(t, first.WasRecalculated)

	// Same month, same fingerprint: the freeze holds even though the
	// due date is now one month closer in months_until_due terms.
	params.MonthsUntilDue = 5
	second, err := calc.Calculate(params)
	require.NoError(t, err)
	assert.False(t, second.WasRecalculated)
	assert.Equal(t, first.FrozenTarget, second.FrozenTarget)
}

func TestCalculateRefreezesOnNewMonth(t *testing.T) {
	calc, _ := newTestCalculator(t)

	params := CalculateParams{
		RecurringID:     "rec-1",
		Amount:          600,
		FrequencyMonths: 12,
		MonthsUntilDue:  6,
		RolloverAmount:  150,
		NextDueDate:     "2025-09-01",
		CurrentMonth:    "2025-03",
	}
	_, err := calc.Calculate(params)
	require.NoError(t, err)

	params.CurrentMonth = "2025-04"
	params.MonthsUntilDue = 5
	params.RolloverAmount = 225
	result, err := calc.Calculate(params)
	require.NoError(t, err)
	assert.True(t, result.WasRecalculated)
	assert.Equal(t, 75.0, result.FrozenTarget, "(600-225)/5 = 75")
}

func TestCalculateRefreezesOnAmountChange(t *testing.T) {
	calc, _ := newTestCalculator(t)

	params := CalculateParams{
		RecurringID:     "rec-1",
		Amount:          600,
		FrequencyMonths: 12,
		MonthsUntilDue:  6,
		RolloverAmount:  0,
		CurrentMonth:    "2025-03",
	}
	_, err := calc.Calculate(params)
	require.NoError(t, err)

	params.Amount = 720
	result, err := calc.Calculate(params)
	require.NoError(t, err)
	assert.True(t, result.WasRecalculated)
	assert.Equal(t, 120.0, result.FrozenTarget)
}

func TestCalculateSubMonthly(t *testing.T) {
	calc, _ := newTestCalculator(t)

	// $78 weekly: monthly equivalent $78/0.25 = $312.
	result, err := calc.Calculate(CalculateParams{
		RecurringID:     "rec-weekly",
		Amount:          78,
		FrequencyMonths: 0.25,
		RolloverAmount:  0,
		CurrentMonth:    "2025-03",
	})
	require.NoError(t, err)
	assert.Equal(t, 312.0, result.FrozenTarget)
}

func TestCalculateMonthlyShortfall(t *testing.T) {
	calc, _ := newTestCalculator(t)

	result, err := calc.Calculate(CalculateParams{
		RecurringID:     "rec-monthly",
		Amount:          50,
		FrequencyMonths: 1,
		RolloverAmount:  20,
		CurrentMonth:    "2025-03",
	})
	require.NoError(t, err)
	assert.Equal(t, 30.0, result.FrozenTarget)
}

func TestCalculateFullyFunded(t *testing.T) {
	calc, _ := newTestCalculator(t)

	result, err := calc.Calculate(CalculateParams{
		RecurringID:       "rec-funded",
		Amount:            600,
		FrequencyMonths:   12,
		MonthsUntilDue:    6,
		RolloverAmount:    600,
		BudgetedThisMonth: 0,
		CurrentMonth:      "2025-03",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.FrozenTarget)
	assert.Equal(t, 100.0, result.MonthlyProgressPercent, "no target means fully on track")
}

func TestCalculateDueNowUsesOneMonth(t *testing.T) {
	calc, _ := newTestCalculator(t)

	// months_until_due of 0 never divides by zero.
	result, err := calc.Calculate(CalculateParams{
		RecurringID:     "rec-due",
		Amount:          120,
		FrequencyMonths: 3,
		MonthsUntilDue:  0,
		RolloverAmount:  0,
		CurrentMonth:    "2025-03",
	})
	require.NoError(t, err)
	assert.Equal(t, 120.0, result.FrozenTarget)
}

func TestClearFrozenTargets(t *testing.T) {
	calc, store := newTestCalculator(t)

	params := CalculateParams{
		RecurringID:     "rec-1",
		Amount:          600,
		FrequencyMonths: 12,
		MonthsUntilDue:  6,
		RolloverAmount:  0,
		CurrentMonth:    "2025-03",
	}
	_, err := calc.Calculate(params)
	require.NoError(t, err)

	require.NoError(t, store.ClearFrozenTargets())

	stored, err := store.GetFrozenTarget("rec-1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	result, err := calc.Calculate(params)
	require.NoError(t, err)
	assert.True(t, result.WasRecalculated)
}
