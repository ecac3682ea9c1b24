package recurring

import (
	"database/sql"
	"fmt"
	"time"
)

// FrozenTarget is the persisted freeze for one recurring item: the
// locked monthly rate plus the fingerprint of the inputs it was
// computed from. Any fingerprint drift invalidates the freeze.
type FrozenTarget struct {
	RecurringID         string   `json:"recurring_id"`
	CategoryID          string   `json:"category_id,omitempty"`
	FrozenMonthlyTarget float64  `json:"frozen_monthly_target"`
	TargetMonth         string   `json:"target_month"`
	BalanceAtMonthStart float64  `json:"balance_at_month_start"`
	FrozenAmount        float64  `json:"frozen_amount"`
	FrozenFrequency     float64  `json:"frozen_frequency_months"`
	FrozenRollover      *float64 `json:"frozen_rollover_amount,omitempty"`
	FrozenNextDueDate   *string  `json:"frozen_next_due_date,omitempty"`
}

// SetTargetParams carries a new freeze for Store.SetFrozenTarget.
type SetTargetParams struct {
	RecurringID  string
	CategoryID   string
	FrozenTarget float64
	TargetMonth  string
	Amount       float64
	Frequency    float64
	Rollover     float64
	NextDueDate  string
}

// Store persists frozen targets in the categories table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetFrozenTarget returns the stored freeze for a recurring item, or
// nil when none exists or the target was never frozen.
func (s *Store) GetFrozenTarget(recurringID string) (*FrozenTarget, error) {
	var (
		t           FrozenTarget
		categoryID  sql.NullString
		frozen      sql.NullFloat64
		targetMonth sql.NullString
		balance     sql.NullFloat64
		amount      sql.NullFloat64
		frequency   sql.NullFloat64
		rollover    sql.NullFloat64
		nextDue     sql.NullString
	)
	err := s.db.QueryRow(`
        SELECT recurring_id, category_id, frozen_monthly_target, target_month,
            balance_at_month_start, frozen_amount, frozen_frequency_months,
            frozen_rollover_amount, frozen_next_due_date
        FROM categories WHERE recurring_id = ?
    `, recurringID).Scan(&t.RecurringID, &categoryID, &frozen, &targetMonth,
		&balance, &amount, &frequency, &rollover, &nextDue)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read frozen target: %w", err)
	}
	if !frozen.Valid {
		return nil, nil
	}

	t.CategoryID = categoryID.String
	t.FrozenMonthlyTarget = frozen.Float64
	t.TargetMonth = targetMonth.String
	t.BalanceAtMonthStart = balance.Float64
	t.FrozenAmount = amount.Float64
	t.FrozenFrequency = frequency.Float64
	if rollover.Valid {
		v := rollover.Float64
		t.FrozenRollover = &v
	}
	if nextDue.Valid {
		v := nextDue.String
		t.FrozenNextDueDate = &v
	}
	return &t, nil
}

// SetFrozenTarget upserts the freeze for a recurring item.
func (s *Store) SetFrozenTarget(p SetTargetParams) error {
	now := time.Now().UTC()
	var nextDue any
	if p.NextDueDate != "" {
		nextDue = p.NextDueDate
	}
	_, err := s.db.Exec(`
        INSERT INTO categories (recurring_id, category_id, amount,
            frequency_months, frozen_monthly_target, target_month,
            balance_at_month_start, frozen_amount, frozen_frequency_months,
            frozen_rollover_amount, frozen_next_due_date, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(recurring_id) DO UPDATE SET
            category_id = excluded.category_id,
            amount = excluded.amount,
            frequency_months = excluded.frequency_months,
            frozen_monthly_target = excluded.frozen_monthly_target,
            target_month = excluded.target_month,
            balance_at_month_start = excluded.balance_at_month_start,
            frozen_amount = excluded.frozen_amount,
            frozen_frequency_months = excluded.frozen_frequency_months,
            frozen_rollover_amount = excluded.frozen_rollover_amount,
            frozen_next_due_date = excluded.frozen_next_due_date,
            updated_at = excluded.updated_at
    `, p.RecurringID, p.CategoryID, p.Amount, p.Frequency, p.FrozenTarget,
		p.TargetMonth, p.Rollover, p.Amount, p.Frequency, p.Rollover,
		nextDue, now, now)
	if err != nil {
		return fmt.Errorf("failed to store frozen target: %w", err)
	}
	return nil
}

// ListFrozenTargets returns every stored freeze, ordered by recurring
// id for stable output.
func (s *Store) ListFrozenTargets() ([]FrozenTarget, error) {
	rows, err := s.db.Query(`
        SELECT recurring_id, category_id, frozen_monthly_target, target_month,
            balance_at_month_start, frozen_amount, frozen_frequency_months,
            frozen_rollover_amount, frozen_next_due_date
        FROM categories
        WHERE frozen_monthly_target IS NOT NULL
        ORDER BY recurring_id
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to list frozen targets: %w", err)
	}
	defer rows.Close()

	var targets []FrozenTarget
	for rows.Next() {
		var (
			t           FrozenTarget
			categoryID  sql.NullString
			targetMonth sql.NullString
			balance     sql.NullFloat64
			amount      sql.NullFloat64
			frequency   sql.NullFloat64
			rollover    sql.NullFloat64
			nextDue     sql.NullString
		)
		err := rows.Scan(&t.RecurringID, &categoryID, &t.FrozenMonthlyTarget,
			&targetMonth, &balance, &amount, &frequency, &rollover, &nextDue)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frozen target: %w", err)
		}
		t.CategoryID = categoryID.String
		t.TargetMonth = targetMonth.String
		t.BalanceAtMonthStart = balance.Float64
		t.FrozenAmount = amount.Float64
		t.FrozenFrequency = frequency.Float64
		if rollover.Valid {
			v := rollover.Float64
			t.FrozenRollover = &v
		}
		if nextDue.Valid {
			v := nextDue.String
			t.FrozenNextDueDate = &v
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// ClearFrozenTargets wipes every freeze so the next calculation starts
// from scratch. Used when the balance model changes.
func (s *Store) ClearFrozenTargets() error {
	_, err := s.db.Exec(`
        UPDATE categories SET
            frozen_monthly_target = NULL,
            target_month = NULL,
            balance_at_month_start = NULL,
            frozen_amount = NULL,
            frozen_frequency_months = NULL,
            frozen_rollover_amount = NULL,
            frozen_next_due_date = NULL
    `)
	if err != nil {
		return fmt.Errorf("failed to clear frozen targets: %w", err)
	}
	return nil
}
