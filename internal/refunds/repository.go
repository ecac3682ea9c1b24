package refunds

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/eclosion/backend/internal/core"
)

// Repository stores refunds configuration, saved views, and matches.
// Nothing in here is encrypted; refund metadata references upstream
// transactions by id only.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ============================================================
// Config
// ============================================================

// GetConfig returns the singleton config, materializing the defaults
// row on first access.
func (r *Repository) GetConfig() (Config, error) {
	cfg := Config{
		ReplaceTagByDefault: true,
		AgingWarningDays:    30,
		ShowBadge:           true,
	}
	var replacementTag sql.NullString
	err := r.db.QueryRow(`
        SELECT replacement_tag_id, replace_tag_by_default, aging_warning_days,
            show_badge, hide_matched_transactions, hide_expected_transactions
        FROM refunds_config WHERE id = 1
    `).Scan(&replacementTag, &cfg.ReplaceTagByDefault, &cfg.AgingWarningDays,
		&cfg.ShowBadge, &cfg.HideMatchedTransactions, &cfg.HideExpectedTransactions)
	if err == sql.ErrNoRows {
		now := time.Now().UTC()
		_, err = r.db.Exec(`
            INSERT INTO refunds_config (id, created_at, updated_at) VALUES (1, ?, ?)
        `, now, now)
		if err != nil {
			return cfg, fmt.Errorf("failed to initialize refunds config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read refunds config: %w", err)
	}
	cfg.ReplacementTagID = replacementTag.String
	return cfg, nil
}

// UpdateConfig applies a partial update and returns the result.
func (r *Repository) UpdateConfig(u ConfigUpdate) (Config, error) {
	cfg, err := r.GetConfig()
	if err != nil {
		return cfg, err
	}
	if u.ReplacementTagID != nil {
		cfg.ReplacementTagID = *u.ReplacementTagID
	}
	if u.ReplaceTagByDefault != nil {
		cfg.ReplaceTagByDefault = *u.ReplaceTagByDefault
	}
	if u.AgingWarningDays != nil {
		cfg.AgingWarningDays = *u.AgingWarningDays
	}
	if u.ShowBadge != nil {
		cfg.ShowBadge = *u.ShowBadge
	}
	if u.HideMatchedTransactions != nil {
		cfg.HideMatchedTransactions = *u.HideMatchedTransactions
	}
	if u.HideExpectedTransactions != nil {
		cfg.HideExpectedTransactions = *u.HideExpectedTransactions
	}

	var replacementTag any
	if cfg.ReplacementTagID != "" {
		replacementTag = cfg.ReplacementTagID
	}
	_, err = r.db.Exec(`
        UPDATE refunds_config SET replacement_tag_id = ?,
            replace_tag_by_default = ?, aging_warning_days = ?, show_badge = ?,
            hide_matched_transactions = ?, hide_expected_transactions = ?,
            updated_at = ?
        WHERE id = 1
    `, replacementTag, cfg.ReplaceTagByDefault, cfg.AgingWarningDays,
		cfg.ShowBadge, cfg.HideMatchedTransactions, cfg.HideExpectedTransactions,
		time.Now().UTC())
	if err != nil {
		return cfg, fmt.Errorf("failed to update refunds config: %w", err)
	}
	return cfg, nil
}

// ============================================================
// Saved views
// ============================================================

// GetViews returns all saved views in display order.
func (r *Repository) GetViews() ([]SavedView, error) {
	rows, err := r.db.Query(`
        SELECT id, name, tag_ids, category_ids, sort_order, exclude_from_all
        FROM refunds_saved_views ORDER BY sort_order ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	var views []SavedView
	for rows.Next() {
		var (
			v           SavedView
			tagIDs      string
			categoryIDs sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.Name, &tagIDs, &categoryIDs,
			&v.SortOrder, &v.ExcludeFromAll); err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		if err := json.Unmarshal([]byte(tagIDs), &v.TagIDs); err != nil {
			return nil, fmt.Errorf("failed to decode view tags: %w", err)
		}
		if categoryIDs.Valid {
			if err := json.Unmarshal([]byte(categoryIDs.String), &v.CategoryIDs); err != nil {
				return nil, fmt.Errorf("failed to decode view categories: %w", err)
			}
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// CreateView appends a view at the end of the display order.
func (r *Repository) CreateView(name string, tagIDs, categoryIDs []string) (SavedView, error) {
	view := SavedView{
		ID:          uuid.NewString(),
		Name:        name,
		TagIDs:      tagIDs,
		CategoryIDs: categoryIDs,
	}
	if view.TagIDs == nil {
		view.TagIDs = []string{}
	}

	err := r.db.QueryRow(
		"SELECT COALESCE(MAX(sort_order) + 1, 0) FROM refunds_saved_views",
	).Scan(&view.SortOrder)
	if err != nil {
		return view, fmt.Errorf("failed to compute sort order: %w", err)
	}

	encodedTags, err := json.Marshal(view.TagIDs)
	if err != nil {
		return view, err
	}
	var encodedCats any
	if len(categoryIDs) > 0 {
		raw, err := json.Marshal(categoryIDs)
		if err != nil {
			return view, err
		}
		encodedCats = string(raw)
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(`
        INSERT INTO refunds_saved_views (id, name, tag_ids, category_ids,
            sort_order, exclude_from_all, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, 0, ?, ?)
    `, view.ID, name, string(encodedTags), encodedCats, view.SortOrder, now, now)
	if err != nil {
		return view, fmt.Errorf("failed to create view: %w", err)
	}
	return view, nil
}

// UpdateView applies a partial update. Returns false when the view
// does not exist.
func (r *Repository) UpdateView(viewID string, u ViewUpdate) (bool, error) {
	views, err := r.GetViews()
	if err != nil {
		return false, err
	}
	var current *SavedView
	for i := range views {
		if views[i].ID == viewID {
			current = &views[i]
			break
		}
	}
	if current == nil {
		return false, nil
	}

	if u.Name != nil {
		current.Name = *u.Name
	}
	if u.TagIDs != nil {
		current.TagIDs = *u.TagIDs
	}
	if u.CategoryIDs != nil {
		current.CategoryIDs = *u.CategoryIDs
	}
	if u.SortOrder != nil {
		current.SortOrder = *u.SortOrder
	}
	if u.ExcludeFromAll != nil {
		current.ExcludeFromAll = *u.ExcludeFromAll
	}

	encodedTags, err := json.Marshal(current.TagIDs)
	if err != nil {
		return false, err
	}
	var encodedCats any
	if len(current.CategoryIDs) > 0 {
		raw, err := json.Marshal(current.CategoryIDs)
		if err != nil {
			return false, err
		}
		encodedCats = string(raw)
	}

	_, err = r.db.Exec(`
        UPDATE refunds_saved_views SET name = ?, tag_ids = ?, category_ids = ?,
            sort_order = ?, exclude_from_all = ?, updated_at = ?
        WHERE id = ?
    `, current.Name, string(encodedTags), encodedCats, current.SortOrder,
		current.ExcludeFromAll, time.Now().UTC(), viewID)
	if err != nil {
		return false, fmt.Errorf("failed to update view: %w", err)
	}
	return true, nil
}

// DeleteView removes a view. Matches are untouched; they belong to
// transactions, not views.
func (r *Repository) DeleteView(viewID string) (bool, error) {
	res, err := r.db.Exec("DELETE FROM refunds_saved_views WHERE id = ?", viewID)
	if err != nil {
		return false, fmt.Errorf("failed to delete view: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReorderViews rewrites sort_order to match the given id order. Ids
// not listed keep their position relative to the end.
func (r *Repository) ReorderViews(viewIDs []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i, id := range viewIDs {
		if _, err := tx.Exec(
			"UPDATE refunds_saved_views SET sort_order = ?, updated_at = ? WHERE id = ?",
			i, now, id,
		); err != nil {
			return fmt.Errorf("failed to reorder views: %w", err)
		}
	}
	return tx.Commit()
}

// ============================================================
// Matches
// ============================================================

// GetMatches returns every match, newest first.
func (r *Repository) GetMatches() ([]Match, error) {
	rows, err := r.db.Query(`
        SELECT id, original_transaction_id, refund_transaction_id,
            refund_amount, refund_merchant, refund_date, refund_account,
            skipped, expected_refund, expected_date, expected_account,
            expected_account_id, expected_note, expected_amount, transaction_data
        FROM refunds_matches ORDER BY created_at DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetMatch returns one match by id, nil when absent.
func (r *Repository) GetMatch(matchID string) (*Match, error) {
	row := r.db.QueryRow(`
        SELECT id, original_transaction_id, refund_transaction_id,
            refund_amount, refund_merchant, refund_date, refund_account,
            skipped, expected_refund, expected_date, expected_account,
            expected_account_id, expected_note, expected_amount, transaction_data
        FROM refunds_matches WHERE id = ?
    `, matchID)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMatchByOriginal returns the match for an original transaction id,
// nil when the transaction is unmatched.
func (r *Repository) GetMatchByOriginal(originalTransactionID string) (*Match, error) {
	row := r.db.QueryRow(`
        SELECT id, original_transaction_id, refund_transaction_id,
            refund_amount, refund_merchant, refund_date, refund_account,
            skipped, expected_refund, expected_date, expected_account,
            expected_account_id, expected_note, expected_amount, transaction_data
        FROM refunds_matches WHERE original_transaction_id = ?
    `, originalTransactionID)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMatch inserts a new match row.
func (r *Repository) CreateMatch(m Match) (Match, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	var transactionData any
	if len(m.TransactionData) > 0 {
		transactionData = string(m.TransactionData)
	}
	now := time.Now().UTC()
	_, err := r.db.Exec(`
        INSERT INTO refunds_matches (id, original_transaction_id,
            refund_transaction_id, refund_amount, refund_merchant, refund_date,
            refund_account, skipped, expected_refund, expected_date,
            expected_account, expected_account_id, expected_note,
            expected_amount, transaction_data, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, m.ID, m.OriginalTransactionID, nullableStr(m.RefundTransactionID),
		m.RefundAmount, nullableStr(m.RefundMerchant), nullableStr(m.RefundDate),
		nullableStr(m.RefundAccount), m.Skipped, m.ExpectedRefund,
		nullableStr(m.ExpectedDate), nullableStr(m.ExpectedAccount),
		nullableStr(m.ExpectedAccountID), nullableStr(m.ExpectedNote),
		m.ExpectedAmount, transactionData, now, now)
	if err != nil {
		// Two requests can both pass the duplicate pre-check; the loser
		// lands on the unique index over original_transaction_id.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return m, core.ConflictError("Transaction already matched")
		}
		return m, fmt.Errorf("failed to create match: %w", err)
	}
	return m, nil
}

// DeleteMatch removes a match by id.
func (r *Repository) DeleteMatch(matchID string) (bool, error) {
	res, err := r.db.Exec("DELETE FROM refunds_matches WHERE id = ?", matchID)
	if err != nil {
		return false, fmt.Errorf("failed to delete match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (Match, error) {
	var (
		m                          Match
		refundTxn, refundMerchant  sql.NullString
		refundDate, refundAccount  sql.NullString
		expectedDate, expectedAcct sql.NullString
		expectedAcctID, expNote    sql.NullString
		refundAmount, expAmount    sql.NullFloat64
		transactionData            sql.NullString
	)
	err := row.Scan(&m.ID, &m.OriginalTransactionID, &refundTxn, &refundAmount,
		&refundMerchant, &refundDate, &refundAccount, &m.Skipped,
		&m.ExpectedRefund, &expectedDate, &expectedAcct, &expectedAcctID,
		&expNote, &expAmount, &transactionData)
	if err == sql.ErrNoRows {
		return Match{}, err
	}
	if err != nil {
		return Match{}, fmt.Errorf("failed to scan match: %w", err)
	}
	m.RefundTransactionID = refundTxn.String
	m.RefundMerchant = refundMerchant.String
	m.RefundDate = refundDate.String
	m.RefundAccount = refundAccount.String
	m.ExpectedDate = expectedDate.String
	m.ExpectedAccount = expectedAcct.String
	m.ExpectedAccountID = expectedAcctID.String
	m.ExpectedNote = expNote.String
	if refundAmount.Valid {
		v := refundAmount.Float64
		m.RefundAmount = &v
	}
	if expAmount.Valid {
		v := expAmount.Float64
		m.ExpectedAmount = &v
	}
	if transactionData.Valid {
		m.TransactionData = json.RawMessage(transactionData.String)
	}
	return m, nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
