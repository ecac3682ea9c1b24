package notes

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Checkbox states are stored per (note, viewing month) as a JSON bool
// array indexed by checkbox position within the rendered note. A note
// inherited into several months keeps independent state in each.

// UpdateCheckboxParams identifies one checkbox to set. Exactly one of
// NoteID or GeneralMonthKey is set; GeneralMonthKey is the source month
// of a general note.
type UpdateCheckboxParams struct {
	NoteID          string
	GeneralMonthKey string
	ViewingMonth    string
	Index           int
	Checked         bool
}

// GetCheckboxStates returns the stored state array for a category or
// group note at a viewing month. Empty slice when nothing is stored.
func (r *Repository) GetCheckboxStates(noteID, viewingMonth string) ([]bool, error) {
	return r.readStates(
		"SELECT states_json FROM checkbox_states WHERE note_id = ? AND viewing_month = ?",
		noteID, viewingMonth,
	)
}

// GetGeneralCheckboxStates is GetCheckboxStates for a general note,
// addressed by its source month.
func (r *Repository) GetGeneralCheckboxStates(sourceMonth, viewingMonth string) ([]bool, error) {
	return r.readStates(
		"SELECT states_json FROM checkbox_states WHERE general_note_month_key = ? AND viewing_month = ?",
		sourceMonth, viewingMonth,
	)
}

// UpdateCheckboxState sets one checkbox and returns the full updated
// array. Setting an index past the stored length extends the array with
// unchecked entries first, so positions line up with the note's
// checkboxes regardless of write order.
func (r *Repository) UpdateCheckboxState(p UpdateCheckboxParams) ([]bool, error) {
	if p.Index < 0 {
		return nil, fmt.Errorf("checkbox index must not be negative")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		where string
		owner string
	)
	if p.NoteID != "" {
		where = "note_id = ?"
		owner = p.NoteID
	} else {
		where = "general_note_month_key = ?"
		owner = p.GeneralMonthKey
	}

	var statesJSON string
	err = tx.QueryRow(
		"SELECT states_json FROM checkbox_states WHERE "+where+" AND viewing_month = ?",
		owner, p.ViewingMonth,
	).Scan(&statesJSON)

	states := []bool{}
	exists := err == nil
	if exists {
		if err := json.Unmarshal([]byte(statesJSON), &states); err != nil {
			return nil, fmt.Errorf("failed to decode checkbox states: %w", err)
		}
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read checkbox states: %w", err)
	}

	for len(states) <= p.Index {
		states = append(states, false)
	}
	states[p.Index] = p.Checked

	encoded, err := json.Marshal(states)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkbox states: %w", err)
	}

	now := time.Now().UTC()
	if exists {
		_, err = tx.Exec(
			"UPDATE checkbox_states SET states_json = ?, updated_at = ? WHERE "+where+" AND viewing_month = ?",
			string(encoded), now, owner, p.ViewingMonth,
		)
	} else if p.NoteID != "" {
		_, err = tx.Exec(`
            INSERT INTO checkbox_states (note_id, viewing_month, states_json,
                created_at, updated_at)
            VALUES (?, ?, ?, ?, ?)
        `, p.NoteID, p.ViewingMonth, string(encoded), now, now)
	} else {
		_, err = tx.Exec(`
            INSERT INTO checkbox_states (general_note_month_key, viewing_month,
                states_json, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?)
        `, p.GeneralMonthKey, p.ViewingMonth, string(encoded), now, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write checkbox states: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return states, nil
}

// GetAllCheckboxStatesForMonth returns every state array stored for a
// viewing month, keyed by note id for category notes and
// "general:<source month>" for general notes.
func (r *Repository) GetAllCheckboxStatesForMonth(viewingMonth string) (map[string][]bool, error) {
	rows, err := r.db.Query(`
        SELECT note_id, general_note_month_key, states_json
        FROM checkbox_states WHERE viewing_month = ?
    `, viewingMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkbox states: %w", err)
	}
	defer rows.Close()

	out := map[string][]bool{}
	for rows.Next() {
		var (
			noteID, generalKey sql.NullString
			statesJSON         string
		)
		if err := rows.Scan(&noteID, &generalKey, &statesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan checkbox states: %w", err)
		}
		var states []bool
		if err := json.Unmarshal([]byte(statesJSON), &states); err != nil {
			return nil, fmt.Errorf("failed to decode checkbox states: %w", err)
		}
		switch {
		case noteID.Valid:
			out[noteID.String] = states
		case generalKey.Valid:
			out["general:"+generalKey.String] = states
		}
	}
	return out, rows.Err()
}

// GetCheckboxStatesByViewingMonths returns the state arrays a note has
// across a set of viewing months, keyed by viewing month.
func (r *Repository) GetCheckboxStatesByViewingMonths(noteID, generalMonthKey string, months []string) (map[string][]bool, error) {
	if len(months) == 0 {
		return map[string][]bool{}, nil
	}

	where, args := ownerClause(noteID, generalMonthKey)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(months)), ",")
	for _, m := range months {
		args = append(args, m)
	}

	rows, err := r.db.Query(
		"SELECT viewing_month, states_json FROM checkbox_states WHERE "+where+
			" AND viewing_month IN ("+placeholders+")", args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkbox states: %w", err)
	}
	defer rows.Close()

	out := map[string][]bool{}
	for rows.Next() {
		var (
			month      string
			statesJSON string
		)
		if err := rows.Scan(&month, &statesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan checkbox states: %w", err)
		}
		var states []bool
		if err := json.Unmarshal([]byte(statesJSON), &states); err != nil {
			return nil, fmt.Errorf("failed to decode checkbox states: %w", err)
		}
		out[month] = states
	}
	return out, rows.Err()
}

// ClearCheckboxStatesForNote drops every viewing month's state for a
// note and returns how many rows went away.
func (r *Repository) ClearCheckboxStatesForNote(noteID string) (int, error) {
	return r.clearStates("DELETE FROM checkbox_states WHERE note_id = ?", noteID)
}

// ClearCheckboxStatesForGeneralNote is ClearCheckboxStatesForNote for a
// general note's source month.
func (r *Repository) ClearCheckboxStatesForGeneralNote(sourceMonth string) (int, error) {
	return r.clearStates(
		"DELETE FROM checkbox_states WHERE general_note_month_key = ?", sourceMonth,
	)
}

// ClearCheckboxStatesForViewingMonths drops a note's state for specific
// viewing months only, leaving the rest of its timeline alone.
func (r *Repository) ClearCheckboxStatesForViewingMonths(noteID, generalMonthKey string, months []string) (int, error) {
	if len(months) == 0 {
		return 0, nil
	}
	where, args := ownerClause(noteID, generalMonthKey)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(months)), ",")
	for _, m := range months {
		args = append(args, m)
	}
	return r.clearStates(
		"DELETE FROM checkbox_states WHERE "+where+" AND viewing_month IN ("+placeholders+")",
		args...,
	)
}

// checkedCountsForNote counts checked boxes a note carries in each of
// the given viewing months, omitting months with none.
func (r *Repository) checkedCountsForNote(noteID string, months []string) (map[string]int, error) {
	states, err := r.GetCheckboxStatesByViewingMonths(noteID, "", months)
	if err != nil {
		return nil, err
	}
	return checkedCounts(states), nil
}

func (r *Repository) checkedCountsForGeneralNote(sourceMonth string, months []string) (map[string]int, error) {
	states, err := r.GetCheckboxStatesByViewingMonths("", sourceMonth, months)
	if err != nil {
		return nil, err
	}
	return checkedCounts(states), nil
}

func checkedCounts(byMonth map[string][]bool) map[string]int {
	counts := map[string]int{}
	for month, states := range byMonth {
		n := 0
		for _, checked := range states {
			if checked {
				n++
			}
		}
		if n > 0 {
			counts[month] = n
		}
	}
	return counts
}

func (r *Repository) readStates(query string, args ...any) ([]bool, error) {
	var statesJSON string
	err := r.db.QueryRow(query, args...).Scan(&statesJSON)
	if err == sql.ErrNoRows {
		return []bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkbox states: %w", err)
	}
	var states []bool
	if err := json.Unmarshal([]byte(statesJSON), &states); err != nil {
		return nil, fmt.Errorf("failed to decode checkbox states: %w", err)
	}
	return states, nil
}

func (r *Repository) clearStates(query string, args ...any) (int, error) {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear checkbox states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func ownerClause(noteID, generalMonthKey string) (string, []any) {
	if noteID != "" {
		return "note_id = ?", []any{noteID}
	}
	return "general_note_month_key = ?", []any{generalMonthKey}
}
