package notes

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eclosion/backend/internal/core"
	"github.com/eclosion/backend/internal/crypto"
)

// inheritanceWindowMonths caps how far forward an inheritance-impact
// scan walks when no later custom note terminates it.
const inheritanceWindowMonths = 12

// Repository stores encrypted notes. Every read or write that touches
// note content takes the caller's cipher; the repository never holds
// key material itself.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:     db,
		logger: slog.Default().With("component", "notes"),
	}
}

// ============================================================
// Category and group notes
// ============================================================

// SaveNoteParams carries everything SaveNote needs for an upsert.
type SaveNoteParams struct {
	CategoryType string
	CategoryID   string
	CategoryName string
	GroupID      string
	GroupName    string
	MonthKey     string
	Content      string
}

// SaveNote creates or replaces the note at (category_type, category_id,
// month_key). An existing note keeps its id and created_at; group
// fields are only overwritten when the caller supplies them.
func (r *Repository) SaveNote(cipher *crypto.Cipher, p SaveNoteParams) (Note, error) {
	encrypted, salt, err := cipher.Encrypt(p.Content)
	if err != nil {
		return Note{}, fmt.Errorf("failed to encrypt note: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return Note{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var (
		existingID      string
		existingCreated time.Time
		existingGroupID sql.NullString
		existingGroupNm sql.NullString
	)
	err = tx.QueryRow(`
        SELECT id, created_at, group_id, group_name FROM notes
        WHERE category_type = ? AND category_id = ? AND month_key = ?
    `, p.CategoryType, p.CategoryID, p.MonthKey).Scan(
		&existingID, &existingCreated, &existingGroupID, &existingGroupNm,
	)

	note := Note{
		CategoryType: p.CategoryType,
		CategoryID:   p.CategoryID,
		CategoryName: p.CategoryName,
		GroupID:      p.GroupID,
		GroupName:    p.GroupName,
		MonthKey:     p.MonthKey,
		Content:      p.Content,
		UpdatedAt:    now,
	}

	switch {
	case err == sql.ErrNoRows:
		note.ID = uuid.NewString()
		note.CreatedAt = now
		_, err = tx.Exec(`
            INSERT INTO notes (id, category_type, category_id, category_name,
                group_id, group_name, month_key, content_encrypted, salt,
                created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        `, note.ID, p.CategoryType, p.CategoryID, p.CategoryName,
			nullable(p.GroupID), nullable(p.GroupName), p.MonthKey,
			encrypted, salt, now, now)
		if err != nil {
			return Note{}, fmt.Errorf("failed to insert note: %w", err)
		}
	case err != nil:
		return Note{}, fmt.Errorf("failed to look up note: %w", err)
	default:
		note.ID = existingID
		note.CreatedAt = existingCreated
		// Blank group fields on an update mean "leave as is".
		if p.GroupID == "" {
			note.GroupID = existingGroupID.String
		}
		if p.GroupName == "" {
			note.GroupName = existingGroupNm.String
		}
		_, err = tx.Exec(`
            UPDATE notes SET category_name = ?, group_id = ?, group_name = ?,
                content_encrypted = ?, salt = ?, updated_at = ?
            WHERE id = ?
        `, p.CategoryName, nullable(note.GroupID), nullable(note.GroupName),
			encrypted, salt, now, note.ID)
		if err != nil {
			return Note{}, fmt.Errorf("failed to update note: %w", err)
		}
	}

	if p.CategoryType == CategoryTypeCategory && p.CategoryName != "" {
		_, err = tx.Exec(`
            INSERT INTO known_categories (category_id, name) VALUES (?, ?)
            ON CONFLICT(category_id) DO UPDATE SET name = excluded.name
        `, p.CategoryID, p.CategoryName)
		if err != nil {
			return Note{}, fmt.Errorf("failed to record known category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("failed to commit note: %w", err)
	}
	return note, nil
}

// DeleteNote removes a note by id. Checkbox states cascade via the
// foreign key. Returns false when no such note exists.
func (r *Repository) DeleteNote(id string) (bool, error) {
	res, err := r.db.Exec("DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetNote fetches and decrypts a single note by id.
func (r *Repository) GetNote(cipher *crypto.Cipher, id string) (*Note, error) {
	row := r.db.QueryRow(`
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at, updated_at
        FROM notes WHERE id = ?
    `, id)
	note, err := scanNote(cipher, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// GetNotesForCategory returns a category's full note timeline, oldest
// month first.
func (r *Repository) GetNotesForCategory(cipher *crypto.Cipher, categoryType, categoryID string) ([]Note, error) {
	rows, err := r.db.Query(`
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at, updated_at
        FROM notes
        WHERE category_type = ? AND category_id = ?
        ORDER BY month_key ASC
    `, categoryType, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()
	return collectNotes(cipher, rows)
}

// GetEffectiveNote resolves inheritance for one category at a viewing
// month: the note with the latest month_key at or before targetMonth.
// Nil when the category has no note that far back.
func (r *Repository) GetEffectiveNote(cipher *crypto.Cipher, categoryType, categoryID, targetMonth string) (*EffectiveNote, error) {
	row := r.db.QueryRow(`
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at, updated_at
        FROM notes
        WHERE category_type = ? AND category_id = ? AND month_key <= ?
        ORDER BY month_key DESC LIMIT 1
    `, categoryType, categoryID, targetMonth)
	note, err := scanNote(cipher, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &EffectiveNote{
		Note:        note,
		SourceMonth: note.MonthKey,
		IsInherited: note.MonthKey != targetMonth,
	}, nil
}

// GetAllNotesForMonth resolves the effective note for every known
// category and the general note, in one payload. The effective-note map
// is keyed "category_type:category_id".
func (r *Repository) GetAllNotesForMonth(cipher *crypto.Cipher, monthKey string) (MonthNotes, error) {
	out := MonthNotes{
		MonthKey:       monthKey,
		EffectiveNotes: map[string]EffectiveNote{},
	}

	// One ordered scan: the first row seen per category is the latest
	// month at or before the target.
	rows, err := r.db.Query(`
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at, updated_at
        FROM notes
        WHERE month_key <= ?
        ORDER BY category_type, category_id, month_key DESC
    `, monthKey)
	if err != nil {
		return out, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes, err := collectNotes(cipher, rows)
	if err != nil {
		return out, err
	}
	for _, note := range notes {
		key := note.CategoryType + ":" + note.CategoryID
		if _, seen := out.EffectiveNotes[key]; seen {
			continue
		}
		out.EffectiveNotes[key] = EffectiveNote{
			Note:        note,
			SourceMonth: note.MonthKey,
			IsInherited: note.MonthKey != monthKey,
		}
	}

	general, err := r.GetEffectiveGeneralNote(cipher, monthKey)
	if err != nil {
		return out, err
	}
	out.EffectiveGeneralNote = general
	return out, nil
}

// GetAllCategoryNotes returns every category and group note, newest
// month first within each category.
func (r *Repository) GetAllCategoryNotes(cipher *crypto.Cipher) ([]Note, error) {
	rows, err := r.db.Query(`
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at, updated_at
        FROM notes
        ORDER BY category_type, category_id, month_key DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()
	return collectNotes(cipher, rows)
}

// GetAllNotes is the bulk export: every raw note and general note.
func (r *Repository) GetAllNotes(cipher *crypto.Cipher) (AllNotes, error) {
	notes, err := r.GetAllCategoryNotes(cipher)
	if err != nil {
		return AllNotes{}, err
	}
	generals, err := r.GetAllGeneralNotes(cipher)
	if err != nil {
		return AllNotes{}, err
	}
	return AllNotes{Notes: notes, GeneralNotes: generals}, nil
}

// GetRevisionHistory returns a category's notes newest first, with a
// preview alongside the full content.
func (r *Repository) GetRevisionHistory(cipher *crypto.Cipher, categoryType, categoryID string) ([]RevisionEntry, error) {
	rows, err := r.db.Query(`
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at, updated_at
        FROM notes
        WHERE category_type = ? AND category_id = ?
        ORDER BY month_key DESC
    `, categoryType, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revision history: %w", err)
	}
	defer rows.Close()

	notes, err := collectNotes(cipher, rows)
	if err != nil {
		return nil, err
	}
	history := make([]RevisionEntry, 0, len(notes))
	for _, n := range notes {
		history = append(history, RevisionEntry{
			MonthKey:       n.MonthKey,
			Content:        n.Content,
			ContentPreview: preview(n.Content),
			CreatedAt:      n.CreatedAt,
			UpdatedAt:      n.UpdatedAt,
		})
	}
	return history, nil
}

// ============================================================
// General notes
// ============================================================

// SaveGeneralNote creates or replaces the general note for a month.
func (r *Repository) SaveGeneralNote(cipher *crypto.Cipher, monthKey, content string) (GeneralNote, error) {
	encrypted, salt, err := cipher.Encrypt(content)
	if err != nil {
		return GeneralNote{}, fmt.Errorf("failed to encrypt general note: %w", err)
	}

	now := time.Now().UTC()
	note := GeneralNote{MonthKey: monthKey, Content: content, UpdatedAt: now}

	var (
		existingID      string
		existingCreated time.Time
	)
	err = r.db.QueryRow(
		"SELECT id, created_at FROM general_notes WHERE month_key = ?", monthKey,
	).Scan(&existingID, &existingCreated)
	switch {
	case err == sql.ErrNoRows:
		note.ID = uuid.NewString()
		note.CreatedAt = now
		_, err = r.db.Exec(`
            INSERT INTO general_notes (month_key, id, content_encrypted, salt,
                created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?)
        `, monthKey, note.ID, encrypted, salt, now, now)
	case err != nil:
		return GeneralNote{}, fmt.Errorf("failed to look up general note: %w", err)
	default:
		note.ID = existingID
		note.CreatedAt = existingCreated
		_, err = r.db.Exec(`
            UPDATE general_notes SET content_encrypted = ?, salt = ?, updated_at = ?
            WHERE month_key = ?
        `, encrypted, salt, now, monthKey)
	}
	if err != nil {
		return GeneralNote{}, fmt.Errorf("failed to save general note: %w", err)
	}
	return note, nil
}

// GetGeneralNote fetches the general note stored exactly at monthKey.
func (r *Repository) GetGeneralNote(cipher *crypto.Cipher, monthKey string) (*GeneralNote, error) {
	row := r.db.QueryRow(`
        SELECT month_key, id, content_encrypted, salt, created_at, updated_at
        FROM general_notes WHERE month_key = ?
    `, monthKey)
	note, err := scanGeneralNote(cipher, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// GetEffectiveGeneralNote resolves general-note inheritance at a month.
func (r *Repository) GetEffectiveGeneralNote(cipher *crypto.Cipher, targetMonth string) (*EffectiveGeneralNote, error) {
	row := r.db.QueryRow(`
        SELECT month_key, id, content_encrypted, salt, created_at, updated_at
        FROM general_notes WHERE month_key <= ?
        ORDER BY month_key DESC LIMIT 1
    `, targetMonth)
	note, err := scanGeneralNote(cipher, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &EffectiveGeneralNote{
		Note:        note,
		SourceMonth: note.MonthKey,
		IsInherited: note.MonthKey != targetMonth,
	}, nil
}

// GetAllGeneralNotes returns every general note, oldest month first.
func (r *Repository) GetAllGeneralNotes(cipher *crypto.Cipher) ([]GeneralNote, error) {
	rows, err := r.db.Query(`
        SELECT month_key, id, content_encrypted, salt, created_at, updated_at
        FROM general_notes ORDER BY month_key ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query general notes: %w", err)
	}
	defer rows.Close()

	var notes []GeneralNote
	for rows.Next() {
		note, err := scanGeneralNote(cipher, rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// DeleteGeneralNote removes the general note at monthKey. Its checkbox
// states are only removed when clearCheckboxes is set; otherwise they
// stay attached to the month key in case the note is recreated.
func (r *Repository) DeleteGeneralNote(monthKey string, clearCheckboxes bool) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM general_notes WHERE month_key = ?", monthKey)
	if err != nil {
		return false, fmt.Errorf("failed to delete general note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if clearCheckboxes {
		_, err = tx.Exec(
			"DELETE FROM checkbox_states WHERE general_note_month_key = ?", monthKey,
		)
		if err != nil {
			return false, fmt.Errorf("failed to clear checkbox states: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ============================================================
// Inheritance impact
// ============================================================

// GetInheritanceImpact previews the effect of creating a custom note at
// monthKey for a category: which earlier note is currently inherited
// there, which months would stop inheriting it, and which of those
// months have checked checkboxes against the inherited note.
func (r *Repository) GetInheritanceImpact(cipher *crypto.Cipher, categoryType, categoryID, monthKey string) (InheritanceImpact, error) {
	impact := InheritanceImpact{
		AffectedMonths:           []string{},
		MonthsWithCheckboxStates: map[string]int{},
	}

	row := r.db.QueryRow(`
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at, updated_at
        FROM notes
        WHERE category_type = ? AND category_id = ? AND month_key < ?
        ORDER BY month_key DESC LIMIT 1
    `, categoryType, categoryID, monthKey)
	source, err := scanNote(cipher, row)
	if err == sql.ErrNoRows {
		return impact, nil
	}
	if err != nil {
		return impact, err
	}
	impact.SourceNote = &ImpactSourceNote{
		ID:             source.ID,
		MonthKey:       source.MonthKey,
		ContentPreview: preview(source.Content),
	}

	var nextCustom string
	err = r.db.QueryRow(`
        SELECT month_key FROM notes
        WHERE category_type = ? AND category_id = ? AND month_key > ?
        ORDER BY month_key ASC LIMIT 1
    `, categoryType, categoryID, monthKey).Scan(&nextCustom)
	if err != nil && err != sql.ErrNoRows {
		return impact, fmt.Errorf("failed to find next custom note: %w", err)
	}
	impact.NextCustomNoteMonth = nextCustom

	impact.AffectedMonths = core.MonthKeysInRange(monthKey, nextCustom, inheritanceWindowMonths)
	impact.MonthsWithCheckboxStates, err = r.checkedCountsForNote(source.ID, impact.AffectedMonths)
	return impact, err
}

// GetGeneralInheritanceImpact is GetInheritanceImpact for the general
// note timeline.
func (r *Repository) GetGeneralInheritanceImpact(cipher *crypto.Cipher, monthKey string) (InheritanceImpact, error) {
	impact := InheritanceImpact{
		AffectedMonths:           []string{},
		MonthsWithCheckboxStates: map[string]int{},
	}

	row := r.db.QueryRow(`
        SELECT month_key, id, content_encrypted, salt, created_at, updated_at
        FROM general_notes WHERE month_key < ?
        ORDER BY month_key DESC LIMIT 1
    `, monthKey)
	source, err := scanGeneralNote(cipher, row)
	if err == sql.ErrNoRows {
		return impact, nil
	}
	if err != nil {
		return impact, err
	}
	impact.SourceNote = &ImpactSourceNote{
		ID:             source.ID,
		MonthKey:       source.MonthKey,
		ContentPreview: preview(source.Content),
	}

	var nextCustom string
	err = r.db.QueryRow(`
        SELECT month_key FROM general_notes WHERE month_key > ?
        ORDER BY month_key ASC LIMIT 1
    `, monthKey).Scan(&nextCustom)
	if err != nil && err != sql.ErrNoRows {
		return impact, fmt.Errorf("failed to find next general note: %w", err)
	}
	impact.NextCustomNoteMonth = nextCustom

	impact.AffectedMonths = core.MonthKeysInRange(monthKey, nextCustom, inheritanceWindowMonths)
	impact.MonthsWithCheckboxStates, err = r.checkedCountsForGeneralNote(source.MonthKey, impact.AffectedMonths)
	return impact, err
}

// ============================================================
// Archived notes and category sync
// ============================================================

// GetArchivedNotes returns archived notes, most recently archived first.
func (r *Repository) GetArchivedNotes(cipher *crypto.Cipher) ([]ArchivedNote, error) {
	rows, err := r.db.Query(`
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at,
            updated_at, archived_at, original_category_name, original_group_name
        FROM archived_notes ORDER BY archived_at DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived notes: %w", err)
	}
	defer rows.Close()

	var archived []ArchivedNote
	for rows.Next() {
		var (
			a                           ArchivedNote
			groupID, groupName, origGrp sql.NullString
			contentEncrypted, salt      string
		)
		if err := rows.Scan(&a.ID, &a.CategoryType, &a.CategoryID, &a.CategoryName,
			&groupID, &groupName, &a.MonthKey, &contentEncrypted, &salt,
			&a.CreatedAt, &a.UpdatedAt, &a.ArchivedAt,
			&a.OriginalCategoryName, &origGrp); err != nil {
			return nil, fmt.Errorf("failed to scan archived note: %w", err)
		}
		a.GroupID = groupID.String
		a.GroupName = groupName.String
		a.OriginalGroupName = origGrp.String
		a.Content, err = decryptContent(cipher, contentEncrypted, salt)
		if err != nil {
			return nil, err
		}
		archived = append(archived, a)
	}
	return archived, rows.Err()
}

// DeleteArchivedNote permanently removes one archived note.
func (r *Repository) DeleteArchivedNote(id string) (bool, error) {
	res, err := r.db.Exec("DELETE FROM archived_notes WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete archived note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SyncCategories reconciles known categories against the authoritative
// upstream set. Notes for categories that disappeared are moved to the
// archive (ciphertext intact) and their live rows removed.
func (r *Repository) SyncCategories(currentIDs map[string]string) (SyncResult, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT category_id, name FROM known_categories")
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to query known categories: %w", err)
	}
	type known struct{ id, name string }
	var removed []known
	for rows.Next() {
		var k known
		if err := rows.Scan(&k.id, &k.name); err != nil {
			rows.Close()
			return SyncResult{}, err
		}
		if _, ok := currentIDs[k.id]; !ok {
			removed = append(removed, k)
		}
	}
	if err := rows.Close(); err != nil {
		return SyncResult{}, err
	}

	archivedCount := 0
	now := time.Now().UTC()
	for _, k := range removed {
		n, err := archiveCategoryNotes(tx, k.id, k.name, now)
		if err != nil {
			return SyncResult{}, err
		}
		archivedCount += n
		if _, err := tx.Exec("DELETE FROM known_categories WHERE category_id = ?", k.id); err != nil {
			return SyncResult{}, fmt.Errorf("failed to forget category: %w", err)
		}
	}

	// Refresh names for categories that still exist.
	for id, name := range currentIDs {
		if name == "" {
			continue
		}
		_, err := tx.Exec(`
            INSERT INTO known_categories (category_id, name) VALUES (?, ?)
            ON CONFLICT(category_id) DO UPDATE SET name = excluded.name
        `, id, name)
		if err != nil {
			return SyncResult{}, fmt.Errorf("failed to refresh known category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SyncResult{}, err
	}
	if archivedCount > 0 {
		r.logger.Info("archived notes for deleted categories",
			"categories", len(removed), "notes", archivedCount)
	}
	return SyncResult{ArchivedCount: archivedCount}, nil
}

// archiveCategoryNotes moves every live note matching the category id,
// group notes included, into archived_notes without touching the
// ciphertext.
func archiveCategoryNotes(tx *sql.Tx, categoryID, categoryName string, now time.Time) (int, error) {
	res, err := tx.Exec(`
        INSERT INTO archived_notes (id, category_type, category_id,
            category_name, group_id, group_name, month_key, content_encrypted,
            salt, created_at, updated_at, archived_at, original_category_name,
            original_group_name)
        SELECT id, category_type, category_id, category_name, group_id,
            group_name, month_key, content_encrypted, salt, created_at,
            updated_at, ?, ?, group_name
        FROM notes
        WHERE category_id = ?
    `, now, categoryName, categoryID)
	if err != nil {
		return 0, fmt.Errorf("failed to archive notes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec("DELETE FROM notes WHERE category_id = ?", categoryID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove archived notes: %w", err)
	}
	return int(n), nil
}

// ============================================================
// Scan helpers
// ============================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(cipher *crypto.Cipher, row rowScanner) (Note, error) {
	var (
		n                      Note
		groupID, groupName     sql.NullString
		contentEncrypted, salt string
	)
	err := row.Scan(&n.ID, &n.CategoryType, &n.CategoryID, &n.CategoryName,
		&groupID, &groupName, &n.MonthKey, &contentEncrypted, &salt,
		&n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return Note{}, err
	}
	if err != nil {
		return Note{}, fmt.Errorf("failed to scan note: %w", err)
	}
	n.GroupID = groupID.String
	n.GroupName = groupName.String
	n.Content, err = decryptContent(cipher, contentEncrypted, salt)
	return n, err
}

func scanGeneralNote(cipher *crypto.Cipher, row rowScanner) (GeneralNote, error) {
	var (
		n                      GeneralNote
		contentEncrypted, salt string
	)
	err := row.Scan(&n.MonthKey, &n.ID, &contentEncrypted, &salt,
		&n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return GeneralNote{}, err
	}
	if err != nil {
		return GeneralNote{}, fmt.Errorf("failed to scan general note: %w", err)
	}
	n.Content, err = decryptContent(cipher, contentEncrypted, salt)
	return n, err
}

func collectNotes(cipher *crypto.Cipher, rows *sql.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		note, err := scanNote(cipher, rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// decryptContent maps a failed decryption to an auth error so handlers
// return 401 rather than a server fault when the passphrase is wrong.
func decryptContent(cipher *crypto.Cipher, ciphertext, salt string) (string, error) {
	plain, err := cipher.Decrypt(ciphertext, salt)
	if err != nil {
		return "", core.WrapError(core.KindAuth, "Invalid passphrase", err)
	}
	return plain, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
