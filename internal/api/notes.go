package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/eclosion/backend/internal/core"
	"github.com/eclosion/backend/internal/notes"
)

// Validation messages shared across the notes handlers.
const (
	errInvalidMonthKey     = "Invalid month_key format. Expected YYYY-MM."
	errInvalidViewingMonth = "Invalid viewing_month. Expected YYYY-MM."
	errInvalidCategoryType = "Invalid category_type. Must be 'group' or 'category'."
	errInvalidNoteID       = "Invalid note_id."
	errInvalidCategoryID   = "Invalid category_id."
)

func (s *Server) registerNotesRoutes(r *mux.Router) {
	r.HandleFunc("/month/{month_key}", s.handleMonthNotes).Methods("GET")
	r.HandleFunc("/all", s.handleAllNotes).Methods("GET")
	r.HandleFunc("/categories", s.handleNoteCategories).Methods("GET")
	r.HandleFunc("/category", s.handleSaveCategoryNote).Methods("POST")
	r.HandleFunc("/category/{note_id}", s.handleDeleteCategoryNote).Methods("DELETE")
	r.HandleFunc("/general", s.handleSaveGeneralNote).Methods("POST")
	r.HandleFunc("/general/{month_key}", s.handleGetGeneralNote).Methods("GET")
	r.HandleFunc("/general/{month_key}", s.handleDeleteGeneralNote).Methods("DELETE")
	r.HandleFunc("/archived", s.handleArchivedNotes).Methods("GET")
	r.HandleFunc("/archived/{note_id}", s.handleDeleteArchivedNote).Methods("DELETE")
	r.HandleFunc("/sync-categories", s.handleSyncCategories).Methods("POST")
	r.HandleFunc("/history/{category_type}/{category_id}", s.handleNoteHistory).Methods("GET")
	r.HandleFunc("/inheritance-impact", s.handleInheritanceImpact).Methods("GET")

	// Checkbox routes: the literal prefixes must register before the
	// catch-all {note_id} variant.
	r.HandleFunc("/checkboxes", s.handleUpdateCheckbox).Methods("POST")
	r.HandleFunc("/checkboxes/month/{viewing_month}", s.handleMonthCheckboxStates).Methods("GET")
	r.HandleFunc("/checkboxes/general/{source_month}", s.handleGeneralCheckboxStates).Methods("GET")
	r.HandleFunc("/checkboxes/{note_id}", s.handleCheckboxStates).Methods("GET")
}

// GET /api/notes/month/{month_key} — every category's effective note for
// the month with inheritance resolved, plus the general note.
func (s *Server) handleMonthNotes(w http.ResponseWriter, r *http.Request) {
	monthKey := mux.Vars(r)["month_key"]
	if !core.ValidMonthKey(monthKey) {
		s.fail(w, core.ValidationError(errInvalidMonthKey))
		return
	}

	cipher, err := s.cipher(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	month, err := s.notes.GetAllNotesForMonth(cipher, monthKey)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, month)
}

// GET /api/notes/all — raw note timelines for bulk loading, so the
// client can resolve inheritance for any month without further calls.
func (s *Server) handleAllNotes(w http.ResponseWriter, r *http.Request) {
	cipher, err := s.cipher(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	all, err := s.notes.GetAllNotes(cipher)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, all)
}

// GET /api/notes/categories — upstream category groups with their
// categories, unfiltered.
func (s *Server) handleNoteCategories(w http.ResponseWriter, r *http.Request) {
	groups, err := s.upstream.GetCategoryGroups(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, map[string]any{"groups": groups})
}

func (s *Server) handleSaveCategoryNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryType string `json:"category_type"`
		CategoryID   string `json:"category_id"`
		CategoryName string `json:"category_name"`
		MonthKey     string `json:"month_key"`
		Content      string `json:"content"`
		GroupID      string `json:"group_id"`
		GroupName    string `json:"group_name"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	if !notes.ValidCategoryType(req.CategoryType) {
		s.fail(w, core.ValidationError(errInvalidCategoryType))
		return
	}
	categoryID := core.SanitizeID(req.CategoryID)
	categoryName := core.SanitizeName(req.CategoryName)
	if categoryID == "" || categoryName == "" {
		s.fail(w, core.ValidationError("Missing category_id or category_name."))
		return
	}
	if !core.ValidMonthKey(req.MonthKey) {
		s.fail(w, core.ValidationError(errInvalidMonthKey))
		return
	}

	cipher, err := s.cipher(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	note, err := s.notes.SaveNote(cipher, notes.SaveNoteParams{
		CategoryType: req.CategoryType,
		CategoryID:   categoryID,
		CategoryName: categoryName,
		GroupID:      core.SanitizeID(req.GroupID),
		GroupName:    core.SanitizeName(req.GroupName),
		MonthKey:     req.MonthKey,
		Content:      req.Content,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.NotesSaved.Inc()
	}
	s.ok(w, map[string]any{"note": note})
}

func (s *Server) handleDeleteCategoryNote(w http.ResponseWriter, r *http.Request) {
	noteID := core.SanitizeID(mux.Vars(r)["note_id"])
	if noteID == "" {
		s.fail(w, core.ValidationError(errInvalidNoteID))
		return
	}

	deleted, err := s.notes.DeleteNote(noteID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": deleted})
}

func (s *Server) handleGetGeneralNote(w http.ResponseWriter, r *http.Request) {
	monthKey := mux.Vars(r)["month_key"]
	if !core.ValidMonthKey(monthKey) {
		s.fail(w, core.ValidationError(errInvalidMonthKey))
		return
	}

	cipher, err := s.cipher(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	note, err := s.notes.GetGeneralNote(cipher, monthKey)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"note": note})
}

func (s *Server) handleSaveGeneralNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MonthKey string `json:"month_key"`
		Content  string `json:"content"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if !core.ValidMonthKey(req.MonthKey) {
		s.fail(w, core.ValidationError(errInvalidMonthKey))
		return
	}

	cipher, err := s.cipher(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	note, err := s.notes.SaveGeneralNote(cipher, req.MonthKey, req.Content)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.NotesSaved.Inc()
	}
	s.ok(w, map[string]any{"note": note})
}

func (s *Server) handleDeleteGeneralNote(w http.ResponseWriter, r *http.Request) {
	monthKey := mux.Vars(r)["month_key"]
	if !core.ValidMonthKey(monthKey) {
		s.fail(w, core.ValidationError(errInvalidMonthKey))
		return
	}

	deleted, err := s.notes.DeleteGeneralNote(monthKey, true)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": deleted})
}

func (s *Server) handleArchivedNotes(w http.ResponseWriter, r *http.Request) {
	cipher, err := s.cipher(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	archived, err := s.notes.GetArchivedNotes(cipher)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"archived_notes": archived})
}

func (s *Server) handleDeleteArchivedNote(w http.ResponseWriter, r *http.Request) {
	noteID := core.SanitizeID(mux.Vars(r)["note_id"])
	if noteID == "" {
		s.fail(w, core.ValidationError(errInvalidNoteID))
		return
	}

	deleted, err := s.notes.DeleteArchivedNote(noteID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": deleted})
}

// POST /api/notes/sync-categories — pull current categories upstream and
// archive notes whose category no longer exists.
func (s *Server) handleSyncCategories(w http.ResponseWriter, r *http.Request) {
	// Session check only; the sync itself moves ciphertext untouched.
	if _, err := s.cipher(r); err != nil {
		s.fail(w, err)
		return
	}

	groups, err := s.upstream.GetCategoryGroups(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	currentIDs := make(map[string]string)
	for _, group := range groups {
		if group.ID != "" {
			currentIDs[group.ID] = group.Name
		}
		for _, cat := range group.Categories {
			if cat.ID != "" {
				currentIDs[cat.ID] = cat.Name
			}
		}
	}

	result, err := s.notes.SyncCategories(currentIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, map[string]any{"archived_count": result.ArchivedCount})
}

func (s *Server) handleNoteHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	categoryType := vars["category_type"]
	if !notes.ValidCategoryType(categoryType) {
		s.fail(w, core.ValidationError(errInvalidCategoryType))
		return
	}
	categoryID := core.SanitizeID(vars["category_id"])
	if categoryID == "" {
		s.fail(w, core.ValidationError(errInvalidCategoryID))
		return
	}

	cipher, err := s.cipher(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	history, err := s.notes.GetRevisionHistory(cipher, categoryType, categoryID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// ============================================================
// Checkbox states
// ============================================================

func (s *Server) handleCheckboxStates(w http.ResponseWriter, r *http.Request) {
	noteID := core.SanitizeID(mux.Vars(r)["note_id"])
	if noteID == "" {
		s.fail(w, core.ValidationError(errInvalidNoteID))
		return
	}
	viewingMonth := r.URL.Query().Get("viewing_month")
	if !core.ValidMonthKey(viewingMonth) {
		s.fail(w, core.ValidationError(errInvalidViewingMonth))
		return
	}
	if _, err := s.cipher(r); err != nil {
		s.fail(w, err)
		return
	}

	states, err := s.notes.GetCheckboxStates(noteID, viewingMonth)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"states": states})
}

func (s *Server) handleGeneralCheckboxStates(w http.ResponseWriter, r *http.Request) {
	sourceMonth := mux.Vars(r)["source_month"]
	if !core.ValidMonthKey(sourceMonth) {
		s.fail(w, core.ValidationError("Invalid source_month. Expected YYYY-MM."))
		return
	}
	viewingMonth := r.URL.Query().Get("viewing_month")
	if !core.ValidMonthKey(viewingMonth) {
		s.fail(w, core.ValidationError(errInvalidViewingMonth))
		return
	}
	if _, err := s.cipher(r); err != nil {
		s.fail(w, err)
		return
	}

	states, err := s.notes.GetGeneralCheckboxStates(sourceMonth, viewingMonth)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"states": states})
}

func (s *Server) handleUpdateCheckbox(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NoteID              string `json:"note_id"`
		GeneralNoteMonthKey string `json:"general_note_month_key"`
		ViewingMonth        string `json:"viewing_month"`
		CheckboxIndex       *int   `json:"checkbox_index"`
		IsChecked           *bool  `json:"is_checked"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	if !core.ValidMonthKey(req.ViewingMonth) {
		s.fail(w, core.ValidationError(errInvalidViewingMonth))
		return
	}
	if req.CheckboxIndex == nil || *req.CheckboxIndex < 0 {
		s.fail(w, core.ValidationError("Invalid checkbox_index. Must be a non-negative integer."))
		return
	}
	if req.IsChecked == nil {
		s.fail(w, core.ValidationError("Invalid is_checked. Must be a boolean."))
		return
	}
	if req.NoteID == "" && req.GeneralNoteMonthKey == "" {
		s.fail(w, core.ValidationError("Must provide either note_id or general_note_month_key."))
		return
	}
	if req.NoteID != "" && req.GeneralNoteMonthKey != "" {
		s.fail(w, core.ValidationError("Provide only one of note_id or general_note_month_key."))
		return
	}
	if req.NoteID != "" {
		req.NoteID = core.SanitizeID(req.NoteID)
		if req.NoteID == "" {
			s.fail(w, core.ValidationError(errInvalidNoteID))
			return
		}
	}
	if req.GeneralNoteMonthKey != "" && !core.ValidMonthKey(req.GeneralNoteMonthKey) {
		s.fail(w, core.ValidationError("Invalid general_note_month_key. Expected YYYY-MM."))
		return
	}
	if _, err := s.cipher(r); err != nil {
		s.fail(w, err)
		return
	}

	states, err := s.notes.UpdateCheckboxState(notes.UpdateCheckboxParams{
		NoteID:          req.NoteID,
		GeneralMonthKey: req.GeneralNoteMonthKey,
		ViewingMonth:    req.ViewingMonth,
		Index:           *req.CheckboxIndex,
		Checked:         *req.IsChecked,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, map[string]any{"states": states})
}

func (s *Server) handleMonthCheckboxStates(w http.ResponseWriter, r *http.Request) {
	viewingMonth := mux.Vars(r)["viewing_month"]
	if !core.ValidMonthKey(viewingMonth) {
		s.fail(w, core.ValidationError(errInvalidViewingMonth))
		return
	}
	if _, err := s.cipher(r); err != nil {
		s.fail(w, err)
		return
	}

	states, err := s.notes.GetAllCheckboxStatesForMonth(viewingMonth)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"states": states})
}

// GET /api/notes/inheritance-impact — what creating a note at month_key
// would stop inheriting, and which affected months carry checkbox state.
func (s *Server) handleInheritanceImpact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	monthKey := q.Get("month_key")
	if !core.ValidMonthKey(monthKey) {
		s.fail(w, core.ValidationError("Invalid month_key. Expected YYYY-MM."))
		return
	}

	cipher, err := s.cipher(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var impact notes.InheritanceImpact
	if strings.EqualFold(q.Get("is_general"), "true") {
		impact, err = s.notes.GetGeneralInheritanceImpact(cipher, monthKey)
	} else {
		categoryType := q.Get("category_type")
		if !notes.ValidCategoryType(categoryType) {
			s.fail(w, core.ValidationError(errInvalidCategoryType))
			return
		}
		categoryID := core.SanitizeID(q.Get("category_id"))
		if categoryID == "" {
			s.fail(w, core.ValidationError(errInvalidCategoryID))
			return
		}
		impact, err = s.notes.GetInheritanceImpact(cipher, categoryType, categoryID, monthKey)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, impact)
}
