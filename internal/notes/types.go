package notes

import "time"

// CategoryType distinguishes group-level notes from category notes.
const (
	CategoryTypeGroup    = "group"
	CategoryTypeCategory = "category"
)

// ValidCategoryType reports whether t is one of the two note scopes.
func ValidCategoryType(t string) bool {
	return t == CategoryTypeGroup || t == CategoryTypeCategory
}

// Note is a decrypted category or group note. Content is plaintext
// here; at rest it is ciphertext plus a per-record salt.
type Note struct {
	ID           string    `json:"id"`
	CategoryType string    `json:"category_type"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name"`
	GroupID      string    `json:"group_id,omitempty"`
	GroupName    string    `json:"group_name,omitempty"`
	MonthKey     string    `json:"month_key"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GeneralNote is the per-month note not tied to any category.
type GeneralNote struct {
	ID        string    `json:"id"`
	MonthKey  string    `json:"month_key"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArchivedNote preserves a note whose category was deleted upstream.
type ArchivedNote struct {
	Note
	ArchivedAt           time.Time `json:"archived_at"`
	OriginalCategoryName string    `json:"original_category_name"`
	OriginalGroupName    string    `json:"original_group_name,omitempty"`
}

// EffectiveNote is the inheritance-resolved note at a viewing month.
type EffectiveNote struct {
	Note        Note   `json:"note"`
	SourceMonth string `json:"source_month"`
	IsInherited bool   `json:"is_inherited"`
}

// EffectiveGeneralNote mirrors EffectiveNote for general notes.
type EffectiveGeneralNote struct {
	Note        GeneralNote `json:"note"`
	SourceMonth string      `json:"source_month"`
	IsInherited bool        `json:"is_inherited"`
}

// MonthNotes is the bulk payload for one viewing month: every
// category's effective note keyed by "type:id", plus the general note.
type MonthNotes struct {
	MonthKey             string                   `json:"month_key"`
	EffectiveNotes       map[string]EffectiveNote `json:"effective_notes"`
	EffectiveGeneralNote *EffectiveGeneralNote    `json:"effective_general_note"`
}

// AllNotes is the bulk-export payload: raw timelines so a client can
// resolve inheritance for any month locally.
type AllNotes struct {
	Notes        []Note        `json:"notes"`
	GeneralNotes []GeneralNote `json:"general_notes"`
}

// RevisionEntry is one month's entry in a category's note history.
type RevisionEntry struct {
	MonthKey       string    `json:"month_key"`
	Content        string    `json:"content"`
	ContentPreview string    `json:"content_preview"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InheritanceImpact describes what creating a note at a month would
// break: the note currently inherited, the months that stop inheriting
// it, and which of those months carry checked checkbox state.
type InheritanceImpact struct {
	SourceNote               *ImpactSourceNote `json:"source_note"`
	AffectedMonths           []string          `json:"affected_months"`
	MonthsWithCheckboxStates map[string]int    `json:"months_with_checkbox_states"`
	NextCustomNoteMonth      string            `json:"next_custom_note_month,omitempty"`
}

// ImpactSourceNote is the inherited note at risk, with a short preview.
type ImpactSourceNote struct {
	ID             string `json:"id"`
	MonthKey       string `json:"month_key"`
	ContentPreview string `json:"content_preview"`
}

// SyncResult reports how many notes were archived by a category sync.
type SyncResult struct {
	ArchivedCount int `json:"archived_count"`
}

// previewLength caps the impact/history content preview.
const previewLength = 100

func preview(content string) string {
	runes := []rune(content)
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "..."
	}
	return content
}
