package notes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCheckboxExtendsSparseIndex(t *testing.T) {
	repo, cipher := newTestRepo(t)
	note := saveNote(t, repo, cipher, "cat-1", "2025-03", "- [ ] a\n- [ ] b\n- [ ] c")

	states, err := repo.UpdateCheckboxState(UpdateCheckboxParams{
		NoteID: note.ID, ViewingMonth: "2025-03", Index: 2, Checked: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, states)
}

func TestCheckboxStatePerViewingMonth(t *testing.T) {
	repo, cipher := newTestRepo(t)
	note := saveNote(t, repo, cipher, "cat-1", "2025-01", "- [ ] recurring task")

	// The same inherited note tracks state independently per month.
	_, err := repo.UpdateCheckboxState(UpdateCheckboxParams{
		NoteID: note.ID, ViewingMonth: "2025-02", Index: 0, Checked: true,
	})
	require.NoError(t, err)

	feb, err := repo.GetCheckboxStates(note.ID, "2025-02")
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, feb)

	mar, err := repo.GetCheckboxStates(note.ID, "2025-03")
	require.NoError(t, err)
	assert.Empty(t, mar)
}

func TestGeneralCheckboxStates(t *testing.T) {
	repo, cipher := newTestRepo(t)
	_, err := repo.SaveGeneralNote(cipher, "2025-01", "- [ ] renew insurance")
	require.NoError(t, err)

	_, err = repo.UpdateCheckboxState(UpdateCheckboxParams{
		GeneralMonthKey: "2025-01", ViewingMonth: "2025-03", Index: 0, Checked: true,
	})
	require.NoError(t, err)

	states, err := repo.GetGeneralCheckboxStates("2025-01", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, states)

	all, err := repo.GetAllCheckboxStatesForMonth("2025-03")
	require.NoError(t, err)
	assert.Equal(t, map[string][]bool{"general:2025-01": {true}}, all)
}

func TestClearCheckboxStatesForViewingMonths(t *testing.T) {
	repo, cipher := newTestRepo(t)
	note := saveNote(t, repo, cipher, "cat-1", "2025-01", "- [ ] task")

	for _, month := range []string{"2025-02", "2025-03", "2025-04"} {
		_, err := repo.UpdateCheckboxState(UpdateCheckboxParams{
			NoteID: note.ID, ViewingMonth: month, Index: 0, Checked: true,
		})
		require.NoError(t, err)
	}

	cleared, err := repo.ClearCheckboxStatesForViewingMonths(note.ID, "", []string{"2025-02", "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	remaining, err := repo.GetCheckboxStatesByViewingMonths(note.ID, "", []string{"2025-02", "2025-03", "2025-04"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]bool{"2025-04": {true}}, remaining)
}

func TestClearCheckboxStatesForNote(t *testing.T) {
	repo, cipher := newTestRepo(t)
	note := saveNote(t, repo, cipher, "cat-1", "2025-01", "- [ ] task")

	_, err := repo.UpdateCheckboxState(UpdateCheckboxParams{
		NoteID: note.ID, ViewingMonth: "2025-02", Index: 0, Checked: true,
	})
	require.NoError(t, err)

	cleared, err := repo.ClearCheckboxStatesForNote(note.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
}
