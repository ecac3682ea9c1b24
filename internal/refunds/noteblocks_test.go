package refunds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestBuildRefundNote(t *testing.T) {
	note := BuildRefundNote(floatPtr(-42.5), "Acme Corp", "2025-03-07", "Checking")
	assert.Equal(t,
		"── Refund Matched ──\n$42.50 from \"Acme Corp\" on 3/7/2025 via Checking\n──────────",
		note)
}

func TestBuildRefundNoteMerchantQuotesUnescaped(t *testing.T) {
	note := BuildRefundNote(nil, `Joe's "Diner"`, "", "")
	assert.Equal(t, "── Refund Matched ──\nfrom \"Joe's \"Diner\"\"\n──────────", note)
}

func TestBuildRefundNotePartialFields(t *testing.T) {
	note := BuildRefundNote(floatPtr(10), "", "", "")
	assert.Equal(t, "── Refund Matched ──\n$10.00\n──────────", note)
}

func TestBuildRefundNoteUnparseableDate(t *testing.T) {
	note := BuildRefundNote(nil, "", "sometime soon", "")
	assert.Contains(t, note, "on sometime soon")
}

func TestBuildExpectedRefundNote(t *testing.T) {
	note := BuildExpectedRefundNote(floatPtr(99.99), "2025-12-01", "Savings", "call support first")
	assert.Equal(t,
		"── Expected Refund ──\n$99.99 expected by 12/1/2025 to Savings\ncall support first\n──────────",
		note)
}

func TestStripRefundNotesRemovesBlocks(t *testing.T) {
	notes := "user note\n\n── Refund Matched ──\n$10.00\n──────────\n\ntrailing"
	assert.Equal(t, "user note\n\ntrailing", StripRefundNotes(notes))
}

func TestStripRefundNotesMultipleBlocks(t *testing.T) {
	notes := "── Expected Refund ──\n$5.00\n──────────\nmiddle\n── Refund Matched ──\n$10.00\n──────────"
	assert.Equal(t, "middle", StripRefundNotes(notes))
}

func TestStripRefundNotesCollapsesBlankLines(t *testing.T) {
	notes := "a\n\n\n\nb"
	assert.Equal(t, "a\n\nb", StripRefundNotes(notes))
}

func TestPrepareOriginalNotesDecodesEntities(t *testing.T) {
	assert.Equal(t, "Tom & Jerry", PrepareOriginalNotes("Tom &amp; Jerry"))
	assert.Equal(t, "", PrepareOriginalNotes(""))
}

func TestHasRefundNotes(t *testing.T) {
	assert.True(t, HasRefundNotes("x\n── Refund Matched ──\nbody\n──────────"))
	assert.False(t, HasRefundNotes("plain user note"))
}

func TestNoteBlockRoundTrip(t *testing.T) {
	original := "keep this note"
	block := BuildExpectedRefundNote(floatPtr(25), "2025-06-15", "Checking", "")
	combined := original + "\n\n" + block

	assert.Equal(t, original, StripRefundNotes(combined))
}
