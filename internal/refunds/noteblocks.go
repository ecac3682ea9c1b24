package refunds

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strings"
	"time"
)

// Note blocks are the annotations appended to upstream transaction
// notes when a refund is matched or expected. The markers make the
// blocks identifiable so they can be stripped cleanly on unmatch.
const (
	matchedMarker  = "── Refund Matched ──"
	expectedMarker = "── Expected Refund ──"
	blockEnd       = "──────────"
)

var (
	// blockPattern matches any refund note block wherever it sits in
	// the notes, eating one surrounding newline on each side.
	blockPattern = regexp.MustCompile(`(?s)\n?── (?:Refund Matched|Expected Refund) ──\n.*?──────────\n?`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// StripRefundNotes removes every refund note block and collapses the
// whitespace left behind.
func StripRefundNotes(notes string) string {
	cleaned := blockPattern.ReplaceAllString(notes, "")
	cleaned = blankLines.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// HasRefundNotes reports whether notes contain a refund block.
func HasRefundNotes(notes string) bool {
	return blockPattern.MatchString(notes)
}

// PrepareOriginalNotes readies upstream notes for appending a new
// block: HTML entities from the API are decoded and any stale blocks
// dropped.
func PrepareOriginalNotes(notes string) string {
	if notes == "" {
		return ""
	}
	return StripRefundNotes(html.UnescapeString(notes))
}

// BuildRefundNote renders the block for a matched refund, e.g.
//
//	── Refund Matched ──
//	$42.50 from "Acme" on 3/7/2025 via Checking
//	──────────
func BuildRefundNote(amount *float64, merchant, date, account string) string {
	var parts []string
	if amount != nil {
		parts = append(parts, fmt.Sprintf("$%.2f", math.Abs(*amount)))
	}
	if merchant != "" {
		// Plain quote wrapping; %q would backslash-escape quotes inside
		// merchant names.
		parts = append(parts, "from \""+html.UnescapeString(merchant)+"\"")
	}
	if date != "" {
		parts = append(parts, "on "+formatNoteDate(date))
	}
	if account != "" {
		parts = append(parts, "via "+html.UnescapeString(account))
	}
	return matchedMarker + "\n" + strings.Join(parts, " ") + "\n" + blockEnd
}

// BuildExpectedRefundNote renders the block for an expected refund,
// with the user's free-text note on its own line.
func BuildExpectedRefundNote(amount *float64, date, account, note string) string {
	var parts []string
	if amount != nil {
		parts = append(parts, fmt.Sprintf("$%.2f", math.Abs(*amount)))
	}
	if date != "" {
		parts = append(parts, "expected by "+formatNoteDate(date))
	}
	if account != "" {
		parts = append(parts, "to "+html.UnescapeString(account))
	}
	body := strings.Join(parts, " ")
	if note != "" {
		body += "\n" + note
	}
	return expectedMarker + "\n" + body + "\n" + blockEnd
}

// formatNoteDate renders YYYY-MM-DD as M/D/YYYY without leading zeros,
// passing unparseable input through untouched.
func formatNoteDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%d/%d/%d", t.Month(), t.Day(), t.Year())
}
