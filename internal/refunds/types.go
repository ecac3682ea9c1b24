package refunds

import "encoding/json"

// Config holds the singleton refunds settings. JSON keys are camelCase
// to match the client API.
type Config struct {
	ReplacementTagID         string `json:"replacementTagId,omitempty"`
	ReplaceTagByDefault      bool   `json:"replaceTagByDefault"`
	AgingWarningDays         int    `json:"agingWarningDays"`
	ShowBadge                bool   `json:"showBadge"`
	HideMatchedTransactions  bool   `json:"hideMatchedTransactions"`
	HideExpectedTransactions bool   `json:"hideExpectedTransactions"`
}

// ConfigUpdate is a partial config change; nil fields are untouched.
type ConfigUpdate struct {
	ReplacementTagID         *string `json:"replacementTagId"`
	ReplaceTagByDefault      *bool   `json:"replaceTagByDefault"`
	AgingWarningDays         *int    `json:"agingWarningDays"`
	ShowBadge                *bool   `json:"showBadge"`
	HideMatchedTransactions  *bool   `json:"hideMatchedTransactions"`
	HideExpectedTransactions *bool   `json:"hideExpectedTransactions"`
}

// SavedView is one tag-filtered tab. CategoryIDs nil means no category
// restriction; ExcludeFromAll keeps the view's transactions out of the
// aggregate "all" tally while still counting within the view.
type SavedView struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	TagIDs         []string `json:"tagIds"`
	CategoryIDs    []string `json:"categoryIds,omitempty"`
	SortOrder      int      `json:"sortOrder"`
	ExcludeFromAll bool     `json:"excludeFromAll"`
}

// ViewUpdate is a partial view change; nil fields are untouched. An
// explicit empty CategoryIDs clears the restriction.
type ViewUpdate struct {
	Name           *string   `json:"name"`
	TagIDs         *[]string `json:"tagIds"`
	CategoryIDs    *[]string `json:"categoryIds"`
	SortOrder      *int      `json:"sortOrder"`
	ExcludeFromAll *bool     `json:"excludeFromAll"`
}

// Match records one handled original transaction: matched to a refund,
// expected, or skipped. TransactionData is the snapshot of the original
// transaction taken at match time, used to restore tags on unmatch.
type Match struct {
	ID                    string          `json:"id"`
	OriginalTransactionID string          `json:"originalTransactionId"`
	RefundTransactionID   string          `json:"refundTransactionId,omitempty"`
	RefundAmount          *float64        `json:"refundAmount"`
	RefundMerchant        string          `json:"refundMerchant,omitempty"`
	RefundDate            string          `json:"refundDate,omitempty"`
	RefundAccount         string          `json:"refundAccount,omitempty"`
	Skipped               bool            `json:"skipped"`
	ExpectedRefund        bool            `json:"expectedRefund"`
	ExpectedDate          string          `json:"expectedDate,omitempty"`
	ExpectedAccount       string          `json:"expectedAccount,omitempty"`
	ExpectedAccountID     string          `json:"expectedAccountId,omitempty"`
	ExpectedNote          string          `json:"expectedNote,omitempty"`
	ExpectedAmount        *float64        `json:"expectedAmount"`
	TransactionData       json.RawMessage `json:"transactionData,omitempty"`
}

// CreateMatchParams carries everything CreateMatch needs, including the
// context for upstream side effects.
type CreateMatchParams struct {
	Match
	// ReplaceTag triggers tag replacement on the original transaction.
	ReplaceTag bool
	// OriginalTagIDs are the transaction's tags before matching.
	OriginalTagIDs []string
	// OriginalNotes are the transaction's upstream notes before matching.
	OriginalNotes string
	// ViewTagIDs limits tag removal to the active view's tags.
	ViewTagIDs []string
}

// PendingCount is the unmatched-expense tally.
type PendingCount struct {
	Count      int            `json:"count"`
	ViewCounts map[string]int `json:"viewCounts"`
}
