package upstream

import "context"

// The upstream budgeting service is the system of record for
// transactions, tags, and categories. This package defines the narrow
// surface the rest of the app consumes; http.go implements it over the
// service's REST API.

// Transaction is one upstream transaction. Amounts are negative for
// expenses. Date is YYYY-MM-DD.
type Transaction struct {
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date"`
	MerchantName string  `json:"merchant_name"`
	AccountID    string  `json:"account_id"`
	AccountName  string  `json:"account_name"`
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Notes        string  `json:"notes"`
	Tags         []Tag   `json:"tags"`
	IconURL      string  `json:"icon_url,omitempty"`
}

// Tag is an upstream transaction tag.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Category is one budget category inside a group.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoryGroup is an upstream category group with its categories.
type CategoryGroup struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Categories []Category `json:"categories"`
}

// Account is an upstream account, used when recording where an
// expected refund will land.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TransactionFilter narrows a transaction fetch. Zero values mean
// unfiltered; Limit 0 means the server default.
type TransactionFilter struct {
	TagIDs      []string
	CategoryIDs []string
	Search      string
	StartDate   string
	EndDate     string
	// CreditsOnly restricts results to positive amounts server-side.
	CreditsOnly bool
	Limit       int
	Offset      int
}

// Client is the upstream surface the app depends on.
type Client interface {
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetTags(ctx context.Context) ([]Tag, error)
	GetCategoryGroups(ctx context.Context) ([]CategoryGroup, error)
	GetAccounts(ctx context.Context) ([]Account, error)
	SetTransactionTags(ctx context.Context, transactionID string, tagIDs []string) error
	GetTransactionNotes(ctx context.Context, transactionID string) (string, error)
	UpdateTransactionNotes(ctx context.Context, transactionID, notes string) error
}
