package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eclosion/backend/internal/core"
)

// HTTPClient talks to the upstream budgeting service's REST API. Auth
// is a bearer token supplied per request so the client survives
// re-login without rebuild.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   func() string
}

// NewHTTPClient builds a client for the given base URL. token is
// called per request and may return "" before login.
func NewHTTPClient(baseURL string, token func() string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
	}
}

func (c *HTTPClient) GetTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	q := url.Values{}
	if len(filter.TagIDs) > 0 {
		q.Set("tag_ids", strings.Join(filter.TagIDs, ","))
	}
	if len(filter.CategoryIDs) > 0 {
		q.Set("category_ids", strings.Join(filter.CategoryIDs, ","))
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.StartDate != "" {
		q.Set("start_date", filter.StartDate)
	}
	if filter.EndDate != "" {
		q.Set("end_date", filter.EndDate)
	}
	if filter.CreditsOnly {
		q.Set("credits_only", "true")
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/transactions", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

func (c *HTTPClient) GetTags(ctx context.Context) ([]Tag, error) {
	var out struct {
		Tags []Tag `json:"tags"`
	}
	if err := c.do(ctx, http.MethodGet, "/tags", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

func (c *HTTPClient) GetCategoryGroups(ctx context.Context) ([]CategoryGroup, error) {
	var out struct {
		Groups []CategoryGroup `json:"category_groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/category-groups", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

func (c *HTTPClient) GetAccounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

func (c *HTTPClient) SetTransactionTags(ctx context.Context, transactionID string, tagIDs []string) error {
	body := map[string]any{"tag_ids": tagIDs}
	return c.do(ctx, http.MethodPut, "/transactions/"+url.PathEscape(transactionID)+"/tags", nil, body, nil)
}

func (c *HTTPClient) GetTransactionNotes(ctx context.Context, transactionID string) (string, error) {
	var out struct {
		Notes string `json:"notes"`
	}
	err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(transactionID)+"/notes", nil, nil, &out)
	if err != nil {
		return "", err
	}
	return out.Notes, nil
}

func (c *HTTPClient) UpdateTransactionNotes(ctx context.Context, transactionID, notes string) error {
	body := map[string]any{"notes": notes}
	return c.do(ctx, http.MethodPut, "/transactions/"+url.PathEscape(transactionID)+"/notes", nil, body, nil)
}

// do runs one request and decodes the JSON response into out. Upstream
// failures map onto the app's error kinds so handlers never leak raw
// HTTP statuses.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.WrapError(core.KindUpstream, "upstream request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return core.AuthError("upstream session expired")
	case resp.StatusCode == http.StatusPreconditionRequired:
		// The budgeting service answers 428 when it wants a second factor.
		return core.NewError(core.KindMFARequired, "Multi-factor authentication required.")
	case resp.StatusCode == http.StatusNotFound:
		return core.NotFoundError("upstream resource not found")
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return core.RateLimitedError("upstream rate limit exceeded", retryAfter)
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.UpstreamError(fmt.Sprintf("upstream returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.WrapError(core.KindUpstream, "failed to decode upstream response", err)
	}
	return nil
}
