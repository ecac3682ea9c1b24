package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclosion/backend/internal/database"
	"github.com/eclosion/backend/internal/notes"
	"github.com/eclosion/backend/internal/recurring"
	"github.com/eclosion/backend/internal/refunds"
	"github.com/eclosion/backend/internal/security"
	"github.com/eclosion/backend/internal/session"
	"github.com/eclosion/backend/internal/upstream"
)

// stubUpstream satisfies upstream.Client with canned data.
type stubUpstream struct {
	groups []upstream.CategoryGroup
	tags   []upstream.Tag
	txns   []upstream.Transaction
}

func (s *stubUpstream) GetTransactions(ctx context.Context, f upstream.TransactionFilter) ([]upstream.Transaction, error) {
	return s.txns, nil
}
func (s *stubUpstream) GetTags(ctx context.Context) ([]upstream.Tag, error) { return s.tags, nil }
func (s *stubUpstream) GetCategoryGroups(ctx context.Context) ([]upstream.CategoryGroup, error) {
	return s.groups, nil
}
func (s *stubUpstream) GetAccounts(ctx context.Context) ([]upstream.Account, error) {
	return nil, nil
}
func (s *stubUpstream) SetTransactionTags(ctx context.Context, id string, tagIDs []string) error {
	return nil
}
func (s *stubUpstream) GetTransactionNotes(ctx context.Context, id string) (string, error) {
	return "", nil
}
func (s *stubUpstream) UpdateTransactionNotes(ctx context.Context, id, n string) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *stubUpstream) {
	t.Helper()
	db := database.MustOpenForTest()
	t.Cleanup(func() { db.Close() })

	up := &stubUpstream{}
	targetStore := recurring.NewStore(db)

	srv := NewServer(Deps{
		Notes:     notes.NewRepository(db),
		Refunds:   refunds.NewService(refunds.NewRepository(db), up),
		Security:  security.NewService(db, "", time.Second, 90),
		Recurring: recurring.NewCalculator(targetStore),
		Targets:   targetStore,
		Session:   session.New(),
		Creds:     session.NewRepository(db),
		Upstream:  up,
	})
	return srv, up
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.5:40000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestMissingPassphraseRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec, payload := doJSON(t, router, "GET", "/api/notes/month/2025-01", nil, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "Session expired. Please unlock again.", payload["error"])
	assert.Equal(t, "validation_error", payload["code"])
}

func TestInvalidMonthKeyRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec, payload := doJSON(t, router, "GET", "/api/notes/month/January", nil,
		map[string]string{"X-Notes-Key": "test-key"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid month_key format. Expected YYYY-MM.", payload["error"])
}

func TestNoteSaveAndMonthFetch(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	headers := map[string]string{"X-Notes-Key": "test-key"}

	rec, payload := doJSON(t, router, "POST", "/api/notes/category", map[string]any{
		"category_type": "category",
		"category_id":   "cat-1",
		"category_name": "Groceries",
		"month_key":     "2025-01",
		"content":       "Budget for the holidays",
	}, headers)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, payload["success"])
	note := payload["note"].(map[string]any)
	assert.Equal(t, "Budget for the holidays", note["content"])

	// Inherited into a later month.
	rec, payload = doJSON(t, router, "GET", "/api/notes/month/2025-03", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	effective := payload["effective_notes"].(map[string]any)
	entry := effective["category:cat-1"].(map[string]any)
	assert.Equal(t, true, entry["is_inherited"])
	assert.Equal(t, "2025-01", entry["source_month"])
}

func TestWrongKeyReadsAsAuthError(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	_, _ = doJSON(t, router, "POST", "/api/notes/category", map[string]any{
		"category_type": "category",
		"category_id":   "cat-1",
		"category_name": "Groceries",
		"month_key":     "2025-01",
		"content":       "secret",
	}, map[string]string{"X-Notes-Key": "right-key"})

	rec, payload := doJSON(t, router, "GET", "/api/notes/month/2025-01", nil,
		map[string]string{"X-Notes-Key": "wrong-key"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_error", payload["code"])
}

func TestSyncCategoriesArchivesDeleted(t *testing.T) {
	srv, up := newTestServer(t)
	router := srv.Router()
	headers := map[string]string{"X-Notes-Key": "test-key"}

	for _, id := range []string{"cat-1", "cat-2"} {
		rec, _ := doJSON(t, router, "POST", "/api/notes/category", map[string]any{
			"category_type": "category",
			"category_id":   id,
			"category_name": "Name " + id,
			"month_key":     "2025-01",
			"content":       "note for " + id,
		}, headers)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Upstream now only knows cat-1.
	up.groups = []upstream.CategoryGroup{
		{ID: "grp-1", Name: "Essentials", Categories: []upstream.Category{{ID: "cat-1", Name: "Groceries"}}},
	}

	rec, payload := doJSON(t, router, "POST", "/api/notes/sync-categories", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), payload["archived_count"])

	rec, payload = doJSON(t, router, "GET", "/api/notes/archived", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	archived := payload["archived_notes"].([]any)
	assert.Len(t, archived, 1)
}

func TestCheckboxUpdateValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	headers := map[string]string{"X-Notes-Key": "test-key"}

	rec, payload := doJSON(t, router, "POST", "/api/notes/checkboxes", map[string]any{
		"viewing_month":  "2025-01",
		"checkbox_index": 0,
		"is_checked":     true,
	}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Must provide either note_id or general_note_month_key.", payload["error"])

	rec, payload = doJSON(t, router, "POST", "/api/notes/checkboxes", map[string]any{
		"note_id":        "note-1",
		"viewing_month":  "2025-01",
		"checkbox_index": -1,
		"is_checked":     true,
	}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid checkbox_index. Must be a non-negative integer.", payload["error"])
}

func TestRefundViewValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec, payload := doJSON(t, router, "POST", "/api/refunds/views", map[string]any{
		"name": "",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Name is required", payload["error"])

	rec, payload = doJSON(t, router, "POST", "/api/refunds/views", map[string]any{
		"name": "Returns",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "At least one tag or category is required", payload["error"])

	rec, payload = doJSON(t, router, "POST", "/api/refunds/views", map[string]any{
		"name":   "Returns",
		"tagIds": []string{"tag-1"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["success"])
}

func TestRefundConfigDefaults(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec, payload := doJSON(t, router, "GET", "/api/refunds/config", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["replaceTagByDefault"])
	assert.Equal(t, float64(30), payload["agingWarningDays"])
}

func TestSetupUnlockLockFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec, _ := doJSON(t, router, "POST", "/api/security/setup", map[string]any{
		"email":      "me@example.com",
		"password":   "hunter2",
		"passphrase": "correct horse",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Wrong passphrase fails with an auth error and logs an attempt.
	rec, payload := doJSON(t, router, "POST", "/api/security/unlock", map[string]any{
		"passphrase": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_error", payload["code"])

	rec, payload = doJSON(t, router, "POST", "/api/security/unlock", map[string]any{
		"passphrase": "correct horse",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, payload["unlocked"])
	assert.True(t, srv.session.Active())

	// Session-backed cipher now serves notes without the header.
	rec, _ = doJSON(t, router, "GET", "/api/notes/month/2025-01", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, "POST", "/api/security/lock", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, srv.session.Active())
}

func TestUnlockWithoutSetup(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec, payload := doJSON(t, router, "POST", "/api/security/unlock", map[string]any{
		"passphrase": "anything",
	}, nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "not_configured", payload["code"])
}

func TestUnlockLockoutAfterRepeatedFailures(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec, _ := doJSON(t, router, "POST", "/api/security/setup", map[string]any{
		"email":      "me@example.com",
		"password":   "hunter2",
		"passphrase": "correct horse",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 9; i++ {
		rec, _ = doJSON(t, router, "POST", "/api/security/unlock", map[string]any{
			"passphrase": fmt.Sprintf("wrong-%d", i),
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// The tenth failure trips the lockout.
	rec, payload := doJSON(t, router, "POST", "/api/security/unlock", map[string]any{
		"passphrase": "wrong-9",
	}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", payload["code"])
	assert.Greater(t, payload["retry_after"].(float64), float64(0))

	// Even the right passphrase is refused while locked out.
	rec, payload = doJSON(t, router, "POST", "/api/security/unlock", map[string]any{
		"passphrase": "correct horse",
	}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", payload["code"])
}

func TestSecurityEventsRecorded(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	doJSON(t, router, "POST", "/api/security/setup", map[string]any{
		"email":      "me@example.com",
		"password":   "hunter2",
		"passphrase": "correct horse",
	}, nil)
	doJSON(t, router, "POST", "/api/security/unlock", map[string]any{
		"passphrase": "wrong",
	}, nil)

	rec, payload := doJSON(t, router, "GET", "/api/security/events?event_types=UNLOCK_ATTEMPT", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), payload["total"])

	rec, payload = doJSON(t, router, "GET", "/api/security/summary", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), payload["failed_unlock_attempts"])
}

func TestRecurringCalculateAndClear(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	body := map[string]any{
		"items": []map[string]any{{
			"recurring_id":        "rec-1",
			"category_id":         "cat-1",
			"amount":              600,
			"frequency_months":    12,
			"months_until_due":    6,
			"rollover_amount":     150,
			"budgeted_this_month": 75,
		}},
	}

	rec, payload := doJSON(t, router, "POST", "/api/recurring/calculate", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	targets := payload["targets"].(map[string]any)
	result := targets["rec-1"].(map[string]any)
	assert.Equal(t, float64(75), result["frozen_target"])
	assert.Equal(t, true, result["was_recalculated"])

	// Same inputs in the same month reuse the freeze.
	rec, payload = doJSON(t, router, "POST", "/api/recurring/calculate", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result = payload["targets"].(map[string]any)["rec-1"].(map[string]any)
	assert.Equal(t, false, result["was_recalculated"])

	rec, payload = doJSON(t, router, "GET", "/api/recurring/targets", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, payload["targets"].([]any), 1)

	rec, _ = doJSON(t, router, "DELETE", "/api/recurring/targets", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, payload = doJSON(t, router, "GET", "/api/recurring/targets", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, payload["targets"].([]any), 0)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec, payload := doJSON(t, router, "GET", "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, false, payload["unlocked"])
}
