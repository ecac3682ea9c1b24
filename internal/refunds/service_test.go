package refunds

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclosion/backend/internal/core"
	"github.com/eclosion/backend/internal/database"
	"github.com/eclosion/backend/internal/upstream"
)

// fakeClient is an in-memory upstream for service tests.
type fakeClient struct {
	transactions []upstream.Transaction
	notes        map[string]string
	tags         map[string][]string

	lastFilter upstream.TransactionFilter
	getCalls   int
}

func newFakeClient(transactions ...upstream.Transaction) *fakeClient {
	return &fakeClient{
		transactions: transactions,
		notes:        map[string]string{},
		tags:         map[string][]string{},
	}
}

func (f *fakeClient) GetTransactions(_ context.Context, filter upstream.TransactionFilter) ([]upstream.Transaction, error) {
	f.getCalls++
	f.lastFilter = filter
	if filter.Limit > 0 {
		start := filter.Offset
		if start > len(f.transactions) {
			return nil, nil
		}
		end := min(start+filter.Limit, len(f.transactions))
		return f.transactions[start:end], nil
	}
	return f.transactions, nil
}

func (f *fakeClient) GetTags(context.Context) ([]upstream.Tag, error) { return nil, nil }

func (f *fakeClient) GetCategoryGroups(context.Context) ([]upstream.CategoryGroup, error) {
	return nil, nil
}

func (f *fakeClient) GetAccounts(context.Context) ([]upstream.Account, error) { return nil, nil }

func (f *fakeClient) SetTransactionTags(_ context.Context, id string, tagIDs []string) error {
	f.tags[id] = tagIDs
	return nil
}

func (f *fakeClient) GetTransactionNotes(_ context.Context, id string) (string, error) {
	return f.notes[id], nil
}

func (f *fakeClient) UpdateTransactionNotes(_ context.Context, id, notes string) error {
	f.notes[id] = notes
	return nil
}

func newTestService(t *testing.T, client *fakeClient) (*Service, *Repository) {
	t.Helper()
	db := database.MustOpenForTest()
	t.Cleanup(func() { db.Close() })
	repo := NewRepository(db)
	return NewService(repo, client), repo
}

func expense(id string, amount float64, tagIDs []string, categoryID string) upstream.Transaction {
	tags := make([]upstream.Tag, len(tagIDs))
	for i, tid := range tagIDs {
		tags[i] = upstream.Tag{ID: tid}
	}
	return upstream.Transaction{ID: id, Amount: amount, Tags: tags, CategoryID: categoryID}
}

func TestConfigDefaults(t *testing.T) {
	svc, _ := newTestService(t, newFakeClient())

	cfg, err := svc.GetConfig()
	require.NoError(t, err)
	assert.True(t, cfg.ReplaceTagByDefault)
	assert.Equal(t, 30, cfg.AgingWarningDays)
	assert.True(t, cfg.ShowBadge)
	assert.False(t, cfg.HideMatchedTransactions)
}

func TestConfigPartialUpdate(t *testing.T) {
	svc, _ := newTestService(t, newFakeClient())

	days := 14
	cfg, err := svc.UpdateConfig(ConfigUpdate{AgingWarningDays: &days})
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.AgingWarningDays)
	assert.True(t, cfg.ReplaceTagByDefault, "untouched fields keep their value")
}

func TestViewLifecycle(t *testing.T) {
	svc, _ := newTestService(t, newFakeClient())

	first, err := svc.CreateView("Returns", []string{"tag-1"}, nil)
	require.NoError(t, err)
	second, err := svc.CreateView("Work", []string{"tag-2"}, []string{"cat-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, first.SortOrder)
	assert.Equal(t, 1, second.SortOrder)

	require.NoError(t, svc.ReorderViews([]string{second.ID, first.ID}))
	views, err := svc.GetViews()
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, second.ID, views[0].ID)

	name := "Work expenses"
	require.NoError(t, svc.UpdateView(second.ID, ViewUpdate{Name: &name}))

	require.NoError(t, svc.DeleteView(first.ID))
	err = svc.DeleteView(first.ID)
	assert.Equal(t, core.KindNotFound, core.AsError(err).Kind)
}

func TestPendingCountSingleUpstreamCall(t *testing.T) {
	client := newFakeClient(
		expense("t1", -20, []string{"tag-a"}, ""),
		expense("t2", -30, []string{"tag-b"}, ""),
		expense("t3", 15, []string{"tag-a"}, ""), // credit, never counted
	)
	svc, _ := newTestService(t, client)

	_, err := svc.CreateView("A", []string{"tag-a"}, nil)
	require.NoError(t, err)
	_, err = svc.CreateView("B", []string{"tag-b"}, nil)
	require.NoError(t, err)

	count, err := svc.GetPendingCount(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, client.getCalls, "all views share one upstream fetch")
	assert.ElementsMatch(t, []string{"tag-a", "tag-b"}, client.lastFilter.TagIDs)
	assert.Empty(t, client.lastFilter.CategoryIDs, "category filters never go upstream")
	assert.Equal(t, 2, count.Count)
}

func TestPendingCountExcludesMatched(t *testing.T) {
	client := newFakeClient(
		expense("t1", -20, []string{"tag-a"}, ""),
		expense("t2", -30, []string{"tag-a"}, ""),
	)
	svc, repo := newTestService(t, client)

	view, err := svc.CreateView("A", []string{"tag-a"}, nil)
	require.NoError(t, err)
	_, err = repo.CreateMatch(Match{OriginalTransactionID: "t1", Skipped: true})
	require.NoError(t, err)

	count, err := svc.GetPendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count.Count)
	assert.Equal(t, 1, count.ViewCounts[view.ID])
}

func TestPendingCountCategoryRestrictedView(t *testing.T) {
	client := newFakeClient(
		expense("t1", -20, []string{"tag-a"}, "cat-1"),
		expense("t2", -30, []string{"tag-a"}, "cat-2"),
	)
	svc, _ := newTestService(t, client)

	restricted, err := svc.CreateView("Restricted", []string{"tag-a"}, []string{"cat-1"})
	require.NoError(t, err)

	count, err := svc.GetPendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count.ViewCounts[restricted.ID], "only cat-1 transactions qualify")
	assert.Equal(t, 1, count.Count)
}

func TestPendingCountGlobalIsUnionAcrossViews(t *testing.T) {
	client := newFakeClient(
		expense("t1", -20, []string{"tag-a", "tag-b"}, ""),
	)
	svc, _ := newTestService(t, client)

	a, err := svc.CreateView("A", []string{"tag-a"}, nil)
	require.NoError(t, err)
	b, err := svc.CreateView("B", []string{"tag-b"}, nil)
	require.NoError(t, err)

	count, err := svc.GetPendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count.ViewCounts[a.ID])
	assert.Equal(t, 1, count.ViewCounts[b.ID])
	assert.Equal(t, 1, count.Count, "a transaction in two views counts once globally")
}

func TestPendingCountExcludeFromAll(t *testing.T) {
	client := newFakeClient(
		expense("t1", -20, []string{"tag-a"}, ""),
	)
	svc, _ := newTestService(t, client)

	view, err := svc.CreateView("Hidden", []string{"tag-a"}, nil)
	require.NoError(t, err)
	exclude := true
	require.NoError(t, svc.UpdateView(view.ID, ViewUpdate{ExcludeFromAll: &exclude}))

	count, err := svc.GetPendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count.ViewCounts[view.ID], "the view still counts its own transactions")
	assert.Equal(t, 0, count.Count, "but they stay out of the aggregate")
}

func TestPendingCountNoViews(t *testing.T) {
	client := newFakeClient()
	svc, _ := newTestService(t, client)

	count, err := svc.GetPendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count.Count)
	assert.Equal(t, 0, client.getCalls, "no views means no upstream call")
}

func TestCreateMatchWritesNoteBlock(t *testing.T) {
	client := newFakeClient()
	svc, _ := newTestService(t, client)

	_, err := svc.CreateMatch(context.Background(), CreateMatchParams{
		Match: Match{
			OriginalTransactionID: "t1",
			RefundTransactionID:   "r1",
			RefundAmount:          floatPtr(-42.5),
			RefundMerchant:        "Acme",
			RefundDate:            "2025-03-07",
			RefundAccount:         "Checking",
		},
		OriginalNotes: "my note",
	})
	require.NoError(t, err)

	assert.Equal(t,
		"my note\n\n── Refund Matched ──\n$42.50 from \"Acme\" on 3/7/2025 via Checking\n──────────",
		client.notes["t1"])
}

func TestCreateMatchDuplicateConflicts(t *testing.T) {
	svc, _ := newTestService(t, newFakeClient())

	params := CreateMatchParams{Match: Match{OriginalTransactionID: "t1", Skipped: true}}
	_, err := svc.CreateMatch(context.Background(), params)
	require.NoError(t, err)

	_, err = svc.CreateMatch(context.Background(), params)
	assert.Equal(t, core.KindConflict, core.AsError(err).Kind)
}

func TestCreateMatchConcurrentLoserConflicts(t *testing.T) {
	_, repo := newTestService(t, newFakeClient())

	_, err := repo.CreateMatch(Match{OriginalTransactionID: "t1", Skipped: true})
	require.NoError(t, err)

	// A second writer that slipped past the service's duplicate check
	// loses on the unique index and still reads as a conflict.
	_, err = repo.CreateMatch(Match{OriginalTransactionID: "t1", Skipped: true})
	assert.Equal(t, core.KindConflict, core.AsError(err).Kind)
}

func TestCreateMatchSkippedWritesNothingUpstream(t *testing.T) {
	client := newFakeClient()
	svc, _ := newTestService(t, client)

	_, err := svc.CreateMatch(context.Background(), CreateMatchParams{
		Match: Match{OriginalTransactionID: "t1", Skipped: true},
	})
	require.NoError(t, err)
	assert.Empty(t, client.notes)
	assert.Empty(t, client.tags)
}

func TestCreateMatchReplacesViewTagsOnly(t *testing.T) {
	client := newFakeClient()
	svc, _ := newTestService(t, client)

	tagID := "tag-refunded"
	_, err := svc.UpdateConfig(ConfigUpdate{ReplacementTagID: &tagID})
	require.NoError(t, err)

	_, err = svc.CreateMatch(context.Background(), CreateMatchParams{
		Match: Match{
			OriginalTransactionID: "t1",
			RefundAmount:          floatPtr(-10),
		},
		ReplaceTag:     true,
		OriginalTagIDs: []string{"tag-view", "tag-other"},
		ViewTagIDs:     []string{"tag-view"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tag-other", "tag-refunded"}, client.tags["t1"],
		"other views' tags survive, replacement tag appended")
}

func TestCreateMatchExpectedSkipsTagReplacement(t *testing.T) {
	client := newFakeClient()
	svc, _ := newTestService(t, client)

	_, err := svc.CreateMatch(context.Background(), CreateMatchParams{
		Match: Match{
			OriginalTransactionID: "t1",
			ExpectedRefund:        true,
			ExpectedAmount:        floatPtr(25),
			ExpectedDate:          "2025-06-15",
		},
		ReplaceTag:     true,
		OriginalTagIDs: []string{"tag-view"},
	})
	require.NoError(t, err)

	assert.Empty(t, client.tags, "expected refunds never touch tags")
	assert.Contains(t, client.notes["t1"], "── Expected Refund ──")
}

func TestDeleteMatchRestoresTagsAndNotes(t *testing.T) {
	client := newFakeClient()
	svc, _ := newTestService(t, client)

	snapshot, err := json.Marshal(map[string]any{
		"tags": []map[string]string{{"id": "tag-a"}, {"id": "tag-b"}},
	})
	require.NoError(t, err)

	match, err := svc.CreateMatch(context.Background(), CreateMatchParams{
		Match: Match{
			OriginalTransactionID: "t1",
			RefundAmount:          floatPtr(-10),
			TransactionData:       snapshot,
		},
		OriginalNotes: "keep me",
	})
	require.NoError(t, err)
	require.Contains(t, client.notes["t1"], "── Refund Matched ──")

	require.NoError(t, svc.DeleteMatch(context.Background(), match.ID))

	assert.Equal(t, "keep me", client.notes["t1"], "the block is stripped, user notes stay")
	assert.Equal(t, []string{"tag-a", "tag-b"}, client.tags["t1"])

	err = svc.DeleteMatch(context.Background(), match.ID)
	assert.Equal(t, core.KindNotFound, core.AsError(err).Kind)
}

func TestSearchForRefundCursor(t *testing.T) {
	client := newFakeClient(
		expense("c1", 10, nil, ""),
		expense("c2", 20, nil, ""),
		expense("c3", 30, nil, ""),
	)
	svc, _ := newTestService(t, client)

	page, err := svc.SearchForRefund(context.Background(), "acme", "", "", 2, 0)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, 2, *page.NextCursor)
	assert.True(t, client.lastFilter.CreditsOnly)

	page, err = svc.SearchForRefund(context.Background(), "acme", "", "", 2, *page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 1)
	assert.Nil(t, page.NextCursor, "short page ends pagination")
}
