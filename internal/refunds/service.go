package refunds

import (
	"context"
	"encoding/json"
	"html"
	"log/slog"

	"github.com/eclosion/backend/internal/core"
	"github.com/eclosion/backend/internal/upstream"
)

// Service ties refund matching to the upstream transaction store. The
// local database is the source of truth for matches; upstream note and
// tag edits are cosmetic side effects and never block a match.
type Service struct {
	repo   *Repository
	client upstream.Client
	logger *slog.Logger
}

func NewService(repo *Repository, client upstream.Client) *Service {
	return &Service{
		repo:   repo,
		client: client,
		logger: slog.Default().With("component", "refunds"),
	}
}

// ============================================================
// Config and views
// ============================================================

func (s *Service) GetConfig() (Config, error) {
	return s.repo.GetConfig()
}

func (s *Service) UpdateConfig(u ConfigUpdate) (Config, error) {
	return s.repo.UpdateConfig(u)
}

func (s *Service) GetViews() ([]SavedView, error) {
	return s.repo.GetViews()
}

func (s *Service) CreateView(name string, tagIDs, categoryIDs []string) (SavedView, error) {
	return s.repo.CreateView(name, tagIDs, categoryIDs)
}

func (s *Service) UpdateView(viewID string, u ViewUpdate) error {
	found, err := s.repo.UpdateView(viewID, u)
	if err != nil {
		return err
	}
	if !found {
		return core.NotFoundError("View not found")
	}
	return nil
}

func (s *Service) DeleteView(viewID string) error {
	deleted, err := s.repo.DeleteView(viewID)
	if err != nil {
		return err
	}
	if !deleted {
		return core.NotFoundError("View not found")
	}
	return nil
}

func (s *Service) ReorderViews(viewIDs []string) error {
	return s.repo.ReorderViews(viewIDs)
}

// ============================================================
// Upstream passthroughs
// ============================================================

func (s *Service) GetTags(ctx context.Context) ([]upstream.Tag, error) {
	return s.client.GetTags(ctx)
}

func (s *Service) GetCategoryGroups(ctx context.Context) ([]upstream.CategoryGroup, error) {
	return s.client.GetCategoryGroups(ctx)
}

func (s *Service) GetAccounts(ctx context.Context) ([]upstream.Account, error) {
	return s.client.GetAccounts(ctx)
}

// GetTransactions fetches the transactions a view displays.
func (s *Service) GetTransactions(ctx context.Context, tagIDs, categoryIDs []string, startDate, endDate string) ([]upstream.Transaction, error) {
	return s.client.GetTransactions(ctx, upstream.TransactionFilter{
		TagIDs:      tagIDs,
		CategoryIDs: categoryIDs,
		StartDate:   startDate,
		EndDate:     endDate,
	})
}

// SearchResult is one page of refund candidates. NextCursor is the raw
// upstream offset for the next page, nil when exhausted.
type SearchResult struct {
	Transactions []upstream.Transaction `json:"transactions"`
	NextCursor   *int                   `json:"nextCursor"`
}

// SearchForRefund pages through credit transactions matching a query.
// The cursor is the upstream offset, not a count of returned credits,
// so a short page means the stream is exhausted.
func (s *Service) SearchForRefund(ctx context.Context, search, startDate, endDate string, limit, cursor int) (SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	transactions, err := s.client.GetTransactions(ctx, upstream.TransactionFilter{
		Search:      search,
		StartDate:   startDate,
		EndDate:     endDate,
		CreditsOnly: true,
		Limit:       limit,
		Offset:      cursor,
	})
	if err != nil {
		return SearchResult{}, err
	}
	if transactions == nil {
		transactions = []upstream.Transaction{}
	}

	result := SearchResult{Transactions: transactions}
	if len(transactions) >= limit {
		next := cursor + limit
		result.NextCursor = &next
	}
	return result, nil
}

// ============================================================
// Pending count
// ============================================================

// GetPendingCount tallies unmatched expenses per view and globally.
// One upstream call fetches the union of every view's tags; category
// restrictions are applied locally per view so a category-restricted
// view never hides transactions from an unrestricted one.
func (s *Service) GetPendingCount(ctx context.Context) (PendingCount, error) {
	count := PendingCount{ViewCounts: map[string]int{}}

	views, err := s.repo.GetViews()
	if err != nil {
		return count, err
	}
	if len(views) == 0 {
		return count, nil
	}

	tagUnion := map[string]struct{}{}
	for _, v := range views {
		for _, id := range v.TagIDs {
			tagUnion[id] = struct{}{}
		}
	}
	if len(tagUnion) == 0 {
		return count, nil
	}
	allTags := make([]string, 0, len(tagUnion))
	for id := range tagUnion {
		allTags = append(allTags, id)
	}

	matches, err := s.repo.GetMatches()
	if err != nil {
		return count, err
	}
	matchedIDs := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		matchedIDs[m.OriginalTransactionID] = struct{}{}
	}

	transactions, err := s.client.GetTransactions(ctx, upstream.TransactionFilter{
		TagIDs: allTags,
	})
	if err != nil {
		return count, err
	}

	// Only expenses count, matching the client-side tally.
	var unmatched []upstream.Transaction
	for _, t := range transactions {
		if t.Amount >= 0 {
			continue
		}
		if _, ok := matchedIDs[t.ID]; ok {
			continue
		}
		unmatched = append(unmatched, t)
	}

	globalIDs := map[string]struct{}{}
	for _, v := range views {
		tagSet := toSet(v.TagIDs)
		var catSet map[string]struct{}
		if v.CategoryIDs != nil {
			catSet = toSet(v.CategoryIDs)
		}
		n := 0
		for _, t := range unmatched {
			if !txnMatchesView(t, tagSet, catSet) {
				continue
			}
			n++
			if !v.ExcludeFromAll {
				globalIDs[t.ID] = struct{}{}
			}
		}
		count.ViewCounts[v.ID] = n
	}
	count.Count = len(globalIDs)
	return count, nil
}

// txnMatchesView decides view membership. Tag overlap qualifies a
// transaction unless the view restricts categories, in which case
// category membership is required and is also sufficient on its own.
func txnMatchesView(t upstream.Transaction, tagSet, catSet map[string]struct{}) bool {
	tagsMatch := false
	if len(tagSet) > 0 {
		for _, tag := range t.Tags {
			if _, ok := tagSet[tag.ID]; ok {
				tagsMatch = true
				break
			}
		}
	}
	if !tagsMatch && catSet == nil {
		return false
	}
	catsMatch := false
	if catSet != nil && t.CategoryID != "" {
		_, catsMatch = catSet[t.CategoryID]
	}
	if !tagsMatch && !catsMatch {
		return false
	}
	return catSet == nil || catsMatch
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ============================================================
// Matches
// ============================================================

func (s *Service) GetMatches() ([]Match, error) {
	return s.repo.GetMatches()
}

// CreateMatch records a match, expected refund, or skip. The local row
// commits first; upstream note and tag edits run afterwards and only
// log on failure.
func (s *Service) CreateMatch(ctx context.Context, p CreateMatchParams) (Match, error) {
	existing, err := s.repo.GetMatchByOriginal(p.OriginalTransactionID)
	if err != nil {
		return Match{}, err
	}
	if existing != nil {
		return Match{}, core.ConflictError("Transaction already matched")
	}

	match, err := s.repo.CreateMatch(p.Match)
	if err != nil {
		return Match{}, err
	}

	switch {
	case p.ExpectedRefund && p.ExpectedAmount != nil:
		block := BuildExpectedRefundNote(p.ExpectedAmount, p.ExpectedDate,
			p.ExpectedAccount, p.ExpectedNote)
		s.appendNoteBlock(ctx, p.OriginalTransactionID, p.OriginalNotes, block)
	case !p.Skipped && !p.ExpectedRefund && p.RefundAmount != nil:
		block := BuildRefundNote(p.RefundAmount, p.RefundMerchant,
			p.RefundDate, p.RefundAccount)
		s.appendNoteBlock(ctx, p.OriginalTransactionID, p.OriginalNotes, block)
	}

	if p.ReplaceTag && !p.ExpectedRefund && p.OriginalTagIDs != nil {
		s.replaceTags(ctx, p)
	}

	return match, nil
}

// appendNoteBlock writes base notes plus a refund block upstream,
// best-effort.
func (s *Service) appendNoteBlock(ctx context.Context, transactionID, originalNotes, block string) {
	base := PrepareOriginalNotes(originalNotes)
	notes := block
	if base != "" {
		notes = base + "\n\n" + block
	}
	if err := s.client.UpdateTransactionNotes(ctx, transactionID, notes); err != nil {
		s.logger.Error("failed to update upstream transaction notes",
			"transaction_id", transactionID, "error", err)
	}
}

// replaceTags removes the active view's tags from the transaction and
// appends the configured replacement tag, best-effort.
func (s *Service) replaceTags(ctx context.Context, p CreateMatchParams) {
	cfg, err := s.repo.GetConfig()
	if err != nil {
		s.logger.Error("failed to load refunds config for tag replacement", "error", err)
		return
	}

	remove := toSet(p.ViewTagIDs)
	if len(remove) == 0 {
		remove = toSet(p.OriginalTagIDs)
	}
	var newTags []string
	for _, id := range p.OriginalTagIDs {
		if _, drop := remove[id]; !drop {
			newTags = append(newTags, id)
		}
	}
	if cfg.ReplacementTagID != "" && !contains(newTags, cfg.ReplacementTagID) {
		newTags = append(newTags, cfg.ReplacementTagID)
	}
	if newTags == nil {
		newTags = []string{}
	}

	if err := s.client.SetTransactionTags(ctx, p.OriginalTransactionID, newTags); err != nil {
		s.logger.Error("failed to update upstream transaction tags",
			"transaction_id", p.OriginalTransactionID, "error", err)
	}
}

// DeleteMatch removes a match and undoes its upstream side effects:
// note blocks are stripped (unless the match was a skip, which never
// wrote one) and the original tags restored from the snapshot.
func (s *Service) DeleteMatch(ctx context.Context, matchID string) error {
	match, err := s.repo.GetMatch(matchID)
	if err != nil {
		return err
	}
	if match == nil {
		return core.NotFoundError("Match not found")
	}

	var originalTagIDs []string
	if !match.ExpectedRefund && len(match.TransactionData) > 0 {
		var snapshot struct {
			Tags []struct {
				ID string `json:"id"`
			} `json:"tags"`
		}
		if err := json.Unmarshal(match.TransactionData, &snapshot); err == nil {
			originalTagIDs = make([]string, 0, len(snapshot.Tags))
			for _, tag := range snapshot.Tags {
				if tag.ID != "" {
					originalTagIDs = append(originalTagIDs, tag.ID)
				}
			}
		}
	}

	deleted, err := s.repo.DeleteMatch(matchID)
	if err != nil {
		return err
	}
	if !deleted {
		return core.NotFoundError("Match not found")
	}

	if !match.Skipped {
		s.stripNoteBlocks(ctx, match.OriginalTransactionID)
	}

	if originalTagIDs != nil {
		if err := s.client.SetTransactionTags(ctx, match.OriginalTransactionID, originalTagIDs); err != nil {
			s.logger.Error("failed to restore upstream transaction tags",
				"transaction_id", match.OriginalTransactionID, "error", err)
		}
	}
	return nil
}

func (s *Service) stripNoteBlocks(ctx context.Context, transactionID string) {
	current, err := s.client.GetTransactionNotes(ctx, transactionID)
	if err != nil {
		s.logger.Error("failed to read upstream transaction notes",
			"transaction_id", transactionID, "error", err)
		return
	}
	if current == "" || !HasRefundNotes(current) {
		return
	}
	cleaned := StripRefundNotes(html.UnescapeString(current))
	if err := s.client.UpdateTransactionNotes(ctx, transactionID, cleaned); err != nil {
		s.logger.Error("failed to strip refund notes upstream",
			"transaction_id", transactionID, "error", err)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
