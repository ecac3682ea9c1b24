package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eclosion/backend/internal/core"
	"github.com/eclosion/backend/internal/refunds"
	"github.com/eclosion/backend/internal/upstream"
)

func (s *Server) registerRefundsRoutes(r *mux.Router) {
	r.HandleFunc("/config", s.handleRefundsConfig).Methods("GET")
	r.HandleFunc("/config", s.handleUpdateRefundsConfig).Methods("PATCH")
	r.HandleFunc("/pending-count", s.handlePendingCount).Methods("GET")
	r.HandleFunc("/tags", s.handleRefundTags).Methods("GET")
	r.HandleFunc("/views", s.handleGetViews).Methods("GET")
	r.HandleFunc("/views", s.handleCreateView).Methods("POST")
	r.HandleFunc("/views/reorder", s.handleReorderViews).Methods("POST")
	r.HandleFunc("/views/{view_id}", s.handleUpdateView).Methods("PATCH")
	r.HandleFunc("/views/{view_id}", s.handleDeleteView).Methods("DELETE")
	r.HandleFunc("/transactions", s.handleRefundTransactions).Methods("POST")
	r.HandleFunc("/search", s.handleRefundSearch).Methods("POST")
	r.HandleFunc("/matches", s.handleGetMatches).Methods("GET")
	r.HandleFunc("/match", s.handleCreateMatch).Methods("POST")
	r.HandleFunc("/match/{match_id}", s.handleDeleteMatch).Methods("DELETE")
}

func (s *Server) handleRefundsConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.refunds.GetConfig()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateRefundsConfig(w http.ResponseWriter, r *http.Request) {
	var u refunds.ConfigUpdate
	if err := decode(r, &u); err != nil {
		s.fail(w, err)
		return
	}

	cfg, err := s.refunds.UpdateConfig(u)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.refunds.GetPendingCount(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, count)
}

func (s *Server) handleRefundTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.refunds.GetTags(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// ============================================================
// Saved views
// ============================================================

func (s *Server) handleGetViews(w http.ResponseWriter, r *http.Request) {
	views, err := s.refunds.GetViews()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"views": views})
}

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		TagIDs      []string `json:"tagIds"`
		CategoryIDs []string `json:"categoryIds"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	name := core.SanitizeName(req.Name)
	if name == "" {
		s.fail(w, core.ValidationError("Name is required"))
		return
	}
	if len(req.TagIDs) == 0 && len(req.CategoryIDs) == 0 {
		s.fail(w, core.ValidationError("At least one tag or category is required"))
		return
	}

	view, err := s.refunds.CreateView(name, req.TagIDs, req.CategoryIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, map[string]any{"view": view})
}

func (s *Server) handleUpdateView(w http.ResponseWriter, r *http.Request) {
	var u refunds.ViewUpdate
	if err := decode(r, &u); err != nil {
		s.fail(w, err)
		return
	}
	if u.Name != nil {
		name := core.SanitizeName(*u.Name)
		u.Name = &name
	}

	if err := s.refunds.UpdateView(mux.Vars(r)["view_id"], u); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	if err := s.refunds.DeleteView(mux.Vars(r)["view_id"]); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) handleReorderViews(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ViewIDs []string `json:"viewIds"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	if err := s.refunds.ReorderViews(req.ViewIDs); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

// ============================================================
// Transactions and matches
// ============================================================

func (s *Server) handleRefundTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TagIDs      []string `json:"tagIds"`
		CategoryIDs []string `json:"categoryIds"`
		StartDate   string   `json:"startDate"`
		EndDate     string   `json:"endDate"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	// A view with neither filter matches nothing; skip the upstream call.
	if len(req.TagIDs) == 0 && len(req.CategoryIDs) == 0 {
		s.writeJSON(w, http.StatusOK, map[string]any{"transactions": []upstream.Transaction{}})
		return
	}

	txns, err := s.refunds.GetTransactions(r.Context(), req.TagIDs, req.CategoryIDs, req.StartDate, req.EndDate)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (s *Server) handleRefundSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Search    string `json:"search"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Limit     int    `json:"limit"`
		Cursor    int    `json:"cursor"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	result, err := s.refunds.SearchForRefund(r.Context(), req.Search, req.StartDate, req.EndDate, req.Limit, req.Cursor)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.refunds.GetMatches()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var p refunds.CreateMatchParams
	if err := decode(r, &p); err != nil {
		s.fail(w, err)
		return
	}
	if p.OriginalTransactionID == "" {
		s.fail(w, core.ValidationError("originalTransactionId is required"))
		return
	}

	match, err := s.refunds.CreateMatch(r.Context(), p)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordMatchCreated(match.ExpectedRefund, match.Skipped)
	}
	s.ok(w, map[string]any{"match": match})
}

func (s *Server) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	if err := s.refunds.DeleteMatch(r.Context(), mux.Vars(r)["match_id"]); err != nil {
		s.fail(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.MatchesDeleted.Inc()
	}
	s.ok(w, nil)
}
