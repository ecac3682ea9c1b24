package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eclosion/backend/internal/core"
	"github.com/eclosion/backend/internal/recurring"
)

func (s *Server) registerRecurringRoutes(r *mux.Router) {
	r.HandleFunc("/calculate", s.handleCalculateTargets).Methods("POST")
	r.HandleFunc("/targets", s.handleListTargets).Methods("GET")
	r.HandleFunc("/targets", s.handleClearTargets).Methods("DELETE")
}

// POST /api/recurring/calculate — resolve frozen monthly targets for a
// batch of recurring items. Targets freeze on first sight each month and
// only recompute when an item's fingerprint changes.
func (s *Server) handleCalculateTargets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []struct {
			RecurringID       string  `json:"recurring_id"`
			CategoryID        string  `json:"category_id"`
			Amount            float64 `json:"amount"`
			FrequencyMonths   float64 `json:"frequency_months"`
			MonthsUntilDue    float64 `json:"months_until_due"`
			RolloverAmount    float64 `json:"rollover_amount"`
			BudgetedThisMonth float64 `json:"budgeted_this_month"`
			NextDueDate       string  `json:"next_due_date"`
		} `json:"items"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if len(req.Items) == 0 {
		s.fail(w, core.ValidationError("At least one item is required."))
		return
	}

	targets := make(map[string]recurring.Result, len(req.Items))
	for _, item := range req.Items {
		recurringID := core.SanitizeID(item.RecurringID)
		if recurringID == "" {
			s.fail(w, core.ValidationError("Invalid recurring_id."))
			return
		}

		result, err := s.recurring.Calculate(recurring.CalculateParams{
			RecurringID:       recurringID,
			CategoryID:        core.SanitizeID(item.CategoryID),
			Amount:            item.Amount,
			FrequencyMonths:   item.FrequencyMonths,
			MonthsUntilDue:    item.MonthsUntilDue,
			RolloverAmount:    item.RolloverAmount,
			BudgetedThisMonth: item.BudgetedThisMonth,
			NextDueDate:       item.NextDueDate,
		})
		if err != nil {
			s.fail(w, err)
			return
		}
		targets[recurringID] = result
	}
	s.ok(w, map[string]any{"targets": targets})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.targets.ListFrozenTargets()
	if err != nil {
		s.fail(w, err)
		return
	}
	if targets == nil {
		targets = []recurring.FrozenTarget{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
}

// DELETE /api/recurring/targets — wipe every freeze so the next
// calculation starts clean. Used when the balance model changes.
func (s *Server) handleClearTargets(w http.ResponseWriter, r *http.Request) {
	if err := s.targets.ClearFrozenTargets(); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}
