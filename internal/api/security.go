package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/eclosion/backend/internal/core"
	"github.com/eclosion/backend/internal/crypto"
	"github.com/eclosion/backend/internal/middleware"
	"github.com/eclosion/backend/internal/security"
	"github.com/eclosion/backend/internal/session"
)

func (s *Server) registerSecurityRoutes(r *mux.Router) {
	r.HandleFunc("/events", s.handleSecurityEvents).Methods("GET")
	r.HandleFunc("/events", s.handleClearSecurityEvents).Methods("DELETE")
	r.HandleFunc("/summary", s.handleSecuritySummary).Methods("GET")
	r.HandleFunc("/alerts", s.handleSecurityAlerts).Methods("GET")
	r.HandleFunc("/alerts/dismiss", s.handleDismissAlerts).Methods("POST")
	r.HandleFunc("/export", s.handleSecurityExport).Methods("GET")
	r.HandleFunc("/status", s.handleSessionStatus).Methods("GET")
	r.HandleFunc("/setup", s.handleSetup).Methods("POST")
	r.HandleFunc("/lock", s.handleLock).Methods("POST")

	// Unlock carries the brute-force rate limit; everything else is
	// local single-user traffic.
	unlock := http.HandlerFunc(s.handleUnlock)
	if s.limiter != nil {
		r.Handle("/unlock", s.limiter.Middleware(unlock)).Methods("POST")
	} else {
		r.Handle("/unlock", unlock).Methods("POST")
	}
}

// GET /api/security/events?limit=&offset=&event_types=&success=
func (s *Server) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := security.EventFilter{Limit: 50}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := q.Get("event_types"); v != "" {
		filter.EventTypes = strings.Split(v, ",")
	}
	if v := q.Get("success"); v != "" {
		success := v == "true"
		filter.Success = &success
	}

	events, total, err := s.security.GetEvents(filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) handleClearSecurityEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.security.ClearEvents(); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) handleSecuritySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.security.GetSummary()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// GET /api/security/alerts — failed attempts since the last successful
// login (or the last dismissal, whichever is later).
func (s *Server) handleSecurityAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.security.GetFailedSinceLastLogin()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleDismissAlerts(w http.ResponseWriter, r *http.Request) {
	s.security.DismissAlert()
	s.ok(w, nil)
}

func (s *Server) handleSecurityExport(w http.ResponseWriter, r *http.Request) {
	csvData, err := s.security.ExportCSV()
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="security_events.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(csvData))
}

// ============================================================
// Session lifecycle
// ============================================================

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"configured": s.isConfigured(),
		"unlocked":   s.session.Active(),
	}
	if s.session.Active() {
		payload["unlocked_at"] = s.session.UnlockedAt()
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// POST /api/security/setup — store encrypted credentials. Requires the
// passphrase that will unlock them later.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		MFASecret  string `json:"mfa_secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.fail(w, core.ValidationError("Email and password are required."))
		return
	}
	if req.Passphrase == "" {
		s.fail(w, core.ValidationError("Passphrase is required."))
		return
	}

	cipher := crypto.NewCipher(req.Passphrase)
	err := s.creds.Save(cipher, session.Credentials{
		Email:     req.Email,
		Password:  req.Password,
		MFASecret: req.MFASecret,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	s.logSecurityEvent(security.EventCredentialsChange, true, r, "")
	s.ok(w, nil)
}

// POST /api/security/lock — drop the in-memory session.
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	wasActive := s.session.Active()
	s.session.Clear()
	if wasActive {
		s.logSecurityEvent(security.EventLogout, true, r, "")
	}
	s.ok(w, nil)
}

// POST /api/security/unlock — verify the passphrase against the stored
// credentials and open the session. Failures count toward the IP
// lockout; lockout state answers 429 with the remaining wait.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	ip := middleware.ClientIP(r)

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Passphrase == "" {
		s.fail(w, core.ValidationError("Passphrase is required."))
		return
	}

	if s.security.IsIPLockedOut(ip) {
		remaining := s.security.GetLockoutRemainingSeconds(ip)
		s.logSecurityEvent(security.EventUnlockAttempt, false, r, "IP locked out")
		s.fail(w, core.RateLimitedError("Too many failed attempts. Try again later.", remaining))
		return
	}

	configured, err := s.creds.IsConfigured()
	if err != nil {
		s.fail(w, err)
		return
	}
	if !configured {
		s.fail(w, core.NotConfiguredError("Credentials not configured. Run setup first."))
		return
	}

	creds, err := s.creds.Load(crypto.NewCipher(req.Passphrase))
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidPassphrase) {
			locked := s.security.RecordFailedRemoteUnlock(ip)
			s.logSecurityEvent(security.EventUnlockAttempt, false, r, "Invalid passphrase")
			if locked {
				remaining := s.security.GetLockoutRemainingSeconds(ip)
				s.fail(w, core.RateLimitedError("Too many failed attempts. Try again later.", remaining))
				return
			}
			s.fail(w, core.AuthError("Invalid passphrase."))
			return
		}
		s.fail(w, err)
		return
	}

	s.security.ClearIPLockout(ip)
	s.session.Set(creds, req.Passphrase)
	s.logSecurityEvent(security.EventRemoteUnlock, true, r, "")

	if s.onUnlock != nil {
		s.onUnlock()
	}
	s.ok(w, map[string]any{"unlocked": true})
}

func (s *Server) logSecurityEvent(eventType string, success bool, r *http.Request, details string) {
	s.security.LogEvent(eventType, success, middleware.ClientIP(r), details, r.UserAgent())
	if s.metrics != nil {
		s.metrics.RecordSecurityEvent(eventType, success)
	}
}
