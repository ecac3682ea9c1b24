package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eclosion/backend/internal/core"
	"github.com/eclosion/backend/internal/crypto"
	"github.com/eclosion/backend/internal/metrics"
	"github.com/eclosion/backend/internal/middleware"
	"github.com/eclosion/backend/internal/notes"
	"github.com/eclosion/backend/internal/recurring"
	"github.com/eclosion/backend/internal/refunds"
	"github.com/eclosion/backend/internal/security"
	"github.com/eclosion/backend/internal/session"
	"github.com/eclosion/backend/internal/upstream"
)

// Server exposes the notes, refunds, and security services via REST/JSON
// for the companion frontend.
type Server struct {
	notes     *notes.Repository
	refunds   *refunds.Service
	security  *security.Service
	recurring *recurring.Calculator
	targets   *recurring.Store
	session   *session.Session
	creds     *session.Repository
	upstream  upstream.Client
	limiter   *middleware.RateLimiter
	metrics   *metrics.Metrics

	// onUnlock is invoked after a successful unlock so the scheduler can
	// kick off an immediate sync. Optional.
	onUnlock func()

	logger *slog.Logger
	srv    *http.Server
}

// Deps wires the server's collaborators.
type Deps struct {
	Notes     *notes.Repository
	Refunds   *refunds.Service
	Security  *security.Service
	Recurring *recurring.Calculator
	Targets   *recurring.Store
	Session   *session.Session
	Creds     *session.Repository
	Upstream  upstream.Client
	Limiter   *middleware.RateLimiter
	Metrics   *metrics.Metrics
	OnUnlock  func()
}

func NewServer(d Deps) *Server {
	return &Server{
		notes:     d.Notes,
		refunds:   d.Refunds,
		security:  d.Security,
		recurring: d.Recurring,
		targets:   d.Targets,
		session:   d.Session,
		creds:     d.Creds,
		upstream:  d.Upstream,
		limiter:   d.Limiter,
		metrics:   d.Metrics,
		onUnlock:  d.OnUnlock,
		logger:    slog.Default().With("component", "api"),
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// CORS Middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Notes-Key")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(s.instrument)

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/api/health", s.handleHealth).Methods("GET")

	s.registerNotesRoutes(r.PathPrefix("/api/notes").Subrouter())
	s.registerRefundsRoutes(r.PathPrefix("/api/refunds").Subrouter())
	s.registerRecurringRoutes(r.PathPrefix("/api/recurring").Subrouter())
	s.registerSecurityRoutes(r.PathPrefix("/api/security").Subrouter())

	return r
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	s.logger.Info("🚀 API listening", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"configured": s.isConfigured(),
		"unlocked":   s.session.Active(),
	})
}

func (s *Server) isConfigured() bool {
	ok, err := s.creds.IsConfigured()
	if err != nil {
		s.logger.Error("credentials check failed", "error", err)
		return false
	}
	return ok
}

// ============================================================
// Response helpers
// ============================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// ok writes a success envelope; extra keys are merged in alongside
// "success": true.
func (s *Server) ok(w http.ResponseWriter, extra map[string]any) {
	payload := map[string]any{"success": true}
	for k, v := range extra {
		payload[k] = v
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// fail maps a domain error onto the error envelope. Unknown errors are
// logged in full and surfaced as a generic 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	de := core.AsError(err)
	if de.Kind == core.KindInternal || de.Kind == core.KindUpstream {
		s.logger.Error("request failed", "error", err)
	}

	body := map[string]any{
		"success": false,
		"error":   de.Message,
		"code":    string(de.Kind),
	}
	if de.RetryAfter > 0 {
		body["retry_after"] = de.RetryAfter
		w.Header().Set("Retry-After", strconv.Itoa(de.RetryAfter))
	}
	s.writeJSON(w, de.HTTPStatus(), body)
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return core.ValidationError("Invalid request payload.")
	}
	return nil
}

// cipher resolves the request's encryption key: the X-Notes-Key header
// first (desktop mode, where cookies are unreliable), then the unlocked
// session.
func (s *Server) cipher(r *http.Request) (*crypto.Cipher, error) {
	if key := r.Header.Get("X-Notes-Key"); key != "" {
		return crypto.NewCipher(key), nil
	}
	if c := s.session.Cipher(); c != nil {
		return c, nil
	}
	return nil, core.ValidationError("Session expired. Please unlock again.")
}

// ============================================================
// Metrics middleware
// ============================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.RequestTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
