package security

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Event types recorded in the audit log.
const (
	EventLoginAttempt      = "LOGIN_ATTEMPT"
	EventLogout            = "LOGOUT"
	EventUnlockAttempt     = "UNLOCK_ATTEMPT"
	EventUnlockAndValidate = "UNLOCK_AND_VALIDATE"
	EventRemoteUnlock      = "REMOTE_UNLOCK"
	EventSessionTimeout    = "SESSION_TIMEOUT"
	EventCredentialsChange = "CREDENTIALS_UPDATED"
)

const (
	maxDetailsLength   = 500
	maxUserAgentLength = 256
	alertLimit         = 10
)

// Event is one audit log entry. Timestamps are ISO-8601 UTC strings so
// they sort lexicographically.
type Event struct {
	ID        int64  `json:"id"`
	EventType string `json:"event_type"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	IPAddress string `json:"ip_address,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Details   string `json:"details,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Summary is the aggregate view of the audit log.
type Summary struct {
	TotalEvents          int    `json:"total_events"`
	SuccessfulLogins     int    `json:"successful_logins"`
	FailedLogins         int    `json:"failed_logins"`
	FailedUnlockAttempts int    `json:"failed_unlock_attempts"`
	Logouts              int    `json:"logouts"`
	SessionTimeouts      int    `json:"session_timeouts"`
	UniqueIPs            int    `json:"unique_ips"`
	LastSuccessfulLogin  string `json:"last_successful_login,omitempty"`
	LastFailedLogin      string `json:"last_failed_login,omitempty"`
}

// EventFilter narrows GetEvents. Success nil means both outcomes.
type EventFilter struct {
	Limit      int
	Offset     int
	EventTypes []string
	Success    *bool
}

// Service owns the audit log: event recording with geolocation, alert
// queries, lockouts, and retention. Log writes never fail a caller's
// request; failures are logged and swallowed.
type Service struct {
	db            *sql.DB
	geo           *geolocator
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time

	// lockoutGauge, when set, receives the number of active lockouts
	// after every change to the set. Feeds the Prometheus gauge.
	lockoutGauge func(active int)
}

// NewService builds the audit service. geoEndpoint is the ip-api.com
// base URL; empty disables lookups.
func NewService(db *sql.DB, geoEndpoint string, geoTimeout time.Duration, retentionDays int) *Service {
	logger := slog.Default().With("component", "security")
	return &Service{
		db:            db,
		geo:           newGeolocator(db, geoEndpoint, geoTimeout, logger),
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// LogEvent records one audit entry. Details and user agent are
// truncated; geolocation is resolved (and cached) when the IP is
// public. Successful logins advance the last-login preference used by
// the alert cutoff.
func (s *Service) LogEvent(eventType string, success bool, ipAddress, details, userAgent string) {
	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	country, city := s.geo.Lookup(ipAddress)

	// Truncate by runes, not bytes, so a multi-byte character is never
	// split into invalid UTF-8.
	if runes := []rune(details); len(runes) > maxDetailsLength {
		details = string(runes[:maxDetailsLength])
	}
	if runes := []rune(userAgent); len(runes) > maxUserAgentLength {
		userAgent = string(runes[:maxUserAgentLength])
	}

	_, err := s.db.Exec(`
        INSERT INTO security_events (event_type, success, timestamp,
            ip_address, country, city, details, user_agent)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, eventType, success, timestamp, nullable(ipAddress), nullable(country),
		nullable(city), nullable(details), nullable(userAgent))
	if err != nil {
		s.logger.Error("failed to log security event", "event_type", eventType, "error", err)
		return
	}

	if success && (eventType == EventLoginAttempt || eventType == EventRemoteUnlock) {
		s.setPreference("last_login_timestamp", timestamp)
	}
}

// GetEvents returns a filtered page of events plus the total count
// matching the filter.
func (s *Service) GetEvents(filter EventFilter) ([]Event, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	where := "WHERE 1=1"
	var params []any
	if len(filter.EventTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.EventTypes)), ",")
		where += " AND event_type IN (" + placeholders + ")"
		for _, t := range filter.EventTypes {
			params = append(params, t)
		}
	}
	if filter.Success != nil {
		where += " AND success = ?"
		params = append(params, *filter.Success)
	}

	var total int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM security_events "+where, params...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count security events: %w", err)
	}

	params = append(params, filter.Limit, filter.Offset)
	rows, err := s.db.Query(`
        SELECT id, event_type, success, timestamp, ip_address, country, city,
            details, user_agent
        FROM security_events `+where+`
        ORDER BY timestamp DESC LIMIT ? OFFSET ?
    `, params...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// GetSummary aggregates the whole audit log.
func (s *Service) GetSummary() (Summary, error) {
	var sum Summary
	counts := []struct {
		dest  *int
		query string
	}{
		{&sum.TotalEvents, "SELECT COUNT(*) FROM security_events"},
		{&sum.SuccessfulLogins, "SELECT COUNT(*) FROM security_events WHERE event_type = 'LOGIN_ATTEMPT' AND success = 1"},
		{&sum.FailedLogins, "SELECT COUNT(*) FROM security_events WHERE event_type = 'LOGIN_ATTEMPT' AND success = 0"},
		{&sum.FailedUnlockAttempts, "SELECT COUNT(*) FROM security_events WHERE event_type IN ('UNLOCK_ATTEMPT', 'UNLOCK_AND_VALIDATE') AND success = 0"},
		{&sum.Logouts, "SELECT COUNT(*) FROM security_events WHERE event_type = 'LOGOUT'"},
		{&sum.SessionTimeouts, "SELECT COUNT(*) FROM security_events WHERE event_type = 'SESSION_TIMEOUT'"},
		{&sum.UniqueIPs, "SELECT COUNT(DISTINCT ip_address) FROM security_events WHERE ip_address IS NOT NULL"},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return sum, fmt.Errorf("failed to build security summary: %w", err)
		}
	}

	lasts := []struct {
		dest    *string
		success int
	}{
		{&sum.LastSuccessfulLogin, 1},
		{&sum.LastFailedLogin, 0},
	}
	for _, l := range lasts {
		err := s.db.QueryRow(`
            SELECT timestamp FROM security_events
            WHERE event_type = 'LOGIN_ATTEMPT' AND success = ?
            ORDER BY timestamp DESC LIMIT 1
        `, l.success).Scan(l.dest)
		if err != nil && err != sql.ErrNoRows {
			return sum, fmt.Errorf("failed to build security summary: %w", err)
		}
	}
	return sum, nil
}

// GetFailedSinceLastLogin returns the recent failed login and unlock
// attempts a user should be alerted about. The cutoff is the later of
// the last successful login and the last alert dismissal.
func (s *Service) GetFailedSinceLastLogin() ([]Event, error) {
	lastLogin := s.getPreference("last_login_timestamp")
	dismissedAt := s.getPreference("alert_dismissed_at")

	cutoff := lastLogin
	if dismissedAt > cutoff {
		cutoff = dismissedAt
	}

	query := `
        SELECT id, event_type, success, timestamp, ip_address, country, city,
            details, user_agent
        FROM security_events
        WHERE event_type IN ('LOGIN_ATTEMPT', 'UNLOCK_ATTEMPT', 'UNLOCK_AND_VALIDATE', 'REMOTE_UNLOCK')
        AND success = 0
    `
	var params []any
	if cutoff != "" {
		query += " AND timestamp > ?"
		params = append(params, cutoff)
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", alertLimit)

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed attempts: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// DismissAlert marks the current failed attempts as seen.
func (s *Service) DismissAlert() {
	s.setPreference("alert_dismissed_at", s.now().UTC().Format(time.RFC3339Nano))
}

// ClearEvents deletes the entire audit log.
func (s *Service) ClearEvents() error {
	if _, err := s.db.Exec("DELETE FROM security_events"); err != nil {
		return fmt.Errorf("failed to clear security events: %w", err)
	}
	s.logger.Info("security events cleared")
	return nil
}

// CleanupOldEvents enforces the retention window. Safe to call at
// startup and from the scheduler.
func (s *Service) CleanupOldEvents() {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays).Format(time.RFC3339Nano)
	res, err := s.db.Exec("DELETE FROM security_events WHERE timestamp < ?", cutoff)
	if err != nil {
		s.logger.Error("failed to clean up old security events", "error", err)
		return
	}
	if deleted, _ := res.RowsAffected(); deleted > 0 {
		s.logger.Info("cleaned up old security events", "deleted", deleted)
	}
}

// ExportCSV renders the audit log as CSV with values sanitized against
// formula injection.
func (s *Service) ExportCSV() (string, error) {
	events, _, err := s.GetEvents(EventFilter{Limit: 10000})
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"ID", "Event Type", "Success", "Timestamp",
		"IP Address", "Country", "City", "Details"})
	for _, e := range events {
		success := "No"
		if e.Success {
			success = "Yes"
		}
		_ = w.Write([]string{
			strconv.FormatInt(e.ID, 10),
			sanitizeCSVValue(e.EventType),
			success,
			sanitizeCSVValue(e.Timestamp),
			sanitizeCSVValue(e.IPAddress),
			sanitizeCSVValue(e.Country),
			sanitizeCSVValue(e.City),
			sanitizeCSVValue(e.Details),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.String(), nil
}

// sanitizeCSVValue hardens a cell: HTML-escaped in case the CSV is
// rendered, control characters flattened, and formula-leading values
// prefixed so spreadsheets treat them as text.
func sanitizeCSVValue(value string) string {
	if value == "" {
		return ""
	}
	safe := html.EscapeString(value)
	safe = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(safe)
	if safe != "" && strings.ContainsRune("=+-@|%", rune(safe[0])) {
		safe = "'" + safe
	}
	return safe
}

func (s *Service) getPreference(key string) string {
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM security_preferences WHERE key = ?", key,
	).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

func (s *Service) setPreference(key, value string) {
	_, err := s.db.Exec(`
        INSERT INTO security_preferences (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `, key, value)
	if err != nil {
		s.logger.Warn("failed to set security preference", "key", key, "error", err)
	}
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			e                              Event
			ip, country, city, details, ua sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.Success, &e.Timestamp,
			&ip, &country, &city, &details, &ua); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		e.IPAddress = ip.String
		e.Country = country.String
		e.City = city.String
		e.Details = details.String
		e.UserAgent = ua.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
