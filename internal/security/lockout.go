package security

import (
	"time"
)

// Brute-force protection for remote unlock: an IP accumulating too
// many failures is locked out for a fixed window. State lives in the
// database so restarts don't reset counters.
const (
	lockoutThreshold = 10
	lockoutDuration  = 15 * time.Minute
)

// IsIPLockedOut reports whether an IP is inside an active lockout.
// Expired lockouts are cleared on the way through.
func (s *Service) IsIPLockedOut(ipAddress string) bool {
	if ipAddress == "" {
		return false
	}

	var lockedUntil string
	err := s.db.QueryRow(
		"SELECT COALESCE(locked_until, '') FROM ip_lockouts WHERE ip_address = ?",
		ipAddress,
	).Scan(&lockedUntil)
	if err != nil || lockedUntil == "" {
		return false
	}

	until, err := time.Parse(time.RFC3339Nano, lockedUntil)
	if err != nil {
		return false
	}
	if s.now().UTC().Before(until) {
		return true
	}

	s.ClearIPLockout(ipAddress)
	return false
}

// RecordFailedRemoteUnlock counts one failure for an IP and reports
// whether that pushed it over the lockout threshold.
func (s *Service) RecordFailedRemoteUnlock(ipAddress string) bool {
	if ipAddress == "" {
		return false
	}

	now := s.now().UTC()

	var attempts int
	err := s.db.QueryRow(
		"SELECT failed_attempts FROM ip_lockouts WHERE ip_address = ?", ipAddress,
	).Scan(&attempts)
	if err != nil {
		attempts = 0
	}
	attempts++

	var lockedUntil any
	if attempts >= lockoutThreshold {
		until := now.Add(lockoutDuration).Format(time.RFC3339Nano)
		lockedUntil = until
		s.logger.Warn("IP locked out after repeated failed unlock attempts",
			"ip", ipAddress, "attempts", attempts, "locked_until", until)
	}

	_, err = s.db.Exec(`
        INSERT INTO ip_lockouts (ip_address, failed_attempts, locked_until, last_attempt)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(ip_address) DO UPDATE SET
            failed_attempts = excluded.failed_attempts,
            locked_until = excluded.locked_until,
            last_attempt = excluded.last_attempt
    `, ipAddress, attempts, lockedUntil, now.Format(time.RFC3339Nano))
	if err != nil {
		s.logger.Warn("failed to record failed unlock attempt", "ip", ipAddress, "error", err)
		return false
	}
	s.refreshLockoutGauge()
	return attempts >= lockoutThreshold
}

// ClearIPLockout resets an IP's failure counter, called after a
// successful unlock.
func (s *Service) ClearIPLockout(ipAddress string) {
	if ipAddress == "" {
		return
	}
	if _, err := s.db.Exec("DELETE FROM ip_lockouts WHERE ip_address = ?", ipAddress); err != nil {
		s.logger.Warn("failed to clear IP lockout", "ip", ipAddress, "error", err)
	}
	s.refreshLockoutGauge()
}

// SetLockoutGauge registers a sink for the active-lockout count and
// primes it with the current state.
func (s *Service) SetLockoutGauge(set func(active int)) {
	s.lockoutGauge = set
	s.refreshLockoutGauge()
}

func (s *Service) refreshLockoutGauge() {
	if s.lockoutGauge == nil {
		return
	}
	var active int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM ip_lockouts WHERE locked_until IS NOT NULL AND locked_until > ?",
		s.now().UTC().Format(time.RFC3339Nano),
	).Scan(&active)
	if err != nil {
		s.logger.Warn("failed to count active lockouts", "error", err)
		return
	}
	s.lockoutGauge(active)
}

// GetLockoutRemainingSeconds returns how long an IP stays locked out,
// 0 when it is not.
func (s *Service) GetLockoutRemainingSeconds(ipAddress string) int {
	if ipAddress == "" {
		return 0
	}

	var lockedUntil string
	err := s.db.QueryRow(
		"SELECT COALESCE(locked_until, '') FROM ip_lockouts WHERE ip_address = ?",
		ipAddress,
	).Scan(&lockedUntil)
	if err != nil || lockedUntil == "" {
		return 0
	}

	until, err := time.Parse(time.RFC3339Nano, lockedUntil)
	if err != nil {
		return 0
	}
	remaining := int(until.Sub(s.now().UTC()).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
