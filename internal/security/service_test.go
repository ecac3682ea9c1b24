package security

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclosion/backend/internal/database"
)

// newTestService disables geolocation so tests never hit the network.
func newTestService(t *testing.T) *Service {
	t.Helper()
	db := database.MustOpenForTest()
	t.Cleanup(func() { db.Close() })
	return NewService(db, "", 0, 90)
}

func boolPtr(v bool) *bool { return &v }

func TestLogAndGetEvents(t *testing.T) {
	svc := newTestService(t)

	svc.LogEvent(EventLoginAttempt, true, "203.0.113.5", "desktop login", "TestAgent/1.0")
	svc.LogEvent(EventLoginAttempt, false, "203.0.113.9", "bad passphrase", "")
	svc.LogEvent(EventLogout, true, "", "", "")

	events, total, err := svc.GetEvents(EventFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, events, 3)

	failed, total, err := svc.GetEvents(EventFilter{
		Limit: 10, EventTypes: []string{EventLoginAttempt}, Success: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad passphrase", failed[0].Details)
	assert.Equal(t, "203.0.113.9", failed[0].IPAddress)
}

func TestLogEventTruncatesFields(t *testing.T) {
	svc := newTestService(t)

	svc.LogEvent(EventLoginAttempt, false, "", strings.Repeat("d", 600), strings.Repeat("u", 300))

	events, _, err := svc.GetEvents(EventFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Details, 500)
	assert.Len(t, events[0].UserAgent, 256)
}

func TestLogEventTruncatesOnRuneBoundary(t *testing.T) {
	svc := newTestService(t)

	svc.LogEvent(EventLoginAttempt, false, "", strings.Repeat("é", 600), strings.Repeat("λ", 300))

	events, _, err := svc.GetEvents(EventFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, utf8.ValidString(events[0].Details))
	assert.Equal(t, maxDetailsLength, utf8.RuneCountInString(events[0].Details))
	assert.True(t, utf8.ValidString(events[0].UserAgent))
	assert.Equal(t, maxUserAgentLength, utf8.RuneCountInString(events[0].UserAgent))
}

func TestSummary(t *testing.T) {
	svc := newTestService(t)

	svc.LogEvent(EventLoginAttempt, true, "203.0.113.5", "", "")
	svc.LogEvent(EventLoginAttempt, false, "203.0.113.9", "", "")
	svc.LogEvent(EventUnlockAttempt, false, "203.0.113.9", "", "")
	svc.LogEvent(EventLogout, true, "203.0.113.5", "", "")
	svc.LogEvent(EventSessionTimeout, true, "", "", "")

	sum, err := svc.GetSummary()
	require.NoError(t, err)
	assert.Equal(t, 5, sum.TotalEvents)
	assert.Equal(t, 1, sum.SuccessfulLogins)
	assert.Equal(t, 1, sum.FailedLogins)
	assert.Equal(t, 1, sum.FailedUnlockAttempts)
	assert.Equal(t, 1, sum.Logouts)
	assert.Equal(t, 1, sum.SessionTimeouts)
	assert.Equal(t, 2, sum.UniqueIPs)
	assert.NotEmpty(t, sum.LastSuccessfulLogin)
	assert.NotEmpty(t, sum.LastFailedLogin)
}

func TestFailedSinceLastLogin(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { return clock }

	svc.LogEvent(EventUnlockAttempt, false, "203.0.113.9", "before login", "")

	clock = base.Add(time.Minute)
	svc.LogEvent(EventLoginAttempt, true, "203.0.113.5", "", "")

	clock = base.Add(2 * time.Minute)
	svc.LogEvent(EventUnlockAttempt, false, "203.0.113.9", "after login", "")

	alerts, err := svc.GetFailedSinceLastLogin()
	require.NoError(t, err)
	require.Len(t, alerts, 1, "only failures after the last successful login alert")
	assert.Equal(t, "after login", alerts[0].Details)

	// Dismissing moves the cutoff forward.
	clock = base.Add(3 * time.Minute)
	svc.DismissAlert()
	alerts, err = svc.GetFailedSinceLastLogin()
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestCleanupOldEvents(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	svc.now = func() time.Time { return base.AddDate(0, 0, -120) }
	svc.LogEvent(EventLoginAttempt, true, "", "old", "")

	svc.now = func() time.Time { return base }
	svc.LogEvent(EventLoginAttempt, true, "", "recent", "")

	svc.CleanupOldEvents()

	events, total, err := svc.GetEvents(EventFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "recent", events[0].Details)
}

func TestClearEvents(t *testing.T) {
	svc := newTestService(t)
	svc.LogEvent(EventLoginAttempt, true, "", "", "")

	require.NoError(t, svc.ClearEvents())

	_, total, err := svc.GetEvents(EventFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestExportCSVSanitizesValues(t *testing.T) {
	svc := newTestService(t)
	svc.LogEvent(EventLoginAttempt, false, "", "=HYPERLINK(\"http://evil\")", "")

	out, err := svc.ExportCSV()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Event Type")
	assert.Contains(t, lines[1], "'=HYPERLINK", "formula values get a quote prefix")
}

func TestSanitizeCSVValue(t *testing.T) {
	assert.Equal(t, "", sanitizeCSVValue(""))
	assert.Equal(t, "'+1234", sanitizeCSVValue("+1234"))
	assert.Equal(t, "'@cmd", sanitizeCSVValue("@cmd"))
	assert.Equal(t, "a b c", sanitizeCSVValue("a\rb\nc"))
	assert.Equal(t, "&lt;script&gt;", sanitizeCSVValue("<script>"))
}

func TestLockoutThreshold(t *testing.T) {
	svc := newTestService(t)
	ip := "203.0.113.7"

	for i := 0; i < lockoutThreshold-1; i++ {
		assert.False(t, svc.RecordFailedRemoteUnlock(ip))
	}
	assert.False(t, svc.IsIPLockedOut(ip), "below threshold, not locked")

	assert.True(t, svc.RecordFailedRemoteUnlock(ip), "tenth failure locks")
	assert.True(t, svc.IsIPLockedOut(ip))
	assert.Greater(t, svc.GetLockoutRemainingSeconds(ip), 0)
}

func TestLockoutExpires(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { return clock }

	ip := "203.0.113.7"
	for i := 0; i < lockoutThreshold; i++ {
		svc.RecordFailedRemoteUnlock(ip)
	}
	require.True(t, svc.IsIPLockedOut(ip))

	clock = base.Add(lockoutDuration + time.Second)
	assert.False(t, svc.IsIPLockedOut(ip), "expired lockout clears")
	assert.Equal(t, 0, svc.GetLockoutRemainingSeconds(ip))
}

func TestLockoutClearsOnSuccess(t *testing.T) {
	svc := newTestService(t)
	ip := "203.0.113.7"

	for i := 0; i < lockoutThreshold; i++ {
		svc.RecordFailedRemoteUnlock(ip)
	}
	require.True(t, svc.IsIPLockedOut(ip))

	svc.ClearIPLockout(ip)
	assert.False(t, svc.IsIPLockedOut(ip))
	assert.False(t, svc.RecordFailedRemoteUnlock(ip), "counter restarts from zero")
}

func TestLockoutGaugeTracksActiveLockouts(t *testing.T) {
	svc := newTestService(t)
	active := -1
	svc.SetLockoutGauge(func(n int) { active = n })
	assert.Equal(t, 0, active, "primed with current state")

	ip := "203.0.113.7"
	for i := 0; i < lockoutThreshold-1; i++ {
		svc.RecordFailedRemoteUnlock(ip)
	}
	assert.Equal(t, 0, active, "failures below the threshold don't lock")

	svc.RecordFailedRemoteUnlock(ip)
	assert.Equal(t, 1, active)

	svc.ClearIPLockout(ip)
	assert.Equal(t, 0, active)
}

func TestLockoutEmptyIP(t *testing.T) {
	svc := newTestService(t)
	assert.False(t, svc.IsIPLockedOut(""))
	assert.False(t, svc.RecordFailedRemoteUnlock(""))
	assert.Equal(t, 0, svc.GetLockoutRemainingSeconds(""))
}
