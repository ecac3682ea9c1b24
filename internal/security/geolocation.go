package security

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

const geoCacheTTL = 7 * 24 * time.Hour

// geolocator resolves an IP's country and city with a database-backed
// cache. Private, loopback, and otherwise non-routable addresses are
// never sent to the lookup service.
type geolocator struct {
	db       *sql.DB
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

func newGeolocator(db *sql.DB, endpoint string, timeout time.Duration, logger *slog.Logger) *geolocator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &geolocator{
		db:       db,
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Lookup returns (country, city), empty on any miss. Lookups are
// best-effort; a failure never blocks event logging.
func (g *geolocator) Lookup(ipAddress string) (string, string) {
	if ipAddress == "" || g.endpoint == "" {
		return "", ""
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return "", ""
	}
	if !isRoutable(ip) {
		return "", ""
	}

	if country, city, ok := g.cached(ipAddress); ok {
		return country, city
	}

	resp, err := g.http.Get(g.endpoint + "/" + url.PathEscape(ip.String()) + "?fields=status,country,city")
	if err != nil {
		g.logger.Warn("geolocation lookup failed", "ip", ipAddress, "error", err)
		return "", ""
	}
	defer resp.Body.Close()

	var result struct {
		Status  string `json:"status"`
		Country string `json:"country"`
		City    string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		g.logger.Warn("failed to decode geolocation response", "ip", ipAddress, "error", err)
		return "", ""
	}
	if result.Status != "success" {
		return "", ""
	}

	g.cache(ipAddress, result.Country, result.City)
	return result.Country, result.City
}

// isRoutable rejects addresses that a public geolocation service could
// never resolve.
func isRoutable(ip net.IP) bool {
	return !(ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast())
}

func (g *geolocator) cached(ipAddress string) (string, string, bool) {
	var (
		country, city sql.NullString
		cachedAt      string
	)
	err := g.db.QueryRow(
		"SELECT country, city, cached_at FROM ip_geolocation_cache WHERE ip_address = ?",
		ipAddress,
	).Scan(&country, &city, &cachedAt)
	if err != nil {
		return "", "", false
	}

	at, err := time.Parse(time.RFC3339Nano, cachedAt)
	if err != nil || time.Since(at) >= geoCacheTTL {
		return "", "", false
	}
	return country.String, city.String, true
}

func (g *geolocator) cache(ipAddress, country, city string) {
	_, err := g.db.Exec(`
        INSERT INTO ip_geolocation_cache (ip_address, country, city, cached_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(ip_address) DO UPDATE SET
            country = excluded.country,
            city = excluded.city,
            cached_at = excluded.cached_at
    `, ipAddress, country, city, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		g.logger.Warn("failed to cache geolocation", "ip", ipAddress, "error", err)
	}
}
