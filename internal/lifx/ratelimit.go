package lifx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rate-limit response headers. http.Header.Get canonicalizes keys, so lookups
// are case-insensitive.
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimit is the request budget reported by the API on its last response.
type RateLimit struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // epoch seconds
}

// ResetTime returns Reset as a time.Time.
func (r RateLimit) ResetTime() time.Time {
	return time.Unix(r.Reset, 0)
}

// parseRateLimit extracts the snapshot from response headers. It reports false
// when none of the rate-limit headers is present. Missing, non-numeric or
// negative values are recorded as 0.
func parseRateLimit(header http.Header) (RateLimit, bool) {
	limit := header.Get(headerRateLimitLimit)
	remaining := header.Get(headerRateLimitRemaining)
	reset := header.Get(headerRateLimitReset)

	if limit == "" && remaining == "" && reset == "" {
		return RateLimit{}, false
	}

	return RateLimit{
		Limit:     int(parseCount(limit)),
		Remaining: int(parseCount(remaining)),
		Reset:     parseCount(reset),
	}, true
}

func parseCount(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
