package rfc7234

import (
	"net/http"
	"strconv"
	"time"

	"github.com/capoferro/httpcachefilter/rfc7231"
)

// §  4.2.3.  Calculating Age
// §
// §     The Age field value is the cache's estimate of the number of
// §     seconds since the origin server generated or validated the
// §     response.

// CurrentAge computes the current_age of a stored response, per §4.2.3,
// simplified for a single-hop cache (no upstream Age header to correct
// for, no measurable response_delay): apparent_age, clamped at zero, plus
// the time resident in this cache since it was received.
func CurrentAge(dateHeader string, responseTime, now time.Time) time.Duration {
	date := rfc7231.ParseHTTPDate(dateHeader)
	if date.IsZero() {
		date = responseTime
	}
	apparentAge := responseTime.Sub(date)
	if apparentAge < 0 {
		apparentAge = 0
	}
	residentTime := now.Sub(responseTime)
	if residentTime < 0 {
		residentTime = 0
	}
	return apparentAge + residentTime
}

// SetAgeHeader overwrites (per spec.md §6: "Added response header on
// cache hit") the Age header of header with the delta-seconds
// representation of age.
func SetAgeHeader(header http.Header, age time.Duration) {
	seconds := int64(age / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	header.Set("Age", strconv.FormatInt(seconds, 10))
}
