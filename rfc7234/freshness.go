package rfc7234

import (
	"net/http"
	"time"

	"github.com/capoferro/httpcachefilter/rfc7231"
)

// FreshnessLifetime computes the freshness lifetime of a response, per
// spec.md §4.1, extended with the Expires fallback the Cache-Control-only
// algorithm in spec.md doesn't mention but the teacher's rfc9111 package
// does (see SPEC_FULL.md §C.1):
//
//  1. s-maxage (shared cache), if present.
//  2. max-age, if present.
//  3. Expires minus Date, if both are present and parse.
//  4. Zero: no explicit freshness, validation required on every use.
func FreshnessLifetime(header http.Header) time.Duration {
	directives := ParseCacheControl(header.Values("Cache-Control"))
	if directives.HasExplicitLifetime() {
		return directives.EffectiveMaxAge()
	}

	expires := rfc7231.ParseHTTPDate(header.Get("Expires"))
	date := rfc7231.ParseHTTPDate(header.Get("Date"))
	if expires.IsZero() || date.IsZero() {
		return 0
	}
	if lifetime := expires.Sub(date); lifetime > 0 {
		return lifetime
	}
	return 0
}

// IsFresh reports whether a cached response, received at responseTime
// with the given lifetime, is still fresh at the instant now.
func IsFresh(lifetime time.Duration, responseTime, now time.Time) bool {
	return now.Before(responseTime.Add(lifetime))
}
