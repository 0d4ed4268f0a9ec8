// Package rfc7234 implements the Cache-Control directive grammar and the
// freshness/age/cacheability rules of RFC 7234 ("HTTP/1.1: Caching").
package rfc7234

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/capoferro/httpcachefilter/rfc7230"
)

// §  5.2.  Cache-Control
// §
// §     The "Cache-Control" header field is used to specify directives for
// §     caches along the request/response chain.
// §
// §       Cache-Control   = 1#cache-directive
// §       cache-directive = token [ "=" ( token / quoted-string ) ]

// Directives is the result of parsing one or more Cache-Control header
// values. Only the directives this filter cares about are recognized by
// name; everything else is consumed (so the grammar stays correct) and
// discarded.
type Directives struct {
	noCache    bool
	noStore    bool
	private    bool
	maxAge     time.Duration
	hasMaxAge  bool
	sMaxAge    time.Duration
	hasSMaxAge bool
	malformed  bool
}

// ParseCacheControl parses all Cache-Control header values (there may be
// more than one header line) into a single Directives set, processed
// left to right in header-line order and then directive order within
// each line.
func ParseCacheControl(values []string) Directives {
	var d Directives
	for _, v := range values {
		d.consume(v)
	}
	return d
}

func (d *Directives) consume(value string) {
	s := value
	for s != "" {
		s = rfc7230.TrimOWS(s)
		if s == "" {
			return
		}
		token, rest, ok := rfc7230.ConsumeToken(s)
		if !ok {
			// Directive begins with a non-tchar byte: malformed.
			d.malformed = true
			return
		}
		lower := strings.ToLower(token)

		var arg string
		hasArg := false
		if strings.HasPrefix(rest, "=") {
			hasArg = true
			arg, rest = consumeDirectiveArgument(rest[1:])
		}

		switch lower {
		case "no-cache":
			d.noCache = true
		case "no-store":
			d.noStore = true
		case "private":
			d.private = true
		case "s-maxage":
			if hasArg {
				dur, ok := parseDeltaSeconds(arg, &rest)
				if !ok {
					d.malformed = true
					return
				}
				d.sMaxAge = dur
				d.hasSMaxAge = true
			}
		case "max-age":
			if hasArg {
				dur, ok := parseDeltaSeconds(arg, &rest)
				if !ok {
					d.malformed = true
					return
				}
				d.maxAge = dur
				d.hasMaxAge = true
			}
		}

		rest = rfc7230.TrimOWS(rest)
		if rest == "" {
			return
		}
		if rest[0] != ',' {
			d.malformed = true
			return
		}
		s = rest[1:]
	}
}

// consumeDirectiveArgument removes a token or quoted-string directive
// argument from the front of s (the part after "="), returning the
// argument value and what remains.
//
//	quoted-string   = DQUOTE *( qdtext / quoted-pair ) DQUOTE
func consumeDirectiveArgument(s string) (arg, rest string) {
	if s == "" {
		return "", s
	}
	if s[0] == '"' {
		if end := strings.IndexByte(s[1:], '"'); end >= 0 {
			return s[1 : 1+end], s[1+end+1:]
		}
		return s[1:], ""
	}
	token, rest, _ := rfc7230.ConsumeToken(s)
	return token, rest
}

// parseDeltaSeconds parses a numeric directive argument (arg, the bytes
// already consumed as the token/quoted-string following "=") as the
// digit-run rules of spec.md §4.1. *rest, the remainder of the header
// after the argument, is not read here; bytes trailing the argument are
// rejected by the caller's comma-or-end check.
func parseDeltaSeconds(arg string, rest *string) (time.Duration, bool) {
	digits, nonDigitTail := splitLeadingDigits(arg)
	if digits == "" {
		// Non-numeric argument: treat the whole header as malformed,
		// matching "unexpected bytes after a recognized numeric directive".
		return 0, false // empty arg after "=" (e.g. "max-age=") is malformed too
	}
	if nonDigitTail != "" {
		// The argument token contains non-digit bytes glued to the
		// number (e.g. "max-age=18446744073709551616z" once the whole
		// token "18446744073709551616z" is captured as one tchar run).
		// Such input is invalid per spec.md §4.1.
		return 0, false
	}

	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		// Overflowed uint64: saturate, since the full digit run parsed
		// cleanly as a number (just too large to fit).
		if isOverflow(err) {
			return time.Duration(math.MaxInt64), true
		}
		return 0, false
	}
	if n > math.MaxInt64 {
		// A signed reinterpretation would go negative: saturate.
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(n) * time.Second, true
}

func isOverflow(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// splitLeadingDigits splits s into a leading run of ASCII digits and
// whatever follows.
func splitLeadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// EffectiveMaxAge returns the freshness lifetime implied by the
// Cache-Control directives alone, per spec.md §4.1:
//
//   - "no-cache" (a whole directive) or malformed input forces zero
//     ("validation required"), regardless of any max-age/s-maxage seen.
//   - s-maxage wins over max-age when both are present ("sticky").
//   - Otherwise max-age, or zero if neither directive appeared.
func (d Directives) EffectiveMaxAge() time.Duration {
	if d.malformed || d.noCache {
		return 0
	}
	if d.hasSMaxAge {
		return d.sMaxAge
	}
	if d.hasMaxAge {
		return d.maxAge
	}
	return 0
}

// NoStore reports the no-store directive (spec.md §4.5.2).
func (d Directives) NoStore() bool { return d.noStore && !d.malformed }

// Private reports the private directive (spec.md §4.5.2).
func (d Directives) Private() bool { return d.private && !d.malformed }

// NoCache reports whether the no-cache directive was present as a whole
// directive (distinct from a token merely beginning with "no-cache").
func (d Directives) NoCache() bool { return d.noCache }

// HasExplicitLifetime reports whether Cache-Control alone determines the
// freshness lifetime (s-maxage, max-age, no-cache, or malformed input),
// as opposed to leaving it to a fallback such as the Expires header.
func (d Directives) HasExplicitLifetime() bool {
	return d.malformed || d.noCache || d.hasSMaxAge || d.hasMaxAge
}
