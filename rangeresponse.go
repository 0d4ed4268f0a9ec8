package cachefilter

import (
	"fmt"
	"net/http"

	"github.com/capoferro/httpcachefilter/rfc7233"
)

// rangeOutcome is what a cache hit's Range header resolves to: either the
// request doesn't ask for a single satisfiable range at all (Applies ==
// false, fall back to a full 200), or it does, carrying the status and
// Content-Range the filter must emit per spec.md §4.5.3 / §6.
type rangeOutcome struct {
	Applies      bool
	StatusCode   int
	ContentRange string
	Range        rfc7233.AdjustedRange
	HasBody      bool
}

// evaluateRange resolves the ranges parsed from a request's Range header
// against a cached body of bodyLength bytes. More than one range falls
// back to serving the full response, since multipart/byteranges is out of
// scope.
func evaluateRange(ranges []rfc7233.RawRange, bodyLength uint64) rangeOutcome {
	if len(ranges) != 1 {
		return rangeOutcome{Applies: false}
	}

	adjusted, satisfiable := rfc7233.Adjust(ranges[0], bodyLength)
	if !satisfiable {
		return rangeOutcome{
			Applies:      true,
			StatusCode:   http.StatusRequestedRangeNotSatisfiable,
			ContentRange: fmt.Sprintf("bytes */%d", bodyLength),
			HasBody:      false,
		}
	}
	return rangeOutcome{
		Applies:      true,
		StatusCode:   http.StatusPartialContent,
		ContentRange: fmt.Sprintf("bytes %d-%d/%d", adjusted.FirstBytePos, adjusted.LastBytePos, bodyLength),
		Range:        adjusted,
		HasBody:      true,
	}
}
