package rfc7234

import "fmt"

// CacheStatus is this filter's debug/observability surface: the value
// sent in the response's Cache-Status header (RFC 9211), grounded on
// the teacher's root cache-status.go. It isn't part of spec.md's core
// state machine; it's populated alongside it so operators can see why
// a given response took the path it did.
type CacheStatus struct {
	hit       bool
	fwdReason string
	detail    string
}

// Forward reasons, matching RFC 9211 §2.1.2's registered values this
// filter can actually produce.
const (
	FwdReasonBypass   = "bypass"
	FwdReasonMethod   = "method"
	FwdReasonURIMiss  = "uri-miss"
	FwdReasonVaryMiss = "vary-miss"
	FwdReasonStale    = "stale"
)

// Hit marks the response as served from cache.
func (cs *CacheStatus) Hit() { cs.hit = true }

// Forward marks the response as forwarded upstream, with reason
// explaining why the cache could not satisfy it directly.
func (cs *CacheStatus) Forward(reason string) {
	cs.hit = false
	cs.fwdReason = reason
}

// Detail attaches a free-form detail string, e.g. "206" or "416" for a
// range-materialized hit.
func (cs *CacheStatus) Detail(detail string) { cs.detail = detail }

// String renders the Cache-Status header value.
func (cs CacheStatus) String() string {
	status := "cachefilter; hit"
	if !cs.hit {
		status = "cachefilter; fwd"
		if cs.fwdReason != "" {
			status += "=" + cs.fwdReason
		}
	}
	if cs.detail != "" {
		status = fmt.Sprintf("%s; detail=%s", status, cs.detail)
	}
	return status
}
