// Package cache defines the storage contract used by the filter: a Key
// identifying a cached variant, staged lookup/insert contexts for
// streaming headers and bodies into and out of storage, and a small set
// of administrative operations. It also ships two concrete backends: an
// in-memory reference implementation and a SQLite-backed one.
//
// The contract mirrors Envoy's http_cache.h HttpCache/LookupContext/
// InsertContext trio, adapted to Go callback idioms.
package cache

import (
	"net/http"
	"time"

	"github.com/capoferro/httpcachefilter/rfc7233"
)

// Status is the outcome of a lookup.
type Status int

const (
	// NotFound means no entry exists for the Key.
	NotFound Status = iota
	// Unusable means an entry exists but is stale and carries no
	// validators, so it cannot be revalidated either.
	Unusable
	// Fresh means the entry may be served as-is (after range adjustment,
	// if the request asked for one).
	Fresh
	// RequiresValidation means the entry is stale but has validators;
	// the caller should revalidate upstream before serving or replacing
	// it.
	RequiresValidation
)

func (s Status) String() string {
	switch s {
	case NotFound:
		return "NotFound"
	case Unusable:
		return "Unusable"
	case Fresh:
		return "Fresh"
	case RequiresValidation:
		return "RequiresValidation"
	default:
		return "Unknown"
	}
}

// Validators carries the entity tag and/or last-modified timestamp of a
// stale cached entry, for injection into a conditional revalidation
// request (If-None-Match / If-Modified-Since).
type Validators struct {
	ETag         string
	LastModified time.Time
}

// Empty reports whether neither validator is present, in which case a
// stale entry cannot be revalidated and must be treated as Unusable.
func (v Validators) Empty() bool {
	return v.ETag == "" && v.LastModified.IsZero()
}

// LookupResult is the outcome delivered by a LookupContext's GetHeaders
// callback. Only the fields relevant to Status are meaningful; callers
// must switch on Status before reading the rest.
type LookupResult struct {
	Status Status

	// Headers of the cached response. Meaningful for Fresh and
	// RequiresValidation.
	Headers map[string][]string

	// BodyLength is the size of the full cached response body.
	BodyLength uint64

	// StoredAt is when this entry was received from upstream, used by
	// callers to compute the Age response header.
	StoredAt time.Time

	// Validators is populated only when Status == RequiresValidation.
	Validators Validators
}

// BodyChunk is delivered by LookupContext.GetBody. Err is set, with Data
// nil, if the backend failed to read the requested range; the caller
// must treat this as a fatal streaming error.
type BodyChunk struct {
	Data []byte
	Err  error
}

// LookupContext manages the lifetime of a single cache lookup. A client
// may abandon it at any point simply by dropping its reference; there is
// no explicit close.
//
// A lookup is opened against a Key prefix because the full Key (which
// folds in Vary-selected request header values) can only be computed
// once a candidate entry's stored Vary header is known; see Backend's
// doc comment.
type LookupContext interface {
	// Key returns the key prefix this lookup was opened for.
	Key() Key

	// GetHeaders asynchronously delivers a LookupResult. It is a
	// programming error to call this more than once per context.
	GetHeaders(cb func(LookupResult))

	// GetBody delivers the bytes in [range.FirstBytePos,
	// range.LastBytePos] inclusive. May be called multiple times with
	// disjoint, monotonically advancing ranges; range.LastBytePos must
	// be less than the BodyLength reported by the preceding GetHeaders
	// callback.
	GetBody(r rfc7233.AdjustedRange, cb func(BodyChunk))

	// GetTrailers delivers cached trailers. Only meaningful if the
	// LookupResult indicated trailers were present.
	GetTrailers(cb func(map[string][]string))
}

// InsertContext manages the lifetime of a single cache insertion. It is
// created from a LookupContext after a miss, or after a
// response-replacing validation.
type InsertContext interface {
	// InsertHeaders captures the response headers to be cached. If
	// endStream is true, the entry commits immediately with an empty
	// body.
	InsertHeaders(headers map[string][]string, endStream bool)

	// InsertBody appends chunk to the entry under construction. If
	// endStream is true, the entry commits. Otherwise ready is invoked
	// with true to request the next chunk, or false to abort the
	// insertion (e.g. on quota exhaustion).
	InsertBody(chunk []byte, ready func(bool), endStream bool)

	// InsertTrailers captures trailers for the entry under
	// construction.
	InsertTrailers(trailers map[string][]string)
}

// Info is statically known, descriptive information about a backend.
type Info struct {
	Name                  string
	SupportsRangeRequests bool
}

// Backend is the storage contract implemented by a cache. Implementations
// must be safe for concurrent use.
//
// Because a stored entry's applicable Vary header names aren't known
// until after it's found, a lookup is keyed by prefix plus the
// requesting headers, and it is up to the backend to scan candidates
// sharing that prefix and recompute each one's full Key (prefix.WithVary
// applied to its own stored Vary header) to find one that matches the
// request.
type Backend interface {
	// MakeLookupContext opens a lookup for the given key prefix, using
	// reqHeader to resolve any candidate entry's Vary-selected values.
	MakeLookupContext(prefix Key, reqHeader http.Header) LookupContext

	// MakeInsertContext opens an insertion following the lookup
	// performed by lc. The returned context commits under lc's key
	// prefix extended with the response's Vary values (Key.WithVary).
	MakeInsertContext(lc LookupContext) InsertContext

	// UpdateHeaders refreshes the stored headers for the entry looked
	// up via lc (e.g. after a successful 304), without touching the
	// body. It must be atomic with respect to concurrent lookups of the
	// same Key.
	UpdateHeaders(lc LookupContext, headers map[string][]string)

	// CacheInfo returns descriptive information about this backend.
	CacheInfo() Info
}
