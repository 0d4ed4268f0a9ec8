package cache

import (
	"net/http"
	"time"

	"github.com/capoferro/httpcachefilter/rfc7231"
	"github.com/capoferro/httpcachefilter/rfc7234"
)

// Entry is what a backend actually stores: the cached response and the
// time it was received from upstream. Backends are free to choose their
// own on-disk/in-memory representation; Entry is the shape both
// MemoryBackend and SQLiteBackend settle on internally.
type Entry struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	StoredAt   time.Time
}

// evaluate turns a stored Entry into the LookupResult a LookupContext
// delivers to GetHeaders, judging freshness with
// rfc7234.FreshnessLifetime and rfc7234.IsFresh against the entry's
// stored-at time. Header names are canonicalized first, so an entry
// stored with e.g. "ETag" rather than "Etag" still yields its
// validators; the returned Headers carry the canonical names.
func evaluate(entry Entry, now time.Time) LookupResult {
	header := make(http.Header, len(entry.Headers))
	for name, values := range entry.Headers {
		header[http.CanonicalHeaderKey(name)] = values
	}
	lifetime := rfc7234.FreshnessLifetime(header)

	if rfc7234.IsFresh(lifetime, entry.StoredAt, now) {
		return LookupResult{
			Status:     Fresh,
			Headers:    header,
			BodyLength: uint64(len(entry.Body)),
			StoredAt:   entry.StoredAt,
		}
	}

	validators := Validators{
		ETag:         header.Get("ETag"),
		LastModified: rfc7234ParseLastModified(header),
	}
	if validators.Empty() {
		return LookupResult{Status: Unusable}
	}
	return LookupResult{
		Status:     RequiresValidation,
		Headers:    header,
		BodyLength: uint64(len(entry.Body)),
		StoredAt:   entry.StoredAt,
		Validators: validators,
	}
}

func rfc7234ParseLastModified(header http.Header) time.Time {
	return rfc7231.ParseHTTPDate(header.Get("Last-Modified"))
}
