package rfc7234

import "net/http"

// IsCacheableMethod reports whether method is eligible for cache lookup
// and storage at all. Per spec.md §4.5 step 1, only GET is cacheable;
// every other method is forwarded untouched.
func IsCacheableMethod(method string) bool {
	return method == http.MethodGet
}

// IsCacheableResponse reports whether an upstream response to a GET
// request may be stored, per spec.md §4.5.2:
//
//   - the status must be a successful (2xx) response,
//   - Cache-Control must not carry no-store or private.
//
// Freshness (zero vs. non-zero lifetime) does not affect storability: a
// zero-lifetime response is still cached, just marked as requiring
// validation on the next hit.
func IsCacheableResponse(statusCode int, header http.Header) bool {
	if statusCode < 200 || statusCode >= 300 {
		return false
	}
	directives := ParseCacheControl(header.Values("Cache-Control"))
	return !directives.NoStore() && !directives.Private()
}
