package cache

import (
	"net/http"
	"strings"
)

const (
	methodSeparator = ":"
	varySeparator   = "\t"
)

// Key is the request fingerprint used as the backend's sole map key.
// It is built in two stages: Prefix identifies the request ignoring any
// Vary-dependent variation, and the full string (via WithVary) appends
// the values of headers named by the response's Vary once they are
// known. Equality is exact string equality, matching the "stable across
// the lifetime of a cache entry" requirement.
type Key string

// NewKeyPrefix builds the portion of a Key derivable from the request
// alone: method, authority and path. It is what MakeLookupContext keys
// on before the response (and its Vary header) is known.
func NewKeyPrefix(r *http.Request) Key {
	authority := r.Host
	return Key(authority + methodSeparator + r.Method + methodSeparator + r.URL.RequestURI() + varySeparator)
}

// WithVary extends a prefix Key with the values of the request headers
// named by the response's Vary header, producing the full variant key
// under which an entry is committed. Headers absent from the request
// are recorded as absent rather than omitted, so that "Vary: X" with X
// unset is distinguishable from a request that sent X.
func (k Key) WithVary(reqHeader http.Header, resHeader http.Header) Key {
	key := string(k)
	for _, name := range varyHeaderNames(resHeader) {
		key += "\n" + strings.ToLower(name) + ": " + reqHeader.Get(name)
	}
	return Key(key)
}

// varyHeaderNames returns the comma-separated, individually trimmed
// header names listed across all Vary header instances.
func varyHeaderNames(header http.Header) []string {
	var names []string
	for _, value := range header.Values("Vary") {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// HasPrefix reports whether k was derived from prefix via WithVary (or
// equals it exactly, in the no-Vary case).
func (k Key) HasPrefix(prefix Key) bool {
	return strings.HasPrefix(string(k), string(prefix))
}
