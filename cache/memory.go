package cache

import (
	"net/http"
	"sync"
	"time"

	"github.com/capoferro/httpcachefilter/rfc7233"
)

// MemoryBackend is a mapping from Key to Entry guarded by a single
// mutex. It never evicts. Grounded on Envoy's SimpleHttpCache: suitable
// for tests, unsuitable for production.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[Key]Entry
	now     func() time.Time
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[Key]Entry),
		now:     time.Now,
	}
}

// find scans entries sharing prefix and returns the one whose stored
// Vary header resolves (against reqHeader) to its own actual key.
func (m *MemoryBackend) find(prefix Key, reqHeader http.Header) (Key, Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.entries {
		if !key.HasPrefix(prefix) {
			continue
		}
		if prefix.WithVary(reqHeader, http.Header(entry.Headers)) == key {
			return key, entry, true
		}
	}
	return "", Entry{}, false
}

func (m *MemoryBackend) commit(key Key, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
}

// MakeLookupContext implements Backend.
func (m *MemoryBackend) MakeLookupContext(prefix Key, reqHeader http.Header) LookupContext {
	return &memoryLookupContext{backend: m, prefix: prefix, reqHeader: reqHeader}
}

// MakeInsertContext implements Backend.
func (m *MemoryBackend) MakeInsertContext(lc LookupContext) InsertContext {
	mlc, ok := lc.(*memoryLookupContext)
	if !ok {
		panic("cache: MemoryBackend.MakeInsertContext called with a foreign LookupContext")
	}
	return &memoryInsertContext{backend: m, prefix: mlc.prefix, reqHeader: mlc.reqHeader}
}

// UpdateHeaders implements Backend.
func (m *MemoryBackend) UpdateHeaders(lc LookupContext, headers map[string][]string) {
	mlc, ok := lc.(*memoryLookupContext)
	if !ok {
		panic("cache: MemoryBackend.UpdateHeaders called with a foreign LookupContext")
	}
	if !mlc.found {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, found := m.entries[mlc.matchedKey]
	if !found {
		return
	}
	entry.Headers = headers
	entry.StoredAt = m.now()
	m.entries[mlc.matchedKey] = entry
}

// CacheInfo implements Backend.
func (m *MemoryBackend) CacheInfo() Info {
	return Info{Name: "MemoryBackend", SupportsRangeRequests: true}
}

type memoryLookupContext struct {
	backend    *MemoryBackend
	prefix     Key
	reqHeader  http.Header
	matchedKey Key
	entry      Entry
	found      bool
}

func (c *memoryLookupContext) Key() Key { return c.prefix }

func (c *memoryLookupContext) GetHeaders(cb func(LookupResult)) {
	key, entry, found := c.backend.find(c.prefix, c.reqHeader)
	c.matchedKey, c.entry, c.found = key, entry, found
	if !found {
		cb(LookupResult{Status: NotFound})
		return
	}
	cb(evaluate(entry, c.backend.now()))
}

func (c *memoryLookupContext) GetBody(r rfc7233.AdjustedRange, cb func(BodyChunk)) {
	if !c.found || r.LastBytePos >= uint64(len(c.entry.Body)) {
		cb(BodyChunk{Err: errRangeOutOfBounds})
		return
	}
	cb(BodyChunk{Data: c.entry.Body[r.FirstBytePos : r.LastBytePos+1]})
}

func (c *memoryLookupContext) GetTrailers(cb func(map[string][]string)) {
	cb(nil)
}

type memoryInsertContext struct {
	backend   *MemoryBackend
	prefix    Key
	reqHeader http.Header
	headers   map[string][]string
	body      []byte
	committed bool
}

func (c *memoryInsertContext) InsertHeaders(headers map[string][]string, endStream bool) {
	if c.committed {
		panic("cache: InsertHeaders called on a committed InsertContext")
	}
	c.headers = headers
	if endStream {
		c.commit()
	}
}

func (c *memoryInsertContext) InsertBody(chunk []byte, ready func(bool), endStream bool) {
	if c.committed {
		panic("cache: InsertBody called on a committed InsertContext")
	}
	c.body = append(c.body, chunk...)
	if endStream {
		c.commit()
		return
	}
	ready(true)
}

func (c *memoryInsertContext) InsertTrailers(trailers map[string][]string) {}

func (c *memoryInsertContext) commit() {
	c.committed = true
	key := c.prefix.WithVary(c.reqHeader, http.Header(c.headers))
	c.backend.commit(key, Entry{
		StatusCode: statusCodeOf(http.Header(c.headers)),
		Headers:    c.headers,
		Body:       c.body,
		StoredAt:   c.backend.now(),
	})
}
