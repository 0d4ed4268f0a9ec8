package cache

import (
	"database/sql"
	"net/http"
	"strconv"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/capoferro/httpcachefilter/pkg/responseserializer"
	"github.com/capoferro/httpcachefilter/rfc7233"
)

// SQLiteBackend is a Backend that persists entries to a SQLite database
// via a pure-Go driver, serializing each entry's headers and body with
// pkg/responseserializer. Grounded on the teacher's SQLiteCache
// (cache-provider.go): a single writeMutex serializes all writes, reads
// go straight to the driver.
type SQLiteBackend struct {
	db         *sql.DB
	writeMutex *sync.Mutex
	now        func() time.Time
}

// NewSQLiteBackend opens (and, if necessary, creates) a SQLite-backed
// cache at filename. An empty filename opens a shared in-memory
// database, useful for tests.
func NewSQLiteBackend(filename string) (*SQLiteBackend, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		stored_at INTEGER,
		bytes BLOB
	)`); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	return &SQLiteBackend{
		db:         db,
		writeMutex: &sync.Mutex{},
		now:        time.Now,
	}, nil
}

// find scans rows sharing prefix and returns the one whose stored Vary
// header resolves (against reqHeader) to its own actual key, mirroring
// MemoryBackend.find.
func (s *SQLiteBackend) find(prefix Key, reqHeader http.Header) (Key, Entry, bool) {
	rows, err := s.db.Query("SELECT key, bytes FROM cache WHERE key LIKE ?", string(prefix)+"%")
	if err != nil {
		return "", Entry{}, false
	}
	defer rows.Close()

	for rows.Next() {
		var keyStr string
		var raw []byte
		if err := rows.Scan(&keyStr, &raw); err != nil {
			continue
		}
		statusCode, headers, body, storedAt, err := responseserializer.Unmarshal(raw)
		if err != nil {
			continue
		}
		entry := Entry{StatusCode: statusCode, Headers: headers, Body: body, StoredAt: storedAt}
		if prefix.WithVary(reqHeader, http.Header(headers)) == Key(keyStr) {
			return Key(keyStr), entry, true
		}
	}
	return "", Entry{}, false
}

func (s *SQLiteBackend) lookupByKey(key Key) (Entry, bool) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM cache WHERE key = ?", string(key)).Scan(&bytes)
	if err != nil {
		return Entry{}, false
	}
	statusCode, headers, body, storedAt, err := responseserializer.Unmarshal(bytes)
	if err != nil {
		return Entry{}, false
	}
	return Entry{StatusCode: statusCode, Headers: headers, Body: body, StoredAt: storedAt}, true
}

func (s *SQLiteBackend) commit(key Key, e Entry) error {
	bytes, err := responseserializer.Marshal(e.StatusCode, e.Headers, e.Body, e.StoredAt)
	if err != nil {
		return err
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO cache (key, stored_at, bytes) VALUES (?, ?, ?)",
		string(key), e.StoredAt.Unix(), bytes,
	)
	return err
}

// MakeLookupContext implements Backend.
func (s *SQLiteBackend) MakeLookupContext(prefix Key, reqHeader http.Header) LookupContext {
	return &sqliteLookupContext{backend: s, prefix: prefix, reqHeader: reqHeader}
}

// MakeInsertContext implements Backend.
func (s *SQLiteBackend) MakeInsertContext(lc LookupContext) InsertContext {
	slc, ok := lc.(*sqliteLookupContext)
	if !ok {
		panic("cache: SQLiteBackend.MakeInsertContext called with a foreign LookupContext")
	}
	return &sqliteInsertContext{backend: s, prefix: slc.prefix, reqHeader: slc.reqHeader}
}

// UpdateHeaders implements Backend.
func (s *SQLiteBackend) UpdateHeaders(lc LookupContext, headers map[string][]string) {
	slc, ok := lc.(*sqliteLookupContext)
	if !ok {
		panic("cache: SQLiteBackend.UpdateHeaders called with a foreign LookupContext")
	}
	if !slc.found {
		return
	}
	entry, found := s.lookupByKey(slc.matchedKey)
	if !found {
		return
	}
	entry.Headers = headers
	entry.StoredAt = s.now()
	_ = s.commit(slc.matchedKey, entry)
}

// CacheInfo implements Backend.
func (s *SQLiteBackend) CacheInfo() Info {
	return Info{Name: "SQLiteBackend", SupportsRangeRequests: true}
}

type sqliteLookupContext struct {
	backend    *SQLiteBackend
	prefix     Key
	reqHeader  http.Header
	matchedKey Key
	entry      Entry
	found      bool
}

func (c *sqliteLookupContext) Key() Key { return c.prefix }

func (c *sqliteLookupContext) GetHeaders(cb func(LookupResult)) {
	key, entry, found := c.backend.find(c.prefix, c.reqHeader)
	c.matchedKey, c.entry, c.found = key, entry, found
	if !found {
		cb(LookupResult{Status: NotFound})
		return
	}
	cb(evaluate(entry, c.backend.now()))
}

func (c *sqliteLookupContext) GetBody(r rfc7233.AdjustedRange, cb func(BodyChunk)) {
	if !c.found || r.LastBytePos >= uint64(len(c.entry.Body)) {
		cb(BodyChunk{Err: errRangeOutOfBounds})
		return
	}
	cb(BodyChunk{Data: c.entry.Body[r.FirstBytePos : r.LastBytePos+1]})
}

func (c *sqliteLookupContext) GetTrailers(cb func(map[string][]string)) {
	cb(nil)
}

type sqliteInsertContext struct {
	backend   *SQLiteBackend
	prefix    Key
	reqHeader http.Header
	headers   map[string][]string
	body      []byte
	committed bool
}

func (c *sqliteInsertContext) InsertHeaders(headers map[string][]string, endStream bool) {
	if c.committed {
		panic("cache: InsertHeaders called on a committed InsertContext")
	}
	c.headers = headers
	if endStream {
		c.commit()
	}
}

func (c *sqliteInsertContext) InsertBody(chunk []byte, ready func(bool), endStream bool) {
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

func (c *sqliteInsertContext) InsertTrailers(trailers map[string][]string) {}

func (c *sqliteInsertContext) commit() {
	c.committed = true
	key := c.prefix.WithVary(c.reqHeader, http.Header(c.headers))
	// A write failure here has no observer in the InsertContext
	// contract; it simply leaves the prior entry (or no entry) in
	// place, which is safe since pre-commit state is never visible to
	// lookups.
	_ = c.backend.commit(key, Entry{
		StatusCode: statusCodeOf(http.Header(c.headers)),
		Headers:    c.headers,
		Body:       c.body,
		StoredAt:   c.backend.now(),
	})
}

// statusCodeOf extracts the cached status from the ":status"
// pseudo-header, the convention this filter uses (matching Envoy's
// header-map representation) for carrying the response's status line
// through a plain header map.
func statusCodeOf(header http.Header) int {
	if v := header.Get(":status"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return http.StatusOK
}
