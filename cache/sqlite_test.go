package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/capoferro/httpcachefilter/rfc7233"
)

func newTestSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend("")
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	return b
}

func TestSQLiteBackendMissThenHit(t *testing.T) {
	b := newTestSQLiteBackend(t)
	key := Key("sk1")
	reqHeader := http.Header{}

	var result LookupResult
	lc := b.MakeLookupContext(key, reqHeader)
	lc.GetHeaders(func(r LookupResult) { result = r })
	if result.Status != NotFound {
		t.Fatalf("Status = %v, want NotFound", result.Status)
	}

	ic := b.MakeInsertContext(lc)
	ic.InsertHeaders(map[string][]string{
		":status":       {"200"},
		"Cache-Control": {"max-age=60"},
	}, false)
	ic.InsertBody([]byte("cached body"), nil, true)

	lc2 := b.MakeLookupContext(key, reqHeader)
	lc2.GetHeaders(func(r LookupResult) { result = r })
	if result.Status != Fresh {
		t.Fatalf("Status = %v, want Fresh", result.Status)
	}
	if result.BodyLength != uint64(len("cached body")) {
		t.Fatalf("BodyLength = %d", result.BodyLength)
	}

	var chunk BodyChunk
	lc2.GetBody(rfc7233.AdjustedRange{FirstBytePos: 0, LastBytePos: result.BodyLength - 1}, func(c BodyChunk) {
		chunk = c
	})
	if string(chunk.Data) != "cached body" {
		t.Fatalf("body = %q", chunk.Data)
	}
}

func TestSQLiteBackendUpdateHeaders(t *testing.T) {
	b := newTestSQLiteBackend(t)
	fixed := time.Unix(1700000000, 0)
	b.now = func() time.Time { return fixed }
	reqHeader := http.Header{}

	key := Key("sk2")
	lc := b.MakeLookupContext(key, reqHeader)
	ic := b.MakeInsertContext(lc)
	ic.InsertHeaders(map[string][]string{"Cache-Control": {"max-age=1"}}, true)

	b.now = func() time.Time { return fixed.Add(10 * time.Second) }

	lc2 := b.MakeLookupContext(key, reqHeader)
	lc2.GetHeaders(func(LookupResult) {})
	b.UpdateHeaders(lc2, map[string][]string{"Cache-Control": {"max-age=600"}})

	var result LookupResult
	b.MakeLookupContext(key, reqHeader).GetHeaders(func(r LookupResult) { result = r })
	if result.Status != Fresh {
		t.Fatalf("Status = %v, want Fresh after UpdateHeaders", result.Status)
	}
}

func TestSQLiteBackendCacheInfo(t *testing.T) {
	b := newTestSQLiteBackend(t)
	info := b.CacheInfo()
	if info.Name != "SQLiteBackend" {
		t.Fatalf("Name = %q", info.Name)
	}
}
