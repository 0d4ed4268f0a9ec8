package cachefilter

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/capoferro/httpcachefilter/cache"
	"github.com/capoferro/httpcachefilter/rfc7234/responsetransformer"
)

func newTestHandler(t *testing.T, origin *httptest.Server, rules responsetransformer.Rules) *Handler {
	t.Helper()
	u, err := url.Parse(origin.URL)
	if err != nil {
		t.Fatal(err)
	}
	return NewHandler(u, cache.NewMemoryBackend(), DefaultConfig(), rules)
}

func TestHandlerServesSecondRequestFromCache(t *testing.T) {
	var handleCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write([]byte("Hello world"))
	}))
	defer origin.Close()

	h := newTestHandler(t, origin, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.ServeHTTP(httptest.NewRecorder(), req)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if handleCount != 1 {
		t.Fatalf("origin called %d times, want 1", handleCount)
	}
	if body := rr.Body.String(); body != "Hello world" {
		t.Fatalf("body = %q, want %q", body, "Hello world")
	}
	if got := rr.Result().Header.Get("Cache-Status"); !strings.Contains(got, "hit") {
		t.Errorf("Cache-Status = %q, want it to mention a hit", got)
	}
}

func TestHandlerMissCarriesCacheStatusForward(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh"))
	}))
	defer origin.Close()

	h := newTestHandler(t, origin, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Result().Header.Get("Cache-Status"); !strings.Contains(got, "fwd=uri-miss") {
		t.Errorf("Cache-Status = %q, want it to mention a uri-miss forward", got)
	}
}

func TestHandlerNonCacheableMethodAlwaysForwards(t *testing.T) {
	var handleCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Write([]byte("posted"))
	}))
	defer origin.Close()

	h := newTestHandler(t, origin, nil)
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if handleCount != 2 {
		t.Fatalf("origin called %d times for POST, want 2 (never cached)", handleCount)
	}
}

func TestHandlerAppliesResponseTransformerRules(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("asset"))
	}))
	defer origin.Close()

	rules := responsetransformer.Rules{
		{Prefix: "/static/", Default: "public, max-age=120"},
	}
	h := newTestHandler(t, origin, rules)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))

	if got := rr.Result().Header.Get("Cache-Control"); got != "public, max-age=120" {
		t.Errorf("Cache-Control = %q, want the rule's default applied", got)
	}
}

func TestHandlerRevalidates304WithoutExposingIt(t *testing.T) {
	var requestCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount > 1 && r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Cache-Control", "max-age=0")
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("stable body"))
	}))
	defer origin.Close()

	h := newTestHandler(t, origin, nil)
	req := httptest.NewRequest(http.MethodGet, "/r", nil)

	h.ServeHTTP(httptest.NewRecorder(), req)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code == http.StatusNotModified {
		t.Fatalf("a 304 reached the client; it must always be fused with the cached body")
	}
	if body := rr.Body.String(); body != "stable body" {
		t.Fatalf("body = %q, want the fused cached body %q", body, "stable body")
	}
}
