package cachefilter

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/capoferro/httpcachefilter/cache"
	"github.com/capoferro/httpcachefilter/rfc7234"
	"github.com/capoferro/httpcachefilter/rfc7234/responsetransformer"
	"github.com/capoferro/httpcachefilter/pkg/responsewritertee"
)

// Handler adapts Filter to net/http: the "surrounding framework" of
// spec.md §6 made concrete for Go's net/http stack, in the same shape
// as the teacher's AlwaysCache.ServeHTTP/proxy/
// sendToClientIfValidationFailed. One Handler serves every request for
// a single origin; it constructs a fresh Filter per request, the Go
// analogue of a per-stream filter instance.
//
// Go's net/http model already blocks the writing goroutine when a
// client is slow to read (ordinary TCP backpressure), unlike Envoy's
// non-blocking event loop that needs an explicit watermark signal to
// avoid buffering unboundedly. So this adapter never calls the
// watermark callbacks the Filter registers; the deterministic test
// Dispatcher exercises that logic instead (spec.md §8, scenarios 7-8).
type Handler struct {
	Backend cache.Backend
	Config  Config
	Rules   responsetransformer.Rules
	Clock   func() time.Time

	proxy  *httputil.ReverseProxy
	logger zerolog.Logger
}

// NewHandler constructs a Handler proxying cache misses and
// revalidation requests to origin.
func NewHandler(origin *url.URL, backend cache.Backend, config Config, rules responsetransformer.Rules) *Handler {
	h := &Handler{
		Backend: backend,
		Config:  config,
		Rules:   rules,
		Clock:   time.Now,
		logger:  log.With().Str("origin", origin.Host).Logger(),
	}
	h.proxy = &httputil.ReverseProxy{
		Director: func(r *http.Request) {
			r.URL.Scheme = origin.Scheme
			r.URL.Host = origin.Host
			r.Host = origin.Host
		},
		ModifyResponse: func(res *http.Response) error {
			h.Rules.Apply(res.Request.Method, res.Request.URL.Path, res.StatusCode, res.Header)
			return nil
		},
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clock := h.Clock
	if clock == nil {
		clock = time.Now
	}
	h.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("serving request")

	cb := &httpCallbacks{w: w, req: r, limit: fallbackChunkSize}
	filter := NewFilter(h.Backend, h.Config, cb, clock)
	cb.filter = filter
	cb.forward = func(req *http.Request) { h.forwardAndCapture(w, req, filter) }

	status := filter.DecodeHeaders(r)
	if status == Continue {
		// Non-cacheable method: the filter never touched the backend, so
		// there's nothing to capture on the way back either.
		var cs rfc7234.CacheStatus
		cs.Forward(rfc7234.FwdReasonMethod)
		w.Header().Add("Cache-Status", cs.String())
		h.proxy.ServeHTTP(w, r)
	}
	// For StopAllIterationAndWatermark, the synchronous inline dispatcher
	// has already driven the lookup to completion by the time
	// DecodeHeaders returns: either a cache hit was written directly
	// (ServingFromCache/Done), or cb.forward ran via ContinueDecoding
	// (Forwarding/Validating).
}

// forwardAndCapture proxies req upstream, capturing the response so the
// filter's response phase can decide whether to insert or replace a
// cache entry. When the filter is Validating, a 304 is kept from ever
// reaching the client: ResponseSaver's status filter suppresses the
// pass-through write, and fuseValidatedResponse (driven from
// EncodeHeaders below) writes the fused response directly via cb
// instead.
func (h *Handler) forwardAndCapture(w http.ResponseWriter, req *http.Request, filter *Filter) {
	var saver *responsewritertee.ResponseSaver
	validating := filter.State() == Validating
	var cs rfc7234.CacheStatus
	if validating {
		saver = responsewritertee.NewResponseSaver(w, http.StatusNotModified)
		cs.Forward(rfc7234.FwdReasonStale)
	} else {
		saver = responsewritertee.NewResponseSaver(w)
		cs.Forward(rfc7234.FwdReasonURIMiss)
	}
	w.Header().Add("Cache-Status", cs.String())

	h.proxy.ServeHTTP(saver, req)
	filter.EncodeHeaders(saver.StatusCode(), saver.SavedHeader(), saver.Body(), req)
}

// inlineDispatcher runs posted work synchronously: Go's goroutine-per-
// request model already serializes a single stream's work the way
// Envoy's per-connection dispatcher does, so there is no separate event
// loop to post onto.
type inlineDispatcher struct{}

func (inlineDispatcher) Post(f func()) { f() }

// httpCallbacks implements DownstreamCallbacks over a plain
// http.ResponseWriter.
type httpCallbacks struct {
	w      http.ResponseWriter
	req    *http.Request
	limit  int
	filter *Filter

	forward func(*http.Request)
}

// EncodeHeaders is only ever reached for headers the Filter originates
// itself: a cache hit (ServingFromCache) or a fused post-validation
// response (InjectingAfterValidation). Every other response path writes
// through ResponseSaver in forwardAndCapture instead.
func (c *httpCallbacks) EncodeHeaders(statusCode int, header http.Header, endStream bool) {
	dst := c.w.Header()
	for name, values := range header {
		dst[name] = values
	}
	var cs rfc7234.CacheStatus
	cs.Hit()
	if statusCode == http.StatusPartialContent || statusCode == http.StatusRequestedRangeNotSatisfiable {
		cs.Detail(strconv.Itoa(statusCode))
	} else if c.filter != nil && c.filter.State() == InjectingAfterValidation {
		cs.Detail("validated")
	}
	dst.Set("Cache-Status", cs.String())
	c.w.WriteHeader(statusCode)
}

func (c *httpCallbacks) EncodeData(chunk []byte, endStream bool) {
	c.w.Write(chunk)
}

func (c *httpCallbacks) InjectEncodedData(chunk []byte, endStream bool) {
	c.w.Write(chunk)
}

func (c *httpCallbacks) ContinueDecoding() {
	c.forward(c.req)
}

// ResetStream implements the "backend body error after headers sent"
// branch of spec.md §4.5.4 by severing the connection; net/http offers
// no graceful mid-response abort short of this.
func (c *httpCallbacks) ResetStream() {
	if hj, ok := c.w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			conn.Close()
		}
	}
}

func (c *httpCallbacks) EncoderBufferLimit() int { return c.limit }

func (c *httpCallbacks) Dispatcher() Dispatcher { return inlineDispatcher{} }

func (c *httpCallbacks) SetWatermarkCallbacks(above, below func()) {}
