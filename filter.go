// Package cachefilter implements a per-stream HTTP caching filter: on
// the request path it consults a cache.Backend and either serves a
// fresh hit directly, forwards a miss upstream, or forwards a
// revalidation request with injected conditional headers; on the
// response path it captures cacheable upstream responses or fuses a
// successful 304 with the previously cached body.
//
// The design is a direct Go rendition of Envoy's http_cache filter: a
// per-stream state machine driven by framework entry points and backend
// callbacks, posted through a single-threaded dispatcher, with
// destruction safety expressed as a dead flag rather than a weak
// pointer (Go has no native weak references).
package cachefilter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/capoferro/httpcachefilter/cache"
	"github.com/capoferro/httpcachefilter/rfc7231"
	"github.com/capoferro/httpcachefilter/rfc7233"
	"github.com/capoferro/httpcachefilter/rfc7234"
)

// State is the per-stream state of a Filter. Exactly one holds at any
// time; transitions are driven by Decode*/Encode* entry points and by
// backend callbacks.
type State int

const (
	Initial State = iota
	LookingUp
	ServingFromCache
	Forwarding
	Validating
	InjectingAfterValidation
	Done
	Destroyed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case LookingUp:
		return "LookingUp"
	case ServingFromCache:
		return "ServingFromCache"
	case Forwarding:
		return "Forwarding"
	case Validating:
		return "Validating"
	case InjectingAfterValidation:
		return "InjectingAfterValidation"
	case Done:
		return "Done"
	case Destroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// FilterStatus is returned from every filter entry point to tell the
// surrounding framework how to proceed.
type FilterStatus int

const (
	// Continue lets the framework proceed with its default behavior
	// (forward the request/response unchanged).
	Continue FilterStatus = iota
	// StopAllIterationAndWatermark suspends iteration until the filter
	// explicitly resumes it (e.g. via a posted backend callback),
	// applying watermark backpressure in the meantime.
	StopAllIterationAndWatermark
	// ContinueAndDontEndStream tells the framework that headers should
	// be encoded without ending the stream, because the filter intends
	// to inject body data afterward.
	ContinueAndDontEndStream
)

// Dispatcher is the stream's single-threaded cooperative event loop.
// All filter entry points and all backend callbacks are expected to run
// on it; Post schedules f to run there.
type Dispatcher interface {
	Post(f func())
}

// DownstreamCallbacks is the framework surface a Filter uses to affect
// the downstream response: emit headers/data of its own (a cache hit,
// or a 206/416), inject data into an in-flight response
// (post-validation), and observe/react to backpressure.
type DownstreamCallbacks interface {
	// EncodeHeaders sends headers that the filter itself originates
	// (as opposed to passing through an upstream response).
	EncodeHeaders(statusCode int, header http.Header, endStream bool)
	// EncodeData sends a body chunk the filter itself originates.
	EncodeData(chunk []byte, endStream bool)
	// InjectEncodedData injects body data after the filter has sent the
	// fused headers with EncodeHeaders in place of a suppressed 304 (the
	// post-validation body-fusion path).
	InjectEncodedData(chunk []byte, endStream bool)
	// ContinueDecoding resumes the request path after it was suspended
	// by StopAllIterationAndWatermark, forwarding the (possibly
	// validator-injected) request upstream.
	ContinueDecoding()
	// ResetStream terminates the downstream stream abnormally. Used only
	// when a backend body error surfaces after headers have already
	// been sent, per §4.5.4: no status change is possible at that
	// point.
	ResetStream()
	// EncoderBufferLimit is the downstream buffer limit that bounds
	// body chunk size.
	EncoderBufferLimit() int
	// Dispatcher returns the stream's dispatcher.
	Dispatcher() Dispatcher
	// SetWatermarkCallbacks registers callbacks invoked when the
	// downstream connection's buffer crosses the high or low
	// watermark.
	SetWatermarkCallbacks(above, below func())
}

// Filter is a per-stream cache filter instance. It is not safe for
// concurrent use from more than one goroutine; all of its methods and
// all backend callbacks it issues are expected to run on the
// callbacks' Dispatcher.
type Filter struct {
	backend   cache.Backend
	config    Config
	callbacks DownstreamCallbacks
	clock     func() time.Time
	logger    zerolog.Logger

	state     State
	destroyed bool

	keyPrefix cache.Key
	reqHeader http.Header
	reqRanges []rfc7233.RawRange

	lookupCtx cache.LookupContext
	insertCtx cache.InsertContext

	// cachedHeaders/cachedBodyLength/cachedStoredAt describe the entry
	// found by a lookup that required validation, so the response phase
	// can fuse a successful 304 with the cached body.
	cachedHeaders    http.Header
	cachedBodyLength uint64
	cachedStoredAt   time.Time

	// streamCur/streamEnd/streamMode track an in-progress body-streaming
	// loop (§4.5.1); see streaming.go.
	streamCur  uint64
	streamEnd  uint64
	streamMode deliveryMode

	watermarkDepth int
}

// NewFilter constructs a Filter bound to a single stream's callbacks.
// clock defaults to time.Now if nil.
func NewFilter(backend cache.Backend, config Config, callbacks DownstreamCallbacks, clock func() time.Time) *Filter {
	if clock == nil {
		clock = time.Now
	}
	traceID := uuid.New().String()
	f := &Filter{
		backend:   backend,
		config:    config,
		callbacks: callbacks,
		clock:     clock,
		logger:    log.With().Str("stream_id", traceID).Logger(),
		state:     Initial,
	}
	callbacks.SetWatermarkCallbacks(f.onAboveHighWatermark, f.onBelowLowWatermark)
	return f
}

// State returns the filter's current state, for tests and logging.
func (f *Filter) State() State { return f.state }

// OnDestroy marks the filter Destroyed. Every later-firing posted
// callback checks this flag and becomes a no-op, which is this filter's
// substitute for a weak self-reference: Go offers no native weak
// pointers, and a dead flag is sufficient because the filter (and
// everything it posted callbacks over) stays reachable for as long as
// any such callback might still fire.
func (f *Filter) OnDestroy() {
	f.destroyed = true
	f.state = Destroyed
}

func (f *Filter) post(fn func()) {
	f.callbacks.Dispatcher().Post(func() {
		if f.destroyed {
			return
		}
		fn()
	})
}

// DecodeHeaders is the request-phase entry point: §4.5 "Request phase".
func (f *Filter) DecodeHeaders(req *http.Request) FilterStatus {
	if !rfc7234.IsCacheableMethod(req.Method) {
		f.state = Forwarding
		return Continue
	}

	f.keyPrefix = cache.NewKeyPrefix(req)
	f.reqHeader = req.Header.Clone()
	f.reqRanges = rfc7233.ParseRangeHeader(req.Method, req.Header["Range"], f.config.ByteRangeParseLimit)

	f.lookupCtx = f.backend.MakeLookupContext(f.keyPrefix, f.reqHeader)
	f.state = LookingUp

	f.post(func() {
		f.lookupCtx.GetHeaders(func(result cache.LookupResult) {
			f.post(func() { f.onLookupResult(req, result) })
		})
	})
	return StopAllIterationAndWatermark
}

func (f *Filter) onLookupResult(req *http.Request, result cache.LookupResult) {
	switch result.Status {
	case cache.NotFound, cache.Unusable:
		f.state = Forwarding
		f.resumeDecoding()
	case cache.Fresh:
		f.serveFromCache(req, result)
	case cache.RequiresValidation:
		f.injectValidators(req, result)
		f.state = Validating
		f.cachedHeaders = http.Header(result.Headers)
		f.cachedBodyLength = result.BodyLength
		f.cachedStoredAt = result.StoredAt
		f.resumeDecoding()
	}
}

// injectValidators adds If-None-Match / If-Modified-Since to the
// upstream request per spec.md §6's bit-exact HTTP surface: the two
// headers are independent of each other, each added whenever its own
// source is available.
func (f *Filter) injectValidators(req *http.Request, result cache.LookupResult) {
	if result.Validators.ETag != "" {
		req.Header.Set("If-None-Match", result.Validators.ETag)
	}
	if !result.Validators.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", rfc7231.FormatHTTPDate(result.Validators.LastModified))
	} else if date := http.Header(result.Headers).Get("Date"); date != "" {
		req.Header.Set("If-Modified-Since", date)
	}
}

// resumeDecoding tells the framework to continue decoding (forward
// upstream) now that the lookup callback has resolved.
func (f *Filter) resumeDecoding() {
	f.callbacks.ContinueDecoding()
}

// EncodeHeaders is the response-phase entry point for upstream
// response headers: §4.5 "Response phase (upstream headers arriving)".
// body is the full (already-drained) upstream body; it is inserted into
// the cache with a single InsertBody call.
func (f *Filter) EncodeHeaders(statusCode int, header http.Header, body []byte, req *http.Request) FilterStatus {
	switch f.state {
	case Forwarding:
		if rfc7234.IsCacheableResponse(statusCode, header) {
			f.insertIntoCache(statusCode, header, body)
		}
		return Continue
	case Validating:
		if statusCode == http.StatusNotModified {
			return f.fuseValidatedResponse(header)
		}
		// Not 304: abandon the cached entry's applicability and, if the
		// new response is cacheable, replace it.
		if rfc7234.IsCacheableResponse(statusCode, header) {
			f.insertIntoCache(statusCode, header, body)
		}
		f.state = Done
		return Continue
	default:
		return Continue
	}
}

func (f *Filter) insertIntoCache(statusCode int, header http.Header, body []byte) {
	f.insertCtx = f.backend.MakeInsertContext(f.lookupCtx)
	headers := cloneHeaderMap(header)
	headers[":status"] = []string{strconv.Itoa(statusCode)}
	f.insertCtx.InsertHeaders(headers, false)
	f.insertCtx.InsertBody(body, nil, true)
	f.state = Done
}

// fuseValidatedResponse implements the "304 arrived while Validating"
// branch: update the cached headers, then stream the cached body as
// injected data without ever forwarding the 304 itself downstream.
func (f *Filter) fuseValidatedResponse(freshHeaders http.Header) FilterStatus {
	merged := mergeValidationHeaders(f.cachedHeaders, freshHeaders)
	f.backend.UpdateHeaders(f.lookupCtx, cloneHeaderMap(merged))
	f.cachedHeaders = merged
	f.state = InjectingAfterValidation

	header, statusCode := splitStoredHeaders(cloneHeaderMap(merged))

	// The response was just validated, so it was effectively received
	// "now"; age is whatever apparent skew exists between the fresh
	// Date and this instant.
	now := f.clock()
	age := rfc7234.CurrentAge(header.Get("Date"), now, now)
	rfc7234.SetAgeHeader(header, age)

	if f.cachedBodyLength == 0 {
		f.callbacks.EncodeHeaders(statusCode, header, true)
		f.state = Done
		return Continue
	}
	f.callbacks.EncodeHeaders(statusCode, header, false)
	f.streamCachedBody(0, f.cachedBodyLength-1, injectedDelivery)
	return ContinueAndDontEndStream
}

// mergeValidationHeaders refreshes cached headers with the fresher
// Date/validators carried by a 304, per §4.5: "update the cached headers
// (merging the 304's fresher date/validators)".
func mergeValidationHeaders(cached, fresh http.Header) http.Header {
	merged := cloneHeader(cached)
	for _, name := range []string{"Date", "ETag", "Last-Modified", "Expires", "Cache-Control", "Vary"} {
		if v := fresh.Get(name); v != "" {
			merged.Set(name, v)
		}
	}
	return merged
}

func cloneHeader(h http.Header) http.Header {
	return h.Clone()
}

func cloneHeaderMap(h http.Header) map[string][]string {
	clone := h.Clone()
	return map[string][]string(clone)
}
