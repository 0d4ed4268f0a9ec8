package cachefilter

import (
	"net/http"
	"strconv"

	"github.com/capoferro/httpcachefilter/cache"
	"github.com/capoferro/httpcachefilter/rfc7231"
	"github.com/capoferro/httpcachefilter/rfc7233"
	"github.com/capoferro/httpcachefilter/rfc7234"
)

// deliveryMode distinguishes the two ways a Filter hands cached body
// bytes to the framework: as a response it originates itself (a cache
// hit), or as data injected after the fused headers that replace a
// suppressed 304 (post-validation fusion).
type deliveryMode int

const (
	hitDelivery deliveryMode = iota
	injectedDelivery
)

// fallbackChunkSize bounds body chunk size when EncoderBufferLimit
// reports no limit (0), which a real framework callback is not expected
// to do but a test double might.
const fallbackChunkSize = 64 * 1024

// serveFromCache synthesizes the downstream response for a Fresh lookup
// result: §4.5 step 3 "Fresh" and §4.5.3's single-range handling.
func (f *Filter) serveFromCache(req *http.Request, result cache.LookupResult) {
	f.state = ServingFromCache

	header, statusCode := splitStoredHeaders(result.Headers)
	// Age is the filter clock's now minus the cached Date; the entry's
	// stored-at time stands in only when Date is missing or unparseable.
	responseTime := rfc7231.ParseHTTPDate(header.Get("Date"))
	if responseTime.IsZero() {
		responseTime = result.StoredAt
	}
	age := rfc7234.CurrentAge(header.Get("Date"), responseTime, f.clock())
	rfc7234.SetAgeHeader(header, age)

	outcome := evaluateRange(f.reqRanges, result.BodyLength)
	if !outcome.Applies {
		f.serveFullFromCache(header, statusCode, result.BodyLength)
		return
	}

	header.Set("Content-Range", outcome.ContentRange)
	if !outcome.HasBody {
		header.Del("Content-Length")
		f.callbacks.EncodeHeaders(outcome.StatusCode, header, true)
		f.state = Done
		return
	}
	header.Set("Content-Length", strconv.FormatUint(outcome.Range.Length(), 10))
	f.callbacks.EncodeHeaders(outcome.StatusCode, header, false)
	f.streamCachedBody(outcome.Range.FirstBytePos, outcome.Range.LastBytePos, hitDelivery)
}

func (f *Filter) serveFullFromCache(header http.Header, statusCode int, bodyLength uint64) {
	if bodyLength == 0 {
		f.callbacks.EncodeHeaders(statusCode, header, true)
		f.state = Done
		return
	}
	f.callbacks.EncodeHeaders(statusCode, header, false)
	f.streamCachedBody(0, bodyLength-1, hitDelivery)
}

// splitStoredHeaders separates the ":status" pseudo-header (this filter's
// convention, mirroring Envoy's header-map representation, for carrying a
// stored response's status line through a plain header map) from the
// real headers that get sent downstream.
func splitStoredHeaders(stored map[string][]string) (http.Header, int) {
	header := http.Header(stored).Clone()
	statusCode := http.StatusOK
	if v := header.Get(":status"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			statusCode = n
		}
	}
	header.Del(":status")
	return header, statusCode
}

// streamCachedBody drives body streaming with backpressure per §4.5.1:
// it begins emitting [first, last] (inclusive) in chunks bounded by the
// downstream buffer limit, in strict offset order, ending the stream on
// the final chunk.
func (f *Filter) streamCachedBody(first, last uint64, mode deliveryMode) {
	f.streamCur = first
	f.streamEnd = last
	f.streamMode = mode
	f.emitNextChunk()
}

// emitNextChunk issues the next GetBody call, unless watermark depth is
// currently positive, in which case the streaming loop is parked until
// onBelowLowWatermark brings depth back to zero.
func (f *Filter) emitNextChunk() {
	if f.destroyed || f.watermarkDepth > 0 {
		return
	}

	limit := uint64(f.callbacks.EncoderBufferLimit())
	if limit == 0 {
		limit = fallbackChunkSize
	}
	chunkLast := f.streamCur + limit - 1
	if chunkLast > f.streamEnd {
		chunkLast = f.streamEnd
	}
	r := rfc7233.AdjustedRange{FirstBytePos: f.streamCur, LastBytePos: chunkLast}
	isLast := chunkLast == f.streamEnd

	f.lookupCtx.GetBody(r, func(chunk cache.BodyChunk) {
		f.post(func() { f.onBodyChunk(chunk, r, isLast) })
	})
}

// onBodyChunk delivers an already-completed GetBody result downstream,
// per §4.5.1: an in-flight callback always completes and is injected even
// if watermark depth went positive while it was outstanding; only the
// *next* call is gated on depth.
func (f *Filter) onBodyChunk(chunk cache.BodyChunk, r rfc7233.AdjustedRange, isLast bool) {
	if chunk.Err != nil {
		f.callbacks.ResetStream()
		f.state = Done
		return
	}

	switch f.streamMode {
	case injectedDelivery:
		f.callbacks.InjectEncodedData(chunk.Data, isLast)
	default:
		f.callbacks.EncodeData(chunk.Data, isLast)
	}

	if isLast {
		f.state = Done
		return
	}
	f.streamCur = r.LastBytePos + 1
	f.emitNextChunk()
}

// onAboveHighWatermark is registered with the framework via
// SetWatermarkCallbacks; it pauses the body streaming loop.
func (f *Filter) onAboveHighWatermark() {
	f.watermarkDepth++
}

// onBelowLowWatermark resumes the body streaming loop once depth returns
// to zero.
func (f *Filter) onBelowLowWatermark() {
	if f.watermarkDepth > 0 {
		f.watermarkDepth--
	}
	if f.watermarkDepth == 0 {
		f.emitNextChunk()
	}
}
