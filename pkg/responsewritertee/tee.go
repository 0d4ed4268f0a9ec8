// Package responsewritertee provides a tee'd http.ResponseWriter: one
// that forwards every header and body write to the real client
// connection while also buffering a copy, so the filter's response path
// can decide whether to cache what it just streamed without holding up
// the stream. An optional status filter suppresses the pass-through
// write entirely for one status code, used by the revalidation path to
// keep a 304 from ever reaching the client while it is fused with the
// cached body instead. Grounded on the teacher's pkg/response-writer-tee.
package responsewritertee

import (
	"bytes"
	"net/http"
	"time"
)

// ResponseSaver wraps an http.ResponseWriter, writing through to it
// while also capturing a copy of the status, headers and body.
type ResponseSaver struct {
	rw           http.ResponseWriter
	body         *bytes.Buffer
	header       http.Header
	status       int
	wroteHeaders bool
	statusFilter int
	CreatedAt    time.Time
}

// NewResponseSaver returns a ResponseSaver that tees writes to w. If
// statusFilter is given, a WriteHeader call matching it drops the
// underlying writer: nothing reaches w for that response, only the
// saver's own buffer.
func NewResponseSaver(w http.ResponseWriter, statusFilter ...int) *ResponseSaver {
	s := &ResponseSaver{
		CreatedAt: time.Now(),
		rw:        w,
		body:      &bytes.Buffer{},
		header:    http.Header{},
	}
	if len(statusFilter) == 1 {
		s.statusFilter = statusFilter[0]
	}
	return s
}

// Header implements http.ResponseWriter. It returns the saver's own
// header map; callers must not mutate the underlying writer's headers
// directly, or the saved copy diverges from what's actually sent.
func (s *ResponseSaver) Header() http.Header {
	return s.header
}

// WriteHeader implements http.ResponseWriter.
func (s *ResponseSaver) WriteHeader(statusCode int) {
	if s.wroteHeaders {
		return
	}
	if statusCode == s.statusFilter {
		s.rw = nil
	}
	s.wroteHeaders = true
	s.status = statusCode
	if s.rw != nil {
		copyHeader(s.rw.Header(), s.header)
		s.rw.WriteHeader(statusCode)
	}
}

// Write implements http.ResponseWriter.
func (s *ResponseSaver) Write(b []byte) (int, error) {
	if !s.wroteHeaders {
		s.WriteHeader(http.StatusOK)
	}
	if s.rw != nil {
		if _, err := s.rw.Write(b); err != nil {
			return 0, err
		}
	}
	return s.body.Write(b)
}

// Body returns the bytes written to the response so far.
func (s *ResponseSaver) Body() []byte {
	return s.body.Bytes()
}

// StatusCode returns the status code passed to WriteHeader, or 0 if
// nothing has been written yet.
func (s *ResponseSaver) StatusCode() int {
	return s.status
}

// SavedHeader returns the saver's header map, the same live map that
// Header returns; it is not a snapshot.
func (s *ResponseSaver) SavedHeader() http.Header {
	return s.header
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
