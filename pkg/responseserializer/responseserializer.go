// Package responseserializer turns a cached response (headers, body,
// and the instant it was stored) into a byte slice suitable for a BLOB
// column, and back. It is the SQLiteBackend's on-disk format, grounded
// on the teacher's pkg/response-serializer, adapted from serializing a
// request/response pair to serializing the narrower (headers, body,
// storedAt) shape this filter's Entry uses.
package responseserializer

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

const storedAtHeaderName = "X-Cachefilter-Stored-At"

// Marshal renders statusCode, headers and body as an HTTP/1.1 response,
// stamping storedAt into a synthetic header so it round-trips through
// Unmarshal.
func Marshal(statusCode int, headers http.Header, body []byte, storedAt time.Time) ([]byte, error) {
	cloned := headers.Clone()
	cloned.Set(storedAtHeaderName, strconv.FormatInt(storedAt.Unix(), 10))

	res := &http.Response{
		StatusCode: statusCode,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     cloned,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Close:      false,
		// Content-Length drives whether Write will chunk the body; pin it
		// to the actual body length so Unmarshal can read it back without
		// a chunked decoder.
		ContentLength: int64(len(body)),
	}

	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal reverses Marshal.
func Unmarshal(b []byte) (statusCode int, headers http.Header, body []byte, storedAt time.Time, err error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return 0, nil, nil, time.Time{}, err
	}
	defer res.Body.Close()

	body, err = io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, nil, time.Time{}, err
	}

	storedAtUnix, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64)
	if err != nil {
		return 0, nil, nil, time.Time{}, err
	}
	res.Header.Del(storedAtHeaderName)

	return res.StatusCode, res.Header, body, time.Unix(storedAtUnix, 0), nil
}
