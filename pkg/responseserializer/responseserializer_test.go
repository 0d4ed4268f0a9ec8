package responseserializer

import (
	"net/http"
	"testing"
	"time"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	headers := http.Header{}
	headers.Set("Content-Type", "text/plain")
	headers.Set("ETag", `"abc123"`)
	storedAt := time.Unix(1700000000, 0)

	b, err := Marshal(200, headers, []byte("hello world"), storedAt)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	statusCode, gotHeaders, body, gotStoredAt, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if statusCode != 200 {
		t.Errorf("statusCode = %d, want 200", statusCode)
	}
	if string(body) != "hello world" {
		t.Errorf("body = %q, want %q", body, "hello world")
	}
	if gotHeaders.Get("Content-Type") != "text/plain" {
		t.Errorf("Content-Type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("ETag") != `"abc123"` {
		t.Errorf("ETag = %q", gotHeaders.Get("ETag"))
	}
	if gotHeaders.Get(storedAtHeaderName) != "" {
		t.Errorf("synthetic stored-at header leaked into the returned headers")
	}
	if !gotStoredAt.Equal(storedAt) {
		t.Errorf("storedAt = %v, want %v", gotStoredAt, storedAt)
	}
}

func TestMarshalUnmarshalEmptyBody(t *testing.T) {
	b, err := Marshal(304, http.Header{}, nil, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	statusCode, _, body, _, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if statusCode != 304 {
		t.Errorf("statusCode = %d, want 304", statusCode)
	}
	if len(body) != 0 {
		t.Errorf("body = %q, want empty", body)
	}
}
