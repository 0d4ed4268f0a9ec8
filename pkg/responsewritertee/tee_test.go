package responsewritertee

import (
	"net/http/httptest"
	"testing"
)

func TestResponseSaverTeesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewResponseSaver(rec)
	s.Header().Set("Content-Type", "text/plain")
	s.WriteHeader(201)
	s.Write([]byte("hello"))
	s.Write([]byte(" world"))

	if rec.Code != 201 {
		t.Errorf("underlying status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != "hello world" {
		t.Errorf("underlying body = %q", rec.Body.String())
	}
	if string(s.Body()) != "hello world" {
		t.Errorf("saved body = %q", s.Body())
	}
	if s.StatusCode() != 201 {
		t.Errorf("StatusCode() = %d, want 201", s.StatusCode())
	}
	if rec.Header().Get("Content-Type") != "text/plain" {
		t.Errorf("underlying Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestResponseSaverImplicitWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewResponseSaver(rec)
	s.Write([]byte("ok"))
	if s.StatusCode() != 200 {
		t.Errorf("StatusCode() = %d, want 200 (implicit)", s.StatusCode())
	}
	if rec.Code != 200 {
		t.Errorf("underlying status = %d, want 200", rec.Code)
	}
}

func TestResponseSaverWriteHeaderOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewResponseSaver(rec)
	s.WriteHeader(404)
	s.WriteHeader(500)
	if s.StatusCode() != 404 {
		t.Errorf("StatusCode() = %d, want 404 (first WriteHeader wins)", s.StatusCode())
	}
}

func TestResponseSaverStatusFilterSuppressesPassthrough(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewResponseSaver(rec, 304)
	s.Header().Set("ETag", `"abc"`)
	s.WriteHeader(304)
	s.Write([]byte("should not reach client"))

	if rec.Code != 200 {
		t.Errorf("underlying status = %d, want untouched (200 default)", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("underlying body = %q, want empty", rec.Body.String())
	}
	if s.StatusCode() != 304 {
		t.Errorf("StatusCode() = %d, want 304", s.StatusCode())
	}
	if string(s.Body()) != "should not reach client" {
		t.Errorf("saved body = %q", s.Body())
	}
}

func TestResponseSaverStatusFilterPassesOtherStatuses(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewResponseSaver(rec, 304)
	s.WriteHeader(200)
	s.Write([]byte("ok"))

	if rec.Code != 200 {
		t.Errorf("underlying status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("underlying body = %q, want %q", rec.Body.String(), "ok")
	}
}
