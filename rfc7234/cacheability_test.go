package rfc7234

import (
	"net/http"
	"testing"
)

func TestIsCacheableMethod(t *testing.T) {
	if !IsCacheableMethod("GET") {
		t.Error("GET should be cacheable")
	}
	for _, m := range []string{"POST", "PUT", "DELETE", "HEAD"} {
		if IsCacheableMethod(m) {
			t.Errorf("%s should not be cacheable", m)
		}
	}
}

func TestIsCacheableResponse(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		cc         string
		want       bool
	}{
		{"200 no directives", 200, "", true},
		{"200 no-store", 200, "no-store", false},
		{"200 private", 200, "private", false},
		{"200 public max-age", 200, "public, max-age=60", true},
		{"404", 404, "", false},
		{"301", 301, "", false},
	}
	for _, c := range cases {
		h := http.Header{}
		if c.cc != "" {
			h.Set("Cache-Control", c.cc)
		}
		if got := IsCacheableResponse(c.statusCode, h); got != c.want {
			t.Errorf("%s: IsCacheableResponse = %v, want %v", c.name, got, c.want)
		}
	}
}
