package rfc7233

import (
	"math"
	"reflect"
	"testing"
)

func TestParseRangeHeaderBoundaryCases(t *testing.T) {
	cases := []struct {
		name   string
		value  string
		limit  int
		want   []RawRange
	}{
		{"single", "bytes=1-2", -1, []RawRange{NewRawRange(1, 2)}},
		{"suffix", "bytes=-500", -1, []RawRange{NewSuffixRange(500)}},
		{"open-ended", "bytes=500-", -1, []RawRange{{First: sentinelFirst, Last: 500}}},
		{"four ranges", "bytes=10-20,30-40,50-50,-1", -1, []RawRange{
			NewRawRange(10, 20), NewRawRange(30, 40), NewRawRange(50, 50), NewSuffixRange(1),
		}},
		{"last is sentinel but allowed", "bytes=18446744073709551614-18446744073709551615", -1,
			[]RawRange{NewRawRange(math.MaxUint64-1, math.MaxUint64)}},
		{"first is sentinel, rejected", "bytes=18446744073709551615-18446744073709551616", -1, nil},
		{"trailing garbage", "bytes=1-2,3-4,a", -1, nil},
		{"extra dash", "bytes=1-2-3", -1, nil},
		{"no digits before dash", "bytes=a-", -1, nil},
		{"double leading dash", "bytes=--2", -1, nil},
		{"double trailing dash", "bytes=2--", -1, nil},
		{"no prefix", "1-2", -1, nil},
		{"empty after prefix", "bytes=", -1, nil},
		{"trailing comma", "bytes=1-2,", -1, nil},
		{"explicit limit exceeded", "bytes=1-2,3-4,5-6", 1, nil},
		{"explicit limit zero", "bytes=1-2", 0, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ParseRangeHeader("GET", []string{c.value}, c.limit)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("ParseRangeHeader(%q, limit=%d) = %#v, want %#v", c.value, c.limit, got, c.want)
			}
		})
	}
}

func TestParseRangeHeaderNonGetMethod(t *testing.T) {
	if got := ParseRangeHeader("POST", []string{"bytes=1-2"}, -1); got != nil {
		t.Errorf("ParseRangeHeader(POST) = %#v, want nil", got)
	}
}

func TestParseRangeHeaderMultipleHeaders(t *testing.T) {
	if got := ParseRangeHeader("GET", []string{"bytes=1-2", "bytes=3-4"}, -1); got != nil {
		t.Errorf("ParseRangeHeader(multiple) = %#v, want nil", got)
	}
}

func TestParseRangeHeaderLengthCap(t *testing.T) {
	long := "bytes=" + stringsRepeat("1,", 60)
	if got := ParseRangeHeader("GET", []string{long}, -1); got != nil {
		t.Errorf("expected rejection of over-long header, got %#v", got)
	}
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestAdjust(t *testing.T) {
	cases := []struct {
		name       string
		r          RawRange
		bodyLength uint64
		want       AdjustedRange
		ok         bool
	}{
		{"suffix within body", NewSuffixRange(2), 3, AdjustedRange{1, 2}, true},
		{"suffix larger than body", NewSuffixRange(100), 3, AdjustedRange{0, 2}, true},
		{"suffix zero", NewSuffixRange(0), 3, AdjustedRange{}, false},
		{"open-ended within body", RawRange{First: sentinelFirst, Last: 1}, 3, AdjustedRange{1, 2}, true},
		{"concrete range clipped", NewRawRange(0, 10), 3, AdjustedRange{0, 2}, true},
		{"unsatisfiable", NewRawRange(123, 200), 3, AdjustedRange{}, false},
		{"empty body", NewRawRange(0, 0), 0, AdjustedRange{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := Adjust(c.r, c.bodyLength)
			if ok != c.ok || (ok && got != c.want) {
				t.Errorf("Adjust(%#v, %d) = (%#v, %v), want (%#v, %v)", c.r, c.bodyLength, got, ok, c.want, c.ok)
			}
		})
	}
}

func TestAdjustedRangeLength(t *testing.T) {
	r := AdjustedRange{FirstBytePos: 1, LastBytePos: 2}
	if got := r.Length(); got != 2 {
		t.Errorf("Length() = %d, want 2", got)
	}
}
