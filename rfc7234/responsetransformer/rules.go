// Package responsetransformer applies operator-configured Cache-Control
// overrides to upstream responses before the cacheability check. It is
// the YAML-configured counterpart of the teacher's
// pkg/response-transformer, adapted to this filter's narrower response
// model (status code + header, rather than a full *http.Response).
package responsetransformer

import "net/http"

// Rule overrides or defaults the Cache-Control header (and optionally
// sets other response headers) for upstream responses matching a path
// prefix and/or exact path and method.
type Rule struct {
	// Prefix matches any request path starting with this value. Ignored
	// if empty.
	Prefix string `yaml:"prefix"`
	// Path matches an exact request path. Ignored if empty.
	Path string `yaml:"path"`
	// Method restricts the rule to one request method. Defaults to GET
	// when empty, since only GET responses are ever candidates for
	// caching.
	Method string `yaml:"method"`
	// Default sets Cache-Control only if the upstream response didn't
	// already send one.
	Default string `yaml:"default"`
	// Override unconditionally replaces Cache-Control.
	Override string `yaml:"override"`
	// Headers sets additional response headers verbatim.
	Headers map[string]string `yaml:"headers"`
}

// Rules is an ordered list of Rule; the first match wins.
type Rules []Rule

// Apply finds the first rule matching (method, path) and applies it to
// header. It is a no-op if no rule matches or statusCode is not 200.
func (rs Rules) Apply(method, path string, statusCode int, header http.Header) {
	if statusCode != http.StatusOK {
		return
	}
	rule, ok := rs.find(method, path)
	if !ok {
		return
	}
	switch {
	case rule.Override != "":
		header.Set("Cache-Control", rule.Override)
	case rule.Default != "" && header.Get("Cache-Control") == "":
		header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		header.Set(name, value)
	}
}

func (rs Rules) find(method, path string) (Rule, bool) {
	for _, rule := range rs {
		wantMethod := rule.Method
		if wantMethod == "" {
			wantMethod = http.MethodGet
		}
		if wantMethod != method {
			continue
		}
		if rule.Path != "" && rule.Path != path {
			continue
		}
		if rule.Prefix != "" && !hasPrefix(path, rule.Prefix) {
			continue
		}
		return rule, true
	}
	return Rule{}, false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
