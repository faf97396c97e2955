// Package rewrite maps front-end API paths onto the backend endpoint.
package rewrite

import (
	"fmt"
	"net/url"
	"strings"
)

// Prefix is the path prefix that is forwarded to the backend.
const Prefix = "/api/"

// ParseBackend parses and checks a backend endpoint URL.
func ParseBackend(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse backend endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend endpoint %q: missing host", endpoint)
	}
	return u, nil
}

// Matches reports whether path is forwarded to the backend.
func Matches(path string) bool {
	return strings.HasPrefix(path, Prefix)
}

// Target rewrites /api/<rest> to <backend>/<rest>, keeping the query. The
// remainder is taken from the escaped path so encoded characters such as
// %2F reach the backend unchanged. ok is false for paths outside the
// prefix, which are left alone.
func Target(backend, in *url.URL) (out *url.URL, ok bool) {
	escaped := in.EscapedPath()
	if !Matches(escaped) {
		return nil, false
	}
	rawPath := strings.TrimSuffix(backend.EscapedPath(), "/") + "/" + strings.TrimPrefix(escaped, Prefix)
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, false
	}

	target := *backend
	target.Path = path
	target.RawPath = rawPath
	target.RawQuery = in.RawQuery
	target.Fragment = ""
	return &target, true
}
