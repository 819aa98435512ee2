// Package security holds the stateless request-policy predicates the HTTP
// front door applies before any request reaches the agent bridge: origin
// and CORS checks, API-key authorization, content-type validation, and the
// bind-host safety rule enforced at startup.
package security

import (
	"fmt"
	"net/url"
	"strings"
)

// CanonicalOrigin parses a URL-like string and returns the lower-cased
// "scheme://host:port" form. It reports false when the value does not parse,
// the scheme is not http or https, or the host is missing.
func CanonicalOrigin(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if parsed.Host == "" {
		return "", false
	}
	return scheme + "://" + strings.ToLower(parsed.Host), true
}

// IsLoopbackHost reports whether host refers to the local machine.
func IsLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "127.0.0.1", "localhost", "::1", "[::1]":
		return true
	}
	return false
}

// ValidateBindSecurity rejects startup when the server would bind a
// reachable network interface without any API key configured. This is a
// hard failure, not a warning.
func ValidateBindSecurity(host, apiKey string) error {
	if IsLoopbackHost(host) {
		return nil
	}
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("an API key (server.api_key or ZCLAW_WEB_API_KEY) is required when binding the relay to non-loopback host %q", host)
	}
	return nil
}

// IsPostOriginAllowed decides whether a mutating request's Origin header is
// acceptable. An absent origin is allowed (non-browser clients omit it).
// When a CORS origin is configured, the request origin must canonically
// match it; otherwise the origin must match "http://" + the request's Host
// header (same-origin default).
func IsPostOriginAllowed(origin, hostHeader, corsOrigin string) bool {
	if origin == "" {
		return true
	}

	requestOrigin, ok := CanonicalOrigin(origin)
	if !ok {
		return false
	}

	if corsOrigin != "" {
		allowed, ok := CanonicalOrigin(corsOrigin)
		if !ok {
			return false
		}
		return requestOrigin == allowed
	}

	if hostHeader == "" {
		return false
	}
	hostOrigin, ok := CanonicalOrigin("http://" + strings.TrimSpace(hostHeader))
	if !ok {
		return false
	}
	return requestOrigin == hostOrigin
}

// IsCORSOriginAllowed reports whether Access-Control-Allow-Origin should be
// echoed for the given request origin. It is false unless a CORS origin is
// configured and canonically equals the request origin.
func IsCORSOriginAllowed(origin, corsOrigin string) bool {
	if origin == "" || corsOrigin == "" {
		return false
	}
	requestOrigin, ok := CanonicalOrigin(origin)
	if !ok {
		return false
	}
	allowed, ok := CanonicalOrigin(corsOrigin)
	if !ok {
		return false
	}
	return requestOrigin == allowed
}

// IsRequestAuthorized reports whether the provided key satisfies the
// configured one. An empty expected key disables authentication.
func IsRequestAuthorized(providedKey, expectedKey string) bool {
	if expectedKey == "" {
		return true
	}
	if providedKey == "" {
		return false
	}
	return providedKey == expectedKey
}

// IsJSONContentType reports whether the Content-Type header names
// application/json, ignoring any parameters after ";".
func IsJSONContentType(header string) bool {
	if header == "" {
		return false
	}
	mimeType, _, _ := strings.Cut(header, ";")
	return strings.EqualFold(strings.TrimSpace(mimeType), "application/json")
}
