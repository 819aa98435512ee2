package security_test

import (
	"testing"

	"zrelay/internal/security"
)

func TestCanonicalOrigin(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"simple http", "http://example.com", "http://example.com", true},
		{"uppercase host", "HTTP://EXAMPLE.COM", "http://example.com", true},
		{"with port", "https://example.com:8443", "https://example.com:8443", true},
		{"trailing path dropped", "http://example.com/chat", "http://example.com", true},
		{"whitespace trimmed", "  http://example.com  ", "http://example.com", true},
		{"empty", "", "", false},
		{"no scheme", "example.com", "", false},
		{"ftp scheme", "ftp://example.com", "", false},
		{"scheme only", "http://", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := security.CanonicalOrigin(tc.input)
			if ok != tc.ok {
				t.Fatalf("CanonicalOrigin(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("CanonicalOrigin(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestValidateBindSecurity(t *testing.T) {
	cases := []struct {
		name    string
		host    string
		apiKey  string
		wantErr bool
	}{
		{"loopback no key", "127.0.0.1", "", false},
		{"localhost no key", "localhost", "", false},
		{"ipv6 loopback no key", "::1", "", false},
		{"bracketed ipv6 loopback", "[::1]", "", false},
		{"lan no key", "0.0.0.0", "", true},
		{"lan with key", "0.0.0.0", "secret", false},
		{"hostname no key", "relay.local", "", true},
		{"whitespace key still empty", "0.0.0.0", "   ", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := security.ValidateBindSecurity(tc.host, tc.apiKey)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateBindSecurity(%q, %q) err = %v, wantErr %v", tc.host, tc.apiKey, err, tc.wantErr)
			}
		})
	}
}

func TestIsPostOriginAllowed(t *testing.T) {
	cases := []struct {
		name       string
		origin     string
		hostHeader string
		corsOrigin string
		want       bool
	}{
		{"absent origin allowed", "", "localhost:8787", "", true},
		{"same origin", "http://localhost:8787", "localhost:8787", "", true},
		{"same origin case insensitive", "http://LOCALHOST:8787", "localhost:8787", "", true},
		{"cross origin without cors", "http://evil.test", "localhost:8787", "", false},
		{"configured cors match", "https://chat.example.com", "localhost:8787", "https://chat.example.com", true},
		{"configured cors mismatch", "https://other.example.com", "localhost:8787", "https://chat.example.com", false},
		{"configured cors overrides same origin", "http://localhost:8787", "localhost:8787", "https://chat.example.com", false},
		{"unparseable origin", "not a url", "localhost:8787", "", false},
		{"missing host header", "http://localhost:8787", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := security.IsPostOriginAllowed(tc.origin, tc.hostHeader, tc.corsOrigin)
			if got != tc.want {
				t.Fatalf("IsPostOriginAllowed(%q, %q, %q) = %v, want %v",
					tc.origin, tc.hostHeader, tc.corsOrigin, got, tc.want)
			}
		})
	}
}

func TestIsCORSOriginAllowed(t *testing.T) {
	cases := []struct {
		name       string
		origin     string
		corsOrigin string
		want       bool
	}{
		{"no cors configured", "http://localhost:8787", "", false},
		{"no origin header", "", "https://chat.example.com", false},
		{"match", "https://chat.example.com", "https://chat.example.com", true},
		{"case insensitive match", "https://CHAT.example.com", "https://chat.example.com", true},
		{"mismatch", "https://other.example.com", "https://chat.example.com", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := security.IsCORSOriginAllowed(tc.origin, tc.corsOrigin)
			if got != tc.want {
				t.Fatalf("IsCORSOriginAllowed(%q, %q) = %v, want %v", tc.origin, tc.corsOrigin, got, tc.want)
			}
		})
	}
}

func TestIsRequestAuthorized(t *testing.T) {
	cases := []struct {
		name     string
		provided string
		expected string
		want     bool
	}{
		{"auth disabled", "anything", "", true},
		{"auth disabled empty provided", "", "", true},
		{"match", "secret", "secret", true},
		{"mismatch", "wrong", "secret", false},
		{"missing key", "", "secret", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := security.IsRequestAuthorized(tc.provided, tc.expected)
			if got != tc.want {
				t.Fatalf("IsRequestAuthorized(%q, %q) = %v, want %v", tc.provided, tc.expected, got, tc.want)
			}
		})
	}
}

func TestIsJSONContentType(t *testing.T) {
	cases := []struct {
		header string
		want   bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"APPLICATION/JSON", true},
		{"text/plain", false},
		{"", false},
		{"application/json-patch+json", false},
	}

	for _, tc := range cases {
		if got := security.IsJSONContentType(tc.header); got != tc.want {
			t.Fatalf("IsJSONContentType(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}
