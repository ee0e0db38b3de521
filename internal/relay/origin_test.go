package relay

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeOrigin(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://localhost:8080", "http://localhost:8080", true},
		{"HTTP://LocalHost:8080", "http://localhost:8080", true},
		{"https://example.com", "https://example.com", true},
		{"example.com", "", false},
		{"://broken", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := normalizeOrigin(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("normalizeOrigin(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeOriginsWildcard(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{"*", "http://a.example"})
	if !allowAll {
		t.Error("wildcard origin not detected")
	}
	if len(normalized) != 1 || normalized[0] != "http://a.example" {
		t.Errorf("unexpected normalized origins: %v", normalized)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })
	SetConfig(&Config{AllowedOrigins: []string{"http://allowed.example"}})

	allowed := httptest.NewRequest("GET", "/ws", nil)
	allowed.Header.Set("Origin", "http://allowed.example")
	if !isOriginAllowed(allowed) {
		t.Error("configured origin rejected")
	}

	blocked := httptest.NewRequest("GET", "/ws", nil)
	blocked.Header.Set("Origin", "http://evil.example")
	if isOriginAllowed(blocked) {
		t.Error("unknown origin accepted")
	}

	missing := httptest.NewRequest("GET", "/ws", nil)
	if isOriginAllowed(missing) {
		t.Error("request without origin header accepted")
	}
}
