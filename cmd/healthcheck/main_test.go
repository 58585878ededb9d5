package main

import "testing"

func TestURLForAddr(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"", "http://localhost:8080/healthz"},
		{":9090", "http://localhost:9090/healthz"},
		{"0.0.0.0:8080", "http://0.0.0.0:8080/healthz"},
	}
	for _, tt := range tests {
		if got := urlForAddr(tt.addr); got != tt.want {
			t.Errorf("urlForAddr(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestHealthURLOverride(t *testing.T) {
	t.Setenv("HEALTHCHECK_URL", "http://dash:8080/healthz")
	if got := healthURL(); got != "http://dash:8080/healthz" {
		t.Errorf("healthURL() = %q", got)
	}
}
