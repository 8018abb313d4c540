package main

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"go duration", "90s", 90 * time.Second, false},
		{"hours", "24h", 24 * time.Hour, false},
		{"days", "7d", 7 * 24 * time.Hour, false},
		{"padded", "  2m ", 2 * time.Minute, false},
		{"bad days", "xd", 0, true},
		{"garbage", "soon", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseDuration(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseDuration(%q) = %v, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDuration(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeWSURL(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		pin     string
		want    string
		wantErr bool
	}{
		{"ws kept", "ws://127.0.0.1:9000", "", "ws://127.0.0.1:9000/ws", false},
		{"http upgraded", "http://example.com:8080/foo", "1234", "wss://example.com:8080/ws?pin=1234", false},
		{"wss with path", "wss://example.com/signal", "42", "wss://example.com/ws?pin=42", false},
		{"no host", "not a url", "", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeWSURL(tc.raw, tc.pin)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("normalizeWSURL(%q) = %q, want error", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeWSURL(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("normalizeWSURL(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
