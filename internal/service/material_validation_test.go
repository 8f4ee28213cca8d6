package service

import (
	"strings"
	"testing"
)

func TestCleanURL(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", maxMaterialURLLength)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"invalid_scheme", "ftp://example.com/notes.pdf", ""},
		{"javascript", "javascript:alert(1)", ""},
		{"missing_host", "https://", ""},
		{"relative", "/courses/algebra", ""},
		{"too_long", long, ""},
		{"trimmed", "  https://www.khanacademy.org/math  ", "https://www.khanacademy.org/math"},
		{"http", "http://example.com/path?q=1", "http://example.com/path?q=1"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := cleanURL(test.raw); got != test.want {
				t.Fatalf("cleanURL(%q) = %q, want %q", test.raw, got, test.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"recommendations":[]}`, `{"recommendations":[]}`},
		{"json fence", "```json\n{\"recommendations\":[]}\n```", `{"recommendations":[]}`},
		{"bare fence", "```\n{}\n```", `{}`},
		{"surrounding space", "  {}  ", `{}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := stripCodeFence(test.in); got != test.want {
				t.Fatalf("stripCodeFence(%q) = %q, want %q", test.in, got, test.want)
			}
		})
	}
}
