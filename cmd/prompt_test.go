package cmd

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"photo.jpg", "photo.jpg"},
		{`"C:\Users\me\photo.jpg"`, `C:\Users\me\photo.jpg`},
		{`  "/tmp/with space.jpg"  `, "/tmp/with space.jpg"},
		{"/tmp/a.jpg\r\n", "/tmp/a.jpg"},
		{`""`, ""},
		{"", ""},
	}

	for _, tc := range tests {
		if got := cleanPath(tc.input); got != tc.expected {
			t.Errorf("cleanPath(%q) = %q; want %q", tc.input, got, tc.expected)
		}
	}
}

func TestPromptLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\"/tmp/a.jpg\"\n/tmp/b.jpg"))
	var out bytes.Buffer

	first, err := promptLine(r, &out, "First image path: ")
	if err != nil {
		t.Fatalf("promptLine failed: %v", err)
	}
	// Last line without a newline is still accepted.
	second, err := promptLine(r, &out, "Second image path: ")
	if err != nil {
		t.Fatalf("promptLine failed: %v", err)
	}

	if first != "/tmp/a.jpg" || second != "/tmp/b.jpg" {
		t.Errorf("unexpected paths %q %q", first, second)
	}
	if out.String() != "First image path: Second image path: " {
		t.Errorf("unexpected prompts %q", out.String())
	}

	if _, err := promptLine(r, &out, "Third: "); err == nil {
		t.Error("expected error at end of input")
	}
}
