package util

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	got := PlainText("<p>Hello <strong>world</strong> &amp; friends</p><p>Second</p>")
	want := "Hello world & friends\n\nSecond"
	if got != want {
		t.Fatalf("PlainText = %q, want %q", got, want)
	}
	if PlainText("") != "" {
		t.Fatal("empty input should give empty text")
	}
}

func TestHighlight(t *testing.T) {
	got := Highlight("Taiwan <b> digital TAIWAN", "taiwan")
	want := "<em>Taiwan</em> &lt;b&gt; digital <em>TAIWAN</em>"
	if got != want {
		t.Fatalf("Highlight = %q, want %q", got, want)
	}
	if Highlight("a < b", "  ") != "a &lt; b" {
		t.Fatal("blank query only escapes")
	}
}

func TestEncodeURIComponent(t *testing.T) {
	tests := map[string]string{
		"唐鳳-3":        "%E5%94%90%E9%B3%B3-3",
		"a b":         "a%20b",
		"it's (ok)!*": "it's%20(ok)!*",
		"a+b/c?":      "a%2Bb%2Fc%3F",
		"tilde~_.":    "tilde~_.",
	}
	for in, want := range tests {
		if got := EncodeURIComponent(in); got != want {
			t.Errorf("EncodeURIComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("short", "x", 10); got != "short" {
		t.Fatalf("short text is returned as is, got %q", got)
	}
	text := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa needle bbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	got := Snippet(text, "needle", 20)
	if !strings.HasPrefix(got, "…") {
		t.Fatalf("expected leading ellipsis, got %q", got)
	}
	if !strings.Contains(got, "needle") {
		t.Fatalf("snippet should contain the match, got %q", got)
	}
}
