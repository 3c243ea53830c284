package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTransformFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "2025-Press-Briefing.md", want: "2025-press-briefing"},
		{in: "gov-ai-forum.md", want: "govai-forum"},
		{in: "  notes.md.md ", want: "notes.md"},
		{in: "plain", want: "plain"},
	}
	for _, tt := range tests {
		if got := TransformFilename(tt.in); got != tt.want {
			t.Errorf("TransformFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTransformFilenameCapsRunes(t *testing.T) {
	long := strings.Repeat("數", 80) + ".md"
	got := TransformFilename(long)
	if utf8.RuneCountInString(got) != MaxFilenameRunes {
		t.Fatalf("expected %d runes, got %d", MaxFilenameRunes, utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("cap must not split a rune")
	}
}

func TestParseSectionID(t *testing.T) {
	if id, ok := ParseSectionID("2701"); !ok || id != 2701 {
		t.Fatalf("expected 2701, got %d %v", id, ok)
	}
	for _, key := range []string{"", "0", "talk", "12a", "-3"} {
		if _, ok := ParseSectionID(key); ok {
			t.Errorf("%q should not parse as a section id", key)
		}
	}
}
