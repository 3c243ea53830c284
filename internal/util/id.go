package util

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxFilenameRunes caps the length of a speech filename.
const MaxFilenameRunes = 50

// TransformFilename turns an uploaded file name into the speech filename:
// lower-cased, "-ai-" collapsed to "ai-", a trailing ".md" removed and the
// result capped at MaxFilenameRunes.
func TransformFilename(input string) string {
	name := strings.ToLower(strings.TrimSpace(input))
	name = strings.ReplaceAll(name, "-ai-", "ai-")
	name = strings.TrimSuffix(name, ".md")
	if utf8.RuneCountInString(name) <= MaxFilenameRunes {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxFilenameRunes])
}

// ParseSectionID reports whether key names a single section rather than a
// speech. Section keys are all digits.
func ParseSectionID(key string) (int64, bool) {
	if key == "" || strings.TrimLeft(key, "0123456789") != "" {
		return 0, false
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
