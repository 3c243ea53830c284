package cache

import (
	"strconv"
	"strings"
)

// Invalidation keys. Every cached representation is addressed by one of
// these, so writers can name what they touched without knowing which tiers
// hold a copy.
const (
	KeySpeechIndex  = "speech-index"
	KeySpeakerIndex = "speaker-index"

	speechPrefix  = "speech/"
	speakerPrefix = "speaker/"
	sectionPrefix = "section/"
)

func SpeechKey(filename string) string {
	return speechPrefix + filename
}

func SpeakerKey(slug string) string {
	return speakerPrefix + slug
}

func SectionKey(id int64) string {
	return sectionPrefix + strconv.FormatInt(id, 10)
}

// SpeechFromKey returns the filename of a speech key.
func SpeechFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, speechPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, speechPrefix), true
}

// SectionFromKey returns the section ID of a section key.
func SectionFromKey(key string) (int64, bool) {
	if !strings.HasPrefix(key, sectionPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(key, sectionPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
