package store

import "time"

type Speech struct {
	Filename    string    `json:"filename"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SpeechSummary struct {
	Speech
	SectionCount int      `json:"section_count"`
	Speakers     []string `json:"speakers"`
}

type Speaker struct {
	RoutePathname string `json:"route_pathname"`
	Name          string `json:"name"`
	PhotoURL      string `json:"photo_url,omitempty"`
}

// Section is one transcript paragraph. Previous and Next link the sections of
// a speech into a doubly linked list; Speaker is empty for narration.
type Section struct {
	ID       int64  `json:"section_id"`
	Filename string `json:"filename"`
	Previous *int64 `json:"previous_section_id"`
	Next     *int64 `json:"next_section_id"`
	Speaker  string `json:"section_speaker,omitempty"`
	Content  string `json:"section_content"`
}

// SectionDetail is a section joined with the names used to display it.
type SectionDetail struct {
	Section
	SpeakerName string `json:"name,omitempty"`
	DisplayName string `json:"display_name"`
}

// CommitInfo describes one archived revision of a transcript.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
}

// TopLevelLimit bounds IDs handed out by the global sequence. Larger IDs are
// always derived from an anchor.
const TopLevelLimit = 10_000_000

func Int64Ptr(v int64) *int64 {
	return &v
}
