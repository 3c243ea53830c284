package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeakerSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "aliased name", in: "唐鳳", want: "%E5%94%90%E9%B3%B3-3"},
		{name: "space encodes as %20", in: "Audrey Tang", want: "Audrey%20Tang"},
		{name: "reserved marks kept", in: "O'Brien (host)!", want: "O'Brien%20(host)!"},
		{name: "trailing colon trimmed", in: " Bob: ", want: "Bob"},
		{name: "plus is escaped", in: "A+B", want: "A%2BB"},
		{name: "empty name", in: "  ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SpeakerSlug(tt.in, DefaultAliases()))
		})
	}
}

func TestSpeakerSlugCustomAliases(t *testing.T) {
	aliases := Aliases{"Alex": "alex-2"}
	assert.Equal(t, "alex-2", SpeakerSlug("Alex", aliases))
	assert.Equal(t, "%E5%94%90%E9%B3%B3", SpeakerSlug("唐鳳", aliases))
}

func TestAttributeUsesNearestPrecedingMarker(t *testing.T) {
	seg := Segment("Narration before anyone speaks\n\n### Alice:\n\nHello\n\n> an aside\n\nStill Alice\n\n### Bob:\n\nBob here")
	paragraphs := Attribute(seg, DefaultAliases())

	require.Len(t, paragraphs, 5)
	assert.Empty(t, paragraphs[0].Speaker)
	assert.Equal(t, "Alice", paragraphs[1].Speaker)
	assert.Equal(t, "Alice", paragraphs[1].SpeakerName)
	assert.Empty(t, paragraphs[2].Speaker, "quoted paragraphs are never attributed")
	assert.True(t, paragraphs[2].FromQuote)
	assert.Equal(t, "Alice", paragraphs[3].Speaker)
	assert.Equal(t, "Bob", paragraphs[4].Speaker)
}

func TestAttributeEmptyMarkerName(t *testing.T) {
	seg := Segment("### Alice:\n\nHello\n\n### :\n\nNobody in particular")
	paragraphs := Attribute(seg, DefaultAliases())

	require.Len(t, paragraphs, 2)
	assert.Equal(t, "Alice", paragraphs[0].Speaker)
	assert.Empty(t, paragraphs[1].Speaker)
}
