package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rendererFunc func(string) (string, error)

func (f rendererFunc) Render(markdown string) (string, error) {
	return f(markdown)
}

func TestGoldmarkRenderer(t *testing.T) {
	html, err := NewGoldmarkRenderer().Render("Hello **world** and ~~gone~~")
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello <strong>world</strong> and <del>gone</del></p>\n", html)
}

func TestNormalizeStripsScripts(t *testing.T) {
	paragraphs := []Paragraph{
		{Markdown: "Before <script>alert('x')</script> after", Speaker: "Alice", SpeakerName: "Alice"},
		{Markdown: "<script src=\"evil.js\"></script>"},
		{Markdown: "plain"},
	}
	out, err := Normalize(NewGoldmarkRenderer(), paragraphs)
	require.NoError(t, err)

	require.Len(t, out, 2, "a paragraph that was only a script renders to nothing")
	assert.NotContains(t, out[0].Content, "script")
	assert.NotContains(t, out[0].Content, "alert")
	assert.Contains(t, out[0].Content, "Before")
	assert.Contains(t, out[0].Content, "after")
	assert.Equal(t, "Alice", out[0].Speaker)
	assert.Equal(t, "<p>plain</p>", out[1].Content)
}

func TestNormalizeDropsEmptyParagraphs(t *testing.T) {
	out, err := Normalize(NewGoldmarkRenderer(), []Paragraph{
		{Markdown: "[ref]: https://example.com"},
		{Markdown: "kept"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "<p>kept</p>", out[0].Content)
}

func TestNormalizePropagatesRendererErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Normalize(rendererFunc(func(string) (string, error) { return "", boom }), []Paragraph{{Markdown: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestStripScriptsLeavesCleanInputUntouched(t *testing.T) {
	out, err := StripScripts("  <p>a &amp; b</p>\n")
	require.NoError(t, err)
	assert.Equal(t, "<p>a &amp; b</p>", out)

	out, err = StripScripts("<div><SCRIPT>x()</SCRIPT><p>kept</p></div>")
	require.NoError(t, err)
	assert.Equal(t, "<div><p>kept</p></div>", out)
}
