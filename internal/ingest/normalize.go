package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Renderer converts one paragraph of Markdown to HTML.
type Renderer interface {
	Render(markdown string) (string, error)
}

// GoldmarkRenderer is the default Renderer. Raw HTML in transcripts is kept;
// Normalize removes script elements afterwards.
type GoldmarkRenderer struct {
	md goldmark.Markdown
}

func NewGoldmarkRenderer() *GoldmarkRenderer {
	return &GoldmarkRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.Strikethrough,
				extension.Table,
			),
			goldmark.WithRendererOptions(
				gmhtml.WithUnsafe(),
			),
		),
	}
}

func (r *GoldmarkRenderer) Render(markdown string) (string, error) {
	var out bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// Rendered is a paragraph whose content is final, sanitized HTML.
type Rendered struct {
	Speaker     string
	SpeakerName string
	Content     string
}

func (r Rendered) key() Key {
	return Key{Speaker: r.Speaker, Content: r.Content}
}

// Normalize renders every paragraph and strips script elements. Paragraphs
// that render to nothing, such as bare link reference definitions, are
// dropped.
func Normalize(renderer Renderer, paragraphs []Paragraph) ([]Rendered, error) {
	out := make([]Rendered, 0, len(paragraphs))
	for i, p := range paragraphs {
		html, err := renderer.Render(p.Markdown)
		if err != nil {
			return nil, fmt.Errorf("render paragraph %d: %w", i, err)
		}
		content, err := StripScripts(html)
		if err != nil {
			return nil, fmt.Errorf("sanitize paragraph %d: %w", i, err)
		}
		if content == "" {
			continue
		}
		out = append(out, Rendered{
			Speaker:     p.Speaker,
			SpeakerName: p.SpeakerName,
			Content:     content,
		})
	}
	return out, nil
}

// StripScripts removes every <script> element with its body. Input without a
// script tag is only trimmed, so ordinary output keeps its exact bytes.
func StripScripts(input string) (string, error) {
	if !strings.Contains(strings.ToLower(input), "<script") {
		return strings.TrimSpace(input), nil
	}
	ctx := &xhtml.Node{Type: xhtml.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := xhtml.ParseFragment(strings.NewReader(input), ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, n := range nodes {
		if isScript(n) {
			continue
		}
		removeScripts(n)
		if err := xhtml.Render(&b, n); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func removeScripts(n *xhtml.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isScript(c) {
			n.RemoveChild(c)
		} else {
			removeScripts(c)
		}
		c = next
	}
}

func isScript(n *xhtml.Node) bool {
	return n.Type == xhtml.ElementNode && n.DataAtom == atom.Script
}
