package export

import (
	"regexp"
	"strings"

	"sayit/api/internal/store"
)

const personHrefPrefix = "/ontology/person/13657c62c311/"

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Bare ampersands only; existing entities stay intact.
var bareAmp = regexp.MustCompile(`&(amp;|lt;|gt;|quot;|apos;|#)?`)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

func escapeAmp(s string) string {
	return bareAmp.ReplaceAllStringFunc(s, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})
}

func speakerRef(section store.SectionDetail) (id, showAs string) {
	id = section.Speaker
	if id == "" {
		id = "unknown"
	}
	showAs = section.SpeakerName
	if showAs == "" {
		showAs = section.Speaker
	}
	if showAs == "" {
		showAs = "Unknown"
	}
	return id, showAs
}

// Content that already looks like markup is embedded as is.
func speechBody(content string) string {
	if strings.HasPrefix(strings.TrimSpace(content), "<") {
		return escapeAmp(content)
	}
	return "<p>" + escapeXML(content) + "</p>"
}

func writePerson(b *strings.Builder, id, showAs string) {
	b.WriteString(`        <TLCPerson href="` + personHrefPrefix + escapeXML(id) + `" id="` + escapeXML(id) + `" showAs="` + escapeXML(showAs) + "\"/>\n")
}

// SpeechAN renders an ordered speech as an Akoma Ntoso debate. An empty
// section list renders as an empty string.
func SpeechAN(sections []store.SectionDetail) string {
	if len(sections) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<akomaNtoso>\n  <debate>\n    <meta>\n      <references>\n")
	seen := make(map[string]struct{})
	for _, section := range sections {
		id, showAs := speakerRef(section)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		writePerson(&b, id, showAs)
	}
	b.WriteString("      </references>\n    </meta>\n    <debateBody>\n      <debateSection>\n")
	b.WriteString("        <heading>" + escapeXML(sections[0].DisplayName) + "</heading>\n")
	for _, section := range sections {
		id, _ := speakerRef(section)
		b.WriteString(`        <speech by="#` + escapeXML(id) + "\">\n")
		b.WriteString("          " + speechBody(section.Content) + "\n")
		b.WriteString("        </speech>\n")
	}
	b.WriteString("      </debateSection>\n    </debateBody>\n  </debate>\n</akomaNtoso>\n")
	return b.String()
}

// SectionAN renders one section as a single speech debate.
func SectionAN(section store.SectionDetail) string {
	return SpeechAN([]store.SectionDetail{section})
}

var (
	anHeading   = regexp.MustCompile(`<heading>([\s\S]*?)</heading>`)
	anPerson    = regexp.MustCompile(`<TLCPerson[^>]*/>`)
	anPersonID  = regexp.MustCompile(`\bid="([^"]*)"`)
	anShowAs    = regexp.MustCompile(`\bshowAs="([^"]*)"`)
	anSpeech    = regexp.MustCompile(`(?i)<speech\s[^>]*by="#([^"]*)"[^>]*>([\s\S]*?)</speech>`)
	anParagraph = regexp.MustCompile(`(?i)<p[^>]*>`)
	anCloseP    = regexp.MustCompile(`(?i)</p>`)
	anBreak     = regexp.MustCompile(`(?i)<br\s*/?>`)
	anTag       = regexp.MustCompile(`<[^>]+>`)
)

var entityDecoder = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

// ANToMarkdown converts an Akoma Ntoso debate back into a transcript with
// "### Speaker: " markers, one block per speech element.
func ANToMarkdown(an string) string {
	heading := ""
	if m := anHeading.FindStringSubmatch(an); m != nil {
		heading = strings.TrimSpace(entityDecoder.Replace(anTag.ReplaceAllString(m[1], "")))
	}

	persons := make(map[string]string)
	for _, tag := range anPerson.FindAllString(an, -1) {
		id := anPersonID.FindStringSubmatch(tag)
		showAs := anShowAs.FindStringSubmatch(tag)
		if id != nil && showAs != nil {
			persons[id[1]] = entityDecoder.Replace(showAs[1])
		}
	}

	var blocks []string
	for _, m := range anSpeech.FindAllStringSubmatch(an, -1) {
		name, ok := persons[m[1]]
		if !ok {
			name = m[1]
		}
		var paragraphs []string
		for _, raw := range anParagraph.Split(m[2], -1) {
			p := anCloseP.ReplaceAllString(raw, "")
			p = anBreak.ReplaceAllString(p, "\n")
			p = strings.TrimSpace(entityDecoder.Replace(anTag.ReplaceAllString(p, "")))
			if p != "" {
				paragraphs = append(paragraphs, p)
			}
		}
		if len(paragraphs) == 0 {
			continue
		}
		blocks = append(blocks, "### "+name+": \n\n"+strings.Join(paragraphs, "\n\n"))
	}

	var b strings.Builder
	if heading != "" {
		b.WriteString("# " + heading + "\n\n")
	}
	b.WriteString(strings.Join(blocks, "\n\n"))
	return b.String()
}
