package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"sayit/api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var speechTemplate = template.Must(template.New("speech.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/speech.html"))

// TemplateData holds data for speech template rendering
type TemplateData struct {
	Title       string
	Filename    string
	GeneratedAt time.Time
	Sections    []TemplateSection
}

// TemplateSection holds one rendered section.
type TemplateSection struct {
	ID          int64
	SpeakerName string
	// Section content is sanitized HTML produced at ingest time.
	ContentHTML template.HTML
}

func newTemplateData(title, filename string, sections []store.SectionDetail, now time.Time) TemplateData {
	data := TemplateData{
		Title:       title,
		Filename:    filename,
		GeneratedAt: now,
		Sections:    make([]TemplateSection, 0, len(sections)),
	}
	for _, section := range sections {
		name := section.SpeakerName
		if name == "" {
			name = section.Speaker
		}
		data.Sections = append(data.Sections, TemplateSection{
			ID:          section.ID,
			SpeakerName: name,
			ContentHTML: template.HTML(section.Content),
		})
	}
	return data
}

// RenderSpeechHTML renders the speech template with provided data
func RenderSpeechHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := speechTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
