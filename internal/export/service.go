package export

import (
	"context"
	"fmt"
	"time"

	"sayit/api/internal/ingest"
	"sayit/api/internal/store"
	"sayit/api/internal/util"
)

// DataStore is the read side of the section store needed for exports.
type DataStore interface {
	GetSpeech(ctx context.Context, filename string) (store.Speech, error)
	SpeechSections(ctx context.Context, filename string) ([]store.SectionDetail, error)
	GetSection(ctx context.Context, id int64) (store.SectionDetail, error)
}

// Service provides speech export functionality
type Service struct {
	store DataStore
	pdf   PDFPrinter
	now   func() time.Time
}

type Option func(*Service)

// WithPDFPrinter replaces headless Chrome.
func WithPDFPrinter(printer PDFPrinter) Option {
	return func(s *Service) { s.pdf = printer }
}

// NewService creates a new export service
func NewService(store DataStore, opts ...Option) *Service {
	s := &Service{store: store, pdf: ChromePDF, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export generates an export in the requested format. A key made only of
// digits addresses a single section; anything else is a speech filename.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	title, filename, sections, err := s.load(ctx, req.Key)
	if err != nil {
		return nil, err
	}

	base := sanitizeFilename(req.Key)
	switch req.Format {
	case FormatAN:
		return s.result(FormatAN, base, []byte(SpeechAN(sections))), nil
	case FormatMD:
		return s.result(FormatMD, base, []byte(ANToMarkdown(SpeechAN(sections)))), nil
	case FormatHTML, FormatPDF:
		html, err := RenderSpeechHTML(newTemplateData(title, filename, sections, s.now()))
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		if req.Format == FormatHTML {
			return s.result(FormatHTML, base, []byte(html)), nil
		}
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return s.result(FormatPDF, base, data), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func (s *Service) result(format Format, base string, data []byte) *Result {
	return &Result{
		Data:     data,
		Filename: base + "." + string(format),
		MimeType: format.MimeType(),
	}
}

func (s *Service) load(ctx context.Context, key string) (title, filename string, sections []store.SectionDetail, err error) {
	if id, ok := util.ParseSectionID(key); ok {
		section, err := s.store.GetSection(ctx, id)
		if err != nil {
			return "", "", nil, fmt.Errorf("%w: section %d: %v", ErrContentUnavailable, id, err)
		}
		return section.DisplayName, section.Filename, []store.SectionDetail{section}, nil
	}

	speech, err := s.store.GetSpeech(ctx, key)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: speech %s: %v", ErrContentUnavailable, key, err)
	}
	details, err := s.store.SpeechSections(ctx, key)
	if err != nil {
		return "", "", nil, fmt.Errorf("load sections: %w", err)
	}
	if len(details) == 0 {
		return "", "", nil, fmt.Errorf("%w: speech %s has no sections", ErrContentUnavailable, key)
	}
	return speech.DisplayName, speech.Filename, OrderDetails(details), nil
}

// OrderDetails puts section details into reading order by following their
// links.
func OrderDetails(details []store.SectionDetail) []store.SectionDetail {
	rows := make([]store.Section, len(details))
	byID := make(map[int64]store.SectionDetail, len(details))
	for i, d := range details {
		rows[i] = d.Section
		byID[d.ID] = d
	}
	ordered := ingest.NormalizeSections(rows)
	out := make([]store.SectionDetail, 0, len(ordered))
	for _, row := range ordered {
		out = append(out, byID[row.ID])
	}
	return out
}
