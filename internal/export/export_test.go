package export

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"sayit/api/internal/store"
)

func detail(id int64, prev, next int64, speaker, name, content string) store.SectionDetail {
	d := store.SectionDetail{
		Section: store.Section{
			ID:       id,
			Filename: "budget-2024",
			Speaker:  speaker,
			Content:  content,
		},
		SpeakerName: name,
		DisplayName: "Budget & Policy",
	}
	if prev != 0 {
		d.Previous = store.Int64Ptr(prev)
	}
	if next != 0 {
		d.Next = store.Int64Ptr(next)
	}
	return d
}

type fakeStore struct {
	speech   store.Speech
	sections []store.SectionDetail
}

func (f *fakeStore) GetSpeech(_ context.Context, filename string) (store.Speech, error) {
	if filename != f.speech.Filename {
		return store.Speech{}, sql.ErrNoRows
	}
	return f.speech, nil
}

func (f *fakeStore) SpeechSections(_ context.Context, filename string) ([]store.SectionDetail, error) {
	if filename != f.speech.Filename {
		return nil, nil
	}
	return f.sections, nil
}

func (f *fakeStore) GetSection(_ context.Context, id int64) (store.SectionDetail, error) {
	for _, s := range f.sections {
		if s.ID == id {
			return s, nil
		}
	}
	return store.SectionDetail{}, sql.ErrNoRows
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		speech: store.Speech{Filename: "budget-2024", DisplayName: "Budget & Policy"},
		// Stored in ID order; 101 sits between 1 and 2.
		sections: []store.SectionDetail{
			detail(1, 0, 101, "%E5%94%90%E9%B3%B3-3", "唐鳳", "<p>Good morning.</p>"),
			detail(2, 101, 0, "", "", "<p>[applause]</p>"),
			detail(101, 1, 2, "bob", "Bob", "<p>Q&amp;A starts <em>now</em>.</p>"),
		},
	}
}

func TestSpeechAN(t *testing.T) {
	an := SpeechAN(OrderDetails(newFakeStore().sections))

	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<heading>Budget &amp; Policy</heading>`,
		`<TLCPerson href="/ontology/person/13657c62c311/%E5%94%90%E9%B3%B3-3" id="%E5%94%90%E9%B3%B3-3" showAs="唐鳳"/>`,
		`<TLCPerson href="/ontology/person/13657c62c311/unknown" id="unknown" showAs="Unknown"/>`,
		`<p>Q&amp;A starts <em>now</em>.</p>`,
	} {
		if !strings.Contains(an, want) {
			t.Fatalf("expected %q in:\n%s", want, an)
		}
	}
	if strings.Count(an, "<TLCPerson") != 3 {
		t.Fatalf("expected one person per speaker, got:\n%s", an)
	}
	first := strings.Index(an, `by="#%E5%94%90%E9%B3%B3-3"`)
	second := strings.Index(an, `by="#bob"`)
	third := strings.Index(an, `by="#unknown"`)
	if !(first < second && second < third) {
		t.Fatalf("speeches out of reading order:\n%s", an)
	}
	if SpeechAN(nil) != "" {
		t.Fatal("expected empty document for no sections")
	}
}

func TestSectionANEscapesPlainText(t *testing.T) {
	an := SectionAN(detail(7, 0, 0, "alice", "Alice", `Tom & "Jerry" <3`))
	if !strings.Contains(an, "<p>Tom &amp; &quot;Jerry&quot; &lt;3</p>") {
		t.Fatalf("plain text not escaped:\n%s", an)
	}
	if strings.Count(an, "<speech ") != 1 {
		t.Fatalf("expected a single speech:\n%s", an)
	}
}

func TestEscapeAmpKeepsEntities(t *testing.T) {
	got := escapeAmp("<p>a & b &amp; c &#39; d &lt;</p>")
	want := "<p>a &amp; b &amp; c &#39; d &lt;</p>"
	if got != want {
		t.Fatalf("escapeAmp() = %q, want %q", got, want)
	}
}

func TestANToMarkdown(t *testing.T) {
	an := SpeechAN(OrderDetails(newFakeStore().sections))
	md := ANToMarkdown(an)
	want := "# Budget & Policy\n\n" +
		"### 唐鳳: \n\nGood morning.\n\n" +
		"### Bob: \n\nQ&A starts now.\n\n" +
		"### Unknown: \n\n[applause]"
	if md != want {
		t.Fatalf("ANToMarkdown() =\n%q\nwant\n%q", md, want)
	}
}

func TestANToMarkdownSplitsParagraphsAndBreaks(t *testing.T) {
	an := `<TLCPerson id="a" showAs="Alice"/><heading></heading>` +
		`<speech by="#a"><p>one<br/>two</p><p>three</p></speech>` +
		`<speech by="#ghost"><p>boo</p></speech>` +
		`<speech by="#a"><p>  </p></speech>`
	md := ANToMarkdown(an)
	want := "### Alice: \n\none\ntwo\n\nthree\n\n### ghost: \n\nboo"
	if md != want {
		t.Fatalf("ANToMarkdown() = %q, want %q", md, want)
	}
}

func TestServiceExportFormats(t *testing.T) {
	var printed string
	svc := NewService(newFakeStore(), WithPDFPrinter(func(_ context.Context, html string) ([]byte, error) {
		printed = html
		return []byte("%PDF-1.7"), nil
	}))
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	an, err := svc.Export(ctx, Request{Key: "budget-2024", Format: FormatAN})
	if err != nil {
		t.Fatalf("Export(an) error = %v", err)
	}
	if an.Filename != "budget-2024.an" || an.MimeType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected an result %q %q", an.Filename, an.MimeType)
	}

	md, err := svc.Export(ctx, Request{Key: "budget-2024", Format: FormatMD})
	if err != nil {
		t.Fatalf("Export(md) error = %v", err)
	}
	if !strings.HasPrefix(string(md.Data), "# Budget & Policy\n\n### 唐鳳: ") {
		t.Fatalf("unexpected markdown %q", md.Data)
	}

	html, err := svc.Export(ctx, Request{Key: "budget-2024", Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export(html) error = %v", err)
	}
	body := string(html.Data)
	for _, want := range []string{"<title>Budget &amp; Policy</title>", `id="s101"`, "<em>now</em>", "2024-05-01", "3 sections"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in html:\n%s", want, body)
		}
	}

	pdf, err := svc.Export(ctx, Request{Key: "budget-2024", Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}
	if string(pdf.Data) != "%PDF-1.7" || pdf.MimeType != "application/pdf" || printed != body {
		t.Fatalf("unexpected pdf result %+v", pdf)
	}
}

func TestServiceExportSingleSection(t *testing.T) {
	svc := NewService(newFakeStore())
	res, err := svc.Export(context.Background(), Request{Key: "101", Format: FormatAN})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "101.an" {
		t.Fatalf("unexpected filename %q", res.Filename)
	}
	if strings.Count(string(res.Data), "<speech ") != 1 || !strings.Contains(string(res.Data), `by="#bob"`) {
		t.Fatalf("unexpected section document:\n%s", res.Data)
	}
}

func TestServiceExportMissing(t *testing.T) {
	svc := NewService(newFakeStore())
	for _, key := range []string{"nothing", "999"} {
		if _, err := svc.Export(context.Background(), Request{Key: key, Format: FormatAN}); !errors.Is(err, ErrContentUnavailable) {
			t.Fatalf("Export(%q) error = %v, want ErrContentUnavailable", key, err)
		}
	}
	if _, err := svc.Export(context.Background(), Request{Key: "budget-2024", Format: "docx"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(".an"); err != nil || f != FormatAN {
		t.Fatalf("ParseFormat(.an) = %q, %v", f, err)
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"2025-11-08-解學習監管": "2025-11-08-解學習監管",
		"Budget & Policy":   "Budget-Policy",
		"   ":               "speech",
		"a/b?c":             "abc",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	if got := percentEncodeForDataURL("a b<é"); got != "a%20b%3C%C3%A9" {
		t.Fatalf("percentEncodeForDataURL() = %q", got)
	}
}
