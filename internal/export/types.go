// Package export renders speeches as Akoma Ntoso, Markdown, HTML and PDF.
package export

import (
	"errors"
	"fmt"
)

// Format represents the export output format
type Format string

const (
	FormatAN   Format = "an"
	FormatMD   Format = "md"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a format name with or without a leading dot.
func ParseFormat(name string) (Format, error) {
	switch f := Format(trimDot(name)); f {
	case FormatAN, FormatMD, FormatHTML, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// MimeType is the content type served for the format.
func (f Format) MimeType() string {
	switch f {
	case FormatAN:
		return "text/plain; charset=utf-8"
	case FormatMD:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Request names what to export. Key is a speech filename or a numeric
// section ID.
type Request struct {
	Key    string
	Format Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates the speech or section does not exist.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUnsupportedFormat is returned for unknown format names.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

func trimDot(name string) string {
	if len(name) > 0 && name[0] == '.' {
		return name[1:]
	}
	return name
}
