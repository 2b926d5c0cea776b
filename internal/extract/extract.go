// Package extract derives plain text from admitted documents. Extraction is
// best-effort: a failure here marks the stored version, it never unwinds the
// upload that produced it.
package extract

import (
	"context"
	"errors"
	"fmt"

	"ingest-backend/internal/sniff"
)

// Failure categories surfaced to the caller. Everything else is wrapped as a
// generic extraction error.
var (
	ErrEncrypted = errors.New("extract: document is encrypted")
	ErrCorrupt   = errors.New("extract: document structure is corrupt")
	ErrEmpty     = errors.New("extract: document contains no text")
)

// Content is the result of a successful extraction.
type Content struct {
	Text      string
	PageCount int
}

// Extractor pulls plain text from one document format.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (Content, error)
}

// ForFormat returns the extractor for a sniffed format, or an error when the
// format has no text extraction path.
func ForFormat(format sniff.Format, maxPDFPages int) (Extractor, error) {
	switch format {
	case sniff.FormatPDF:
		return &PDFExtractor{MaxPages: maxPDFPages}, nil
	case sniff.FormatDOCX:
		return DOCXExtractor{}, nil
	case sniff.FormatDOC:
		return DOCExtractor{}, nil
	case sniff.FormatPlainText:
		return TextExtractor{}, nil
	default:
		return nil, fmt.Errorf("extract: no extractor for format %q", format)
	}
}
