package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads page text with github.com/ledongthuc/pdf. Documents past
// MaxPages are truncated, not rejected; the page count reported is the real
// one so the caller can tell.
type PDFExtractor struct {
	MaxPages int
}

// Extract walks pages in order and concatenates their plain text. The pdf
// library panics on some malformed inputs, so the walk runs behind a recover
// that converts the panic into ErrCorrupt.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (content Content, err error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			content = Content{}
			err = fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return Content{}, ErrEncrypted
		}
		return Content{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	numPages := reader.NumPage()
	limit := numPages
	if e.MaxPages > 0 && limit > e.MaxPages {
		limit = e.MaxPages
	}

	var buf strings.Builder
	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return Content{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	out := strings.TrimSpace(buf.String())
	if out == "" {
		return Content{}, ErrEmpty
	}
	return Content{Text: out, PageCount: numPages}, nil
}
