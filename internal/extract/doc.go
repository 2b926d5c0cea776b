package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
)

// DOCExtractor handles legacy binary Word documents through docconv.
type DOCExtractor struct{}

func (DOCExtractor) Extract(ctx context.Context, data []byte) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	body, _, err := docconv.ConvertDoc(bytes.NewReader(data))
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	text := strings.TrimSpace(body)
	if text == "" {
		return Content{}, ErrEmpty
	}
	return Content{Text: text, PageCount: 1}, nil
}
