package extract

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// TextExtractor normalizes raw text payloads to UTF-8. UTF-8 input passes
// through; UTF-16 is detected by its BOM; anything else is decoded as
// Latin-1, which cannot fail.
type TextExtractor struct{}

func (TextExtractor) Extract(ctx context.Context, data []byte) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	text := strings.TrimSpace(decodeText(data))
	if text == "" {
		return Content{}, ErrEmpty
	}
	return Content{Text: text, PageCount: 1}, nil
}

func decodeText(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeUTF16(data[2:], false)
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeUTF16(data[2:], true)
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		data = data[3:]
	}
	if utf8.Valid(data) {
		return string(data)
	}
	// Latin-1: every byte maps to the code point of the same value.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

func decodeUTF16(data []byte, bigEndian bool) string {
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		if bigEndian {
			units = append(units, uint16(data[i])<<8|uint16(data[i+1]))
		} else {
			units = append(units, uint16(data[i])|uint16(data[i+1])<<8)
		}
	}
	return string(utf16.Decode(units))
}
