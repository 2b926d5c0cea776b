package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXExtractor reads word/document.xml out of the OOXML container and walks
// its tokens, keeping character data and turning paragraph and line breaks
// into newlines.
type DOCXExtractor struct{}

func (DOCXExtractor) Extract(ctx context.Context, data []byte) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return Content{}, fmt.Errorf("%w: word/document.xml not found", ErrCorrupt)
	}

	rc, err := docFile.Open()
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer rc.Close()

	text, err := flattenDocxXML(rc)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if text == "" {
		return Content{}, ErrEmpty
	}
	return Content{Text: text, PageCount: 1}, nil
}

func flattenDocxXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.StartElement:
			if t.Name.Local == "br" || t.Name.Local == "tab" {
				buf.WriteString(" ")
			}
		case xml.EndElement:
			if t.Name.Local == "p" && buf.Len() > 0 {
				buf.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
