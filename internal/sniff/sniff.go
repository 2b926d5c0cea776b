// Package sniff determines a file's true format from its leading bytes,
// independent of the claimed filename or MIME type.
package sniff

import (
	"archive/zip"
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Format is the closed set of document formats the pipeline understands.
type Format string

const (
	FormatPDF       Format = "pdf"
	FormatDOC       Format = "doc"
	FormatDOCX      Format = "docx"
	FormatPlainText Format = "text"
	FormatUnknown   Format = "unknown"
)

// HeadSize is how many leading bytes callers should hand to Detect. Enough
// for magic numbers plus the zip local headers needed to spot a DOCX part.
const HeadSize = 8 << 10

var (
	pdfMagic = []byte("%PDF")
	oleMagic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
)

// Detect classifies a payload by structural signature. Pass the full payload
// when available: zip-based formats need the central directory, which sits at
// the end of the file. Anything unrecognized is FormatUnknown, which the
// validator chain rejects.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return FormatPDF
	case bytes.HasPrefix(data, oleMagic):
		return FormatDOC
	case bytes.HasPrefix(data, zipMagic):
		if isDocxArchive(data) {
			return FormatDOCX
		}
		return FormatUnknown
	case looksLikeText(data):
		return FormatPlainText
	default:
		return FormatUnknown
	}
}

// DetectMIME returns the content-derived MIME type for the declared-type
// agreement check.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// MIMEFor maps a detected format to its canonical MIME type.
func MIMEFor(f Format) string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDOC:
		return "application/msword"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPlainText:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// Ext maps a detected format to the extension used in storage keys.
func Ext(f Format) string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatDOC:
		return "doc"
	case FormatDOCX:
		return "docx"
	case FormatPlainText:
		return "txt"
	default:
		return "bin"
	}
}

// isDocxArchive reports whether a zip payload carries the WordprocessingML
// main part. A zip without it (xlsx, plain archive) is not an accepted format.
func isDocxArchive(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		// Truncated or no central directory; fall back to scanning local
		// file headers in the leading slice.
		return bytes.Contains(data, []byte("word/document.xml"))
	}
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			return true
		}
	}
	return false
}

// looksLikeText accepts valid UTF-8 with no NUL bytes and a high printable
// ratio. Control-character soup and binary blobs fall through to Unknown.
func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > HeadSize {
		sample = sample[:HeadSize]
	}
	if !utf8.Valid(sample) {
		return false
	}
	printable := 0
	total := 0
	for _, r := range string(sample) {
		total++
		if r == '\n' || r == '\r' || r == '\t' || r >= 0x20 {
			printable++
			continue
		}
		if r == 0 {
			return false
		}
	}
	if total == 0 {
		return false
	}
	return float64(printable)/float64(total) > 0.95
}
