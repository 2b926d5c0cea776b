// Package validate runs an ordered chain of independent checks over an
// upload. Each check is pure, the order is fixed, and the first failure
// aborts the chain, so rejections are deterministic and reproducible.
package validate

import (
	"mime"
	"strings"
	"unicode/utf8"

	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/sniff"
	"ingest-backend/internal/shared/util"
)

// Limits bounds accepted payloads. Binary documents are measured in bytes,
// raw text submissions in characters.
type Limits struct {
	MinBytes     int64
	MaxBytes     int64
	MinTextChars int
	MaxTextChars int
}

// DefaultLimits mirrors the platform's published upload requirements.
func DefaultLimits() Limits {
	return Limits{
		MinBytes:     1 << 10,
		MaxBytes:     10 << 20,
		MinTextChars: 50,
		MaxTextChars: 10000,
	}
}

// Chain validates uploads against the configured limits.
type Chain struct {
	limits Limits
}

// NewChain constructs a Chain. Zero limit fields fall back to defaults.
func NewChain(limits Limits) *Chain {
	def := DefaultLimits()
	if limits.MinBytes <= 0 {
		limits.MinBytes = def.MinBytes
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = def.MaxBytes
	}
	if limits.MinTextChars <= 0 {
		limits.MinTextChars = def.MinTextChars
	}
	if limits.MaxTextChars <= 0 {
		limits.MaxTextChars = def.MaxTextChars
	}
	return &Chain{limits: limits}
}

// allowedFormats is the accepted format set per declared category.
var allowedFormats = map[artifacts.Category]map[sniff.Format]struct{}{
	artifacts.CategoryResume: {
		sniff.FormatPDF:  {},
		sniff.FormatDOC:  {},
		sniff.FormatDOCX: {},
	},
	artifacts.CategoryJobDescription: {
		sniff.FormatPDF:       {},
		sniff.FormatDOC:       {},
		sniff.FormatDOCX:      {},
		sniff.FormatPlainText: {},
	},
	artifacts.CategoryText: {
		sniff.FormatPlainText: {},
	},
}

// declaredMIMEFor lists the claimed MIME types considered consistent with a
// detected format. DOCX claimed as application/zip is the container truth, not
// spoofing; anything else that disagrees is rejected.
var declaredMIMEFor = map[sniff.Format]map[string]struct{}{
	sniff.FormatPDF: {
		"application/pdf":   {},
		"application/x-pdf": {},
	},
	sniff.FormatDOC: {
		"application/msword": {},
	},
	sniff.FormatDOCX: {
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
		"application/zip": {},
	},
	sniff.FormatPlainText: {
		"text/plain": {},
	},
}

// supportedDeclaredMIMEs is the union of claims the platform accepts at all.
var supportedDeclaredMIMEs = map[string]struct{}{
	"application/pdf":    {},
	"application/x-pdf":  {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/plain": {},
}

// Validate runs the chain over a full payload. The HTTP layer has already
// bounded the stream, so data is at most MaxBytes+1 long.
func (c *Chain) Validate(category artifacts.Category, fileName, declaredMIME string, data []byte) Verdict {
	if v := c.checkSize(category, data); !v.Accepted {
		return v
	}
	format := sniff.Detect(data)
	if v := c.checkDeclaredType(category, format, declaredMIME, data); !v.Accepted {
		return v
	}
	// Filename sanitization never rejects; it only produces a safe name.
	sanitized := util.SanitizeFileName(fileName)
	if v := checkStructure(format, data); !v.Accepted {
		return v
	}
	return accepted(sanitized, format)
}

func (c *Chain) checkSize(category artifacts.Category, data []byte) Verdict {
	if category == artifacts.CategoryText {
		// Text bounds are characters, not bytes; multibyte text must not be
		// penalized for its encoding.
		n := utf8.RuneCountInString(strings.TrimSpace(string(data)))
		if n < c.limits.MinTextChars {
			return rejected("size", ReasonFileTooSmall)
		}
		if n > c.limits.MaxTextChars {
			return rejected("size", ReasonFileTooLarge)
		}
		return accepted("", sniff.FormatPlainText)
	}
	if int64(len(data)) < c.limits.MinBytes {
		return rejected("size", ReasonFileTooSmall)
	}
	if int64(len(data)) > c.limits.MaxBytes {
		return rejected("size", ReasonFileTooLarge)
	}
	return accepted("", sniff.FormatUnknown)
}

func (c *Chain) checkDeclaredType(category artifacts.Category, format sniff.Format, declaredMIME string, data []byte) Verdict {
	if format == sniff.FormatUnknown {
		// An unrecognized payload that claimed a supported type is a spoof
		// (e.g. a PNG renamed to .pdf), not merely an unsupported format.
		if _, claimsSupported := supportedDeclaredMIMEs[normalizeMIME(declaredMIME)]; claimsSupported {
			return rejected("declared_type", ReasonTypeMismatch)
		}
		return rejected("declared_type", ReasonUnsupportedFormat)
	}
	allowed, ok := allowedFormats[category]
	if !ok {
		return rejected("declared_type", ReasonUnsupportedFormat)
	}
	if _, ok := allowed[format]; !ok {
		return rejected("declared_type", ReasonUnsupportedFormat)
	}

	// Claimed MIME must agree with the sniffed format. A mismatch is a
	// tampering signal and rejects; an absent claim is not a claim.
	claimed := normalizeMIME(declaredMIME)
	if claimed != "" && claimed != "application/octet-stream" {
		consistent := declaredMIMEFor[format]
		if _, ok := consistent[claimed]; !ok {
			if !(format == sniff.FormatPlainText && strings.HasPrefix(claimed, "text/")) {
				return rejected("declared_type", ReasonTypeMismatch)
			}
		}
	}

	// Second opinion from content-based detection. Catches payloads whose
	// leading magic was forged but whose body is something else entirely.
	detected := normalizeMIME(sniff.DetectMIME(data))
	if !contentMIMEConsistent(format, detected) {
		return rejected("declared_type", ReasonTypeMismatch)
	}
	return accepted("", format)
}

func contentMIMEConsistent(format sniff.Format, detected string) bool {
	switch format {
	case sniff.FormatPDF:
		return detected == "application/pdf"
	case sniff.FormatDOC:
		return detected == "application/msword" ||
			detected == "application/x-ole-storage" ||
			strings.HasPrefix(detected, "application/vnd.ms-")
	case sniff.FormatDOCX:
		return detected == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" ||
			detected == "application/zip"
	case sniff.FormatPlainText:
		return strings.HasPrefix(detected, "text/")
	default:
		return false
	}
}

func normalizeMIME(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(raw, ";")[0]))
	}
	return parsed
}
