package extract

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	// US formats: (xxx) xxx-xxxx, xxx-xxx-xxxx, xxx.xxx.xxxx, xxxxxxxxxx.
	usPhonePattern   = regexp.MustCompile(`\b\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	intlPhonePattern = regexp.MustCompile(`\+\d{1,3}[-.\s]?\d{1,4}[-.\s]?\d{1,4}[-.\s]?\d{1,9}`)
	longNumberPattern = regexp.MustCompile(`\b\d{10,}\b`)
	urlPattern        = regexp.MustCompile(`https?://[A-Za-z0-9$\-_@.&+!*(),%/?#=~:;]+`)
	addressPattern    = regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl)\b`)
	spacePattern      = regexp.MustCompile(`\s+`)
	markerRunPattern  = regexp.MustCompile(`(\[[A-Z_]+_REMOVED\]\s*){2,}`)
)

// Redact strips contact details and other personal identifiers from extracted
// text, replacing each with a marker. Runs of adjacent markers collapse into a
// single [PII_REMOVED].
func Redact(text string) string {
	if text == "" {
		return ""
	}
	text = emailPattern.ReplaceAllString(text, "[EMAIL_REMOVED]")
	text = intlPhonePattern.ReplaceAllString(text, "[PHONE_REMOVED]")
	text = usPhonePattern.ReplaceAllString(text, "[PHONE_REMOVED]")
	text = longNumberPattern.ReplaceAllString(text, "[NUMBER_REMOVED]")
	text = urlPattern.ReplaceAllString(text, "[URL_REMOVED]")
	text = addressPattern.ReplaceAllString(text, "[ADDRESS_REMOVED]")
	text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	text = markerRunPattern.ReplaceAllString(text, "[PII_REMOVED] ")
	return strings.TrimSpace(text)
}
