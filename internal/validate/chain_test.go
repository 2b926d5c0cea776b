package validate

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/sniff"
)

func buildDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types/>`,
		"word/document.xml": `<?xml version="1.0"?><w:document><w:body>` +
			`<w:p><w:r><w:t>Experience</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t>` + strings.Repeat("Built data pipelines in Go. ", 64) + `</w:t></w:r></w:p>` +
			`</w:body></w:document>`,
	}
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if buf.Len() < 1<<10 {
		t.Fatalf("test docx must exceed min upload size, got %d bytes", buf.Len())
	}
	return buf.Bytes()
}

func pad(data []byte, size int) []byte {
	out := append([]byte(nil), data...)
	for len(out) < size {
		out = append(out, 0xAB)
	}
	return out
}

func TestChainAcceptsWellFormedDocx(t *testing.T) {
	chain := NewChain(DefaultLimits())
	docx := buildDocx(t)

	v := chain.Validate(artifacts.CategoryResume, "My Resume (final).docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", docx)
	if !v.Accepted {
		t.Fatalf("expected accept, got %s at check %s", v.Reason, v.FailedCheck)
	}
	if v.Format != sniff.FormatDOCX {
		t.Fatalf("expected docx format, got %s", v.Format)
	}
	if strings.ContainsAny(v.SanitizedName, "()/\\") {
		t.Fatalf("sanitized name still contains unsafe characters: %q", v.SanitizedName)
	}
}

func TestChainSizeBounds(t *testing.T) {
	chain := NewChain(Limits{MinBytes: 1 << 10, MaxBytes: 4 << 10})

	empty := chain.Validate(artifacts.CategoryResume, "a.pdf", "application/pdf", nil)
	if empty.Accepted || empty.Reason != ReasonFileTooSmall {
		t.Fatalf("0-byte upload: got %+v, want FILE_TOO_SMALL", empty)
	}

	big := chain.Validate(artifacts.CategoryResume, "a.pdf", "application/pdf", pad([]byte("%PDF-"), 5<<10))
	if big.Accepted || big.Reason != ReasonFileTooLarge {
		t.Fatalf("oversize upload: got %+v, want FILE_TOO_LARGE", big)
	}
}

func TestChainTextCategoryCharBounds(t *testing.T) {
	chain := NewChain(DefaultLimits())

	short := chain.Validate(artifacts.CategoryText, "jd.txt", "text/plain", []byte("too short"))
	if short.Accepted || short.Reason != ReasonFileTooSmall {
		t.Fatalf("short text: got %+v, want FILE_TOO_SMALL", short)
	}

	long := chain.Validate(artifacts.CategoryText, "jd.txt", "text/plain", []byte(strings.Repeat("x", 10001)))
	if long.Accepted || long.Reason != ReasonFileTooLarge {
		t.Fatalf("long text: got %+v, want FILE_TOO_LARGE", long)
	}

	ok := chain.Validate(artifacts.CategoryText, "jd.txt", "text/plain",
		[]byte("We are hiring a backend engineer with strong Go and PostgreSQL experience."))
	if !ok.Accepted {
		t.Fatalf("valid text rejected: %+v", ok)
	}

	// Bounds count characters, not bytes: 6,000 CJK characters are 18,000
	// bytes but well inside the 10,000-character maximum.
	cjk := chain.Validate(artifacts.CategoryText, "jd.txt", "text/plain",
		[]byte(strings.Repeat("文", 6000)))
	if !cjk.Accepted {
		t.Fatalf("6000-char multibyte text rejected: %+v", cjk)
	}

	// And 40 CJK characters are 120 bytes but still below the 50-character
	// minimum.
	cjkShort := chain.Validate(artifacts.CategoryText, "jd.txt", "text/plain",
		[]byte(strings.Repeat("文", 40)))
	if cjkShort.Accepted || cjkShort.Reason != ReasonFileTooSmall {
		t.Fatalf("40-char multibyte text: got %+v, want FILE_TOO_SMALL", cjkShort)
	}
}

func TestChainRejectsSpoofedPNG(t *testing.T) {
	chain := NewChain(DefaultLimits())
	png := pad([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, 2<<10)

	v := chain.Validate(artifacts.CategoryResume, "resume.pdf", "application/pdf", png)
	if v.Accepted {
		t.Fatal("spoofed PNG accepted")
	}
	if v.Reason != ReasonTypeMismatch {
		t.Fatalf("expected TYPE_MISMATCH, got %s", v.Reason)
	}
}

func TestChainRejectsDeclaredMIMEDisagreement(t *testing.T) {
	chain := NewChain(DefaultLimits())
	docx := buildDocx(t)

	v := chain.Validate(artifacts.CategoryResume, "resume.docx", "application/pdf", docx)
	if v.Accepted || v.Reason != ReasonTypeMismatch {
		t.Fatalf("docx declared as pdf: got %+v, want TYPE_MISMATCH", v)
	}
}

func TestChainRejectsPlainZipAsUnsupported(t *testing.T) {
	chain := NewChain(DefaultLimits())

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("notes.txt")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(strings.Repeat("notes ", 300))); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	v := chain.Validate(artifacts.CategoryResume, "archive.zip", "", buf.Bytes())
	if v.Accepted || v.Reason != ReasonUnsupportedFormat {
		t.Fatalf("plain zip: got %+v, want UNSUPPORTED_FORMAT", v)
	}
}

func TestChainRejectsCorruptPDFStructure(t *testing.T) {
	chain := NewChain(DefaultLimits())
	corrupt := pad([]byte("%PDF-1.7\nthis is not a real xref table"), 2<<10)

	v := chain.Validate(artifacts.CategoryResume, "resume.pdf", "application/pdf", corrupt)
	if v.Accepted {
		t.Fatal("corrupt pdf accepted")
	}
	if v.Reason != ReasonStructuralCorruption && v.Reason != ReasonTypeMismatch {
		t.Fatalf("corrupt pdf: got %s, want STRUCTURAL_CORRUPTION", v.Reason)
	}
}

func TestChainRejectionIsDeterministic(t *testing.T) {
	chain := NewChain(DefaultLimits())
	payload := pad([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, 2<<10)

	first := chain.Validate(artifacts.CategoryResume, "x.pdf", "application/pdf", payload)
	second := chain.Validate(artifacts.CategoryResume, "x.pdf", "application/pdf", payload)
	if first.Reason != second.Reason || first.FailedCheck != second.FailedCheck {
		t.Fatalf("resubmission changed verdict: %+v vs %+v", first, second)
	}
}

func TestChainTruncatedDocxIsCorrupt(t *testing.T) {
	chain := NewChain(DefaultLimits())
	docx := buildDocx(t)
	truncated := docx[:len(docx)/2]
	truncated = pad(truncated, 1<<10+1)

	v := chain.Validate(artifacts.CategoryResume, "resume.docx", "application/zip", truncated)
	if v.Accepted {
		t.Fatal("truncated docx accepted")
	}
}
