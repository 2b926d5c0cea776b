package validate

import (
	"archive/zip"
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"ingest-backend/internal/sniff"
)

// checkStructure is a shallow, format-specific parse that catches truncated
// or corrupted uploads before expensive extraction. It does not decode
// content.
func checkStructure(format sniff.Format, data []byte) Verdict {
	switch format {
	case sniff.FormatPDF:
		if !pdfStructureOK(data) {
			return rejected("structure", ReasonStructuralCorruption)
		}
	case sniff.FormatDOCX:
		if !docxStructureOK(data) {
			return rejected("structure", ReasonStructuralCorruption)
		}
	case sniff.FormatDOC:
		if !docStructureOK(data) {
			return rejected("structure", ReasonStructuralCorruption)
		}
	case sniff.FormatPlainText:
		if !utf8.Valid(data) {
			return rejected("structure", ReasonStructuralCorruption)
		}
	}
	return accepted("", format)
}

// pdfStructureOK verifies the cross-reference table and trailer parse without
// extracting any page content.
func pdfStructureOK(data []byte) bool {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	_, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	return err == nil
}

// docxStructureOK requires a readable zip central directory containing the
// WordprocessingML main part.
func docxStructureOK(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			return true
		}
	}
	return false
}

// docStructureOK is a header-length sanity check for OLE compound files. The
// format reserves a full 512-byte header sector before any directory data.
func docStructureOK(data []byte) bool {
	return len(data) >= 512
}
