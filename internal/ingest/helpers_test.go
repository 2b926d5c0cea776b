package ingest

import (
	"archive/zip"
	"bytes"
	"testing"
)

// buildDocxWith assembles a minimal OOXML container around the given
// document.xml body, padded past the binary minimum upload size with an
// uncompressed part.
func buildDocxWith(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("[Content_Types].xml")
	if err != nil {
		t.Fatalf("create content types: %v", err)
	}
	if _, err := w.Write([]byte(`<?xml version="1.0"?><Types/>`)); err != nil {
		t.Fatalf("write content types: %v", err)
	}

	w, err = zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document.xml: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write document.xml: %v", err)
	}

	// Stored (uncompressed) padding so the archive clears the minimum size.
	pad := make([]byte, 2<<10)
	for i := range pad {
		pad[i] = byte(i % 251)
	}
	w, err = zw.CreateHeader(&zip.FileHeader{Name: "docProps/pad.bin", Method: zip.Store})
	if err != nil {
		t.Fatalf("create pad: %v", err)
	}
	if _, err := w.Write(pad); err != nil {
		t.Fatalf("write pad: %v", err)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}
