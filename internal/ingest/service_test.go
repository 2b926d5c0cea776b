package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ingest-backend/internal/analyze"
	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/quarantine"
	"ingest-backend/internal/rescan"
	"ingest-backend/internal/validate"
)

type memObjects struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{blobs: make(map[string][]byte)}
}

func (m *memObjects) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return int64(len(data)), nil
}

func (m *memObjects) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

type fixedScanner struct {
	verdict quarantine.ScanVerdict
	err     error
}

func (s fixedScanner) Scan(ctx context.Context, data []byte) (quarantine.ScanVerdict, error) {
	return s.verdict, s.err
}

type captureQueue struct {
	mu       sync.Mutex
	messages []rescan.Message
}

func (q *captureQueue) Enqueue(ctx context.Context, msg rescan.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

type serviceFixture struct {
	svc     *Service
	store   *artifacts.Store
	objects *memObjects
	queue   *captureQueue
}

func newFixture(scanner quarantine.Scanner, policy quarantine.Policy, opts Options) serviceFixture {
	objects := newMemObjects()
	store := artifacts.NewStore(artifacts.NewMemoryRepo(), objects, opts.Quota)
	queue := &captureQueue{}
	svc := NewService(
		validate.NewChain(opts.Limits),
		quarantine.NewGate(scanner, time.Second, policy),
		store,
		analyze.New(nil),
		queue,
		opts,
	)
	return serviceFixture{svc: svc, store: store, objects: objects, queue: queue}
}

const jdText = "We are hiring a backend engineer with 5 years of Python, Django, and PostgreSQL experience building ingestion pipelines."

func TestUploadTextRoundTrip(t *testing.T) {
	fx := newFixture(nil, quarantine.FailClosed, Options{})
	ctx := context.Background()

	doc, dv, err := fx.svc.UploadText(ctx, "user-a", "", jdText, "req-1")
	if err != nil {
		t.Fatalf("UploadText: %v", err)
	}
	if dv.Version != 1 {
		t.Fatalf("version: got %d", dv.Version)
	}
	if doc.LogicalName != "submission.txt" {
		t.Fatalf("logical name: got %s", doc.LogicalName)
	}

	content, err := fx.svc.Content(ctx, "user-a", doc.ID, 0)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if !strings.Contains(content.Text, "Django") {
		t.Fatalf("derived text lost: %q", content.Text)
	}
	if content.ExperienceLevel != artifacts.LevelSenior {
		t.Fatalf("expected senior from explicit years, got %s", content.ExperienceLevel)
	}
	if len(content.Skills) == 0 {
		t.Fatal("expected skill candidates")
	}
}

func TestUploadRejectionsCarryClosedEnumReason(t *testing.T) {
	fx := newFixture(nil, quarantine.FailClosed, Options{})
	ctx := context.Background()

	_, _, err := fx.svc.UploadText(ctx, "user-a", "", "too short", "req-1")
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rejection.Reason != validate.ReasonFileTooSmall {
		t.Fatalf("reason: got %s", rejection.Reason)
	}

	docs, err := fx.svc.List(ctx, "user-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("rejected upload left documents: %+v", docs)
	}
}

func TestUploadThreatIsRejectedAndNotStored(t *testing.T) {
	fx := newFixture(fixedScanner{verdict: quarantine.VerdictInfected}, quarantine.FailClosed, Options{})
	ctx := context.Background()

	_, _, err := fx.svc.UploadText(ctx, "user-a", "", jdText, "req-1")
	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Reason != validate.ReasonThreatDetected {
		t.Fatalf("expected THREAT_DETECTED, got %v", err)
	}
	if len(fx.objects.blobs) != 0 {
		t.Fatal("threat payload reached the object store")
	}
}

func TestUploadScannerDownFailClosed(t *testing.T) {
	scanner := fixedScanner{verdict: quarantine.VerdictUnknown, err: errors.New("connection refused")}
	fx := newFixture(scanner, quarantine.FailClosed, Options{})

	_, _, err := fx.svc.UploadText(context.Background(), "user-a", "", jdText, "req-1")
	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Reason != validate.ReasonScannerUnavailable {
		t.Fatalf("expected SCANNER_UNAVAILABLE, got %v", err)
	}
}

func TestUploadScannerDownFailOpenFlagsForRescan(t *testing.T) {
	scanner := fixedScanner{verdict: quarantine.VerdictUnknown, err: errors.New("connection refused")}
	fx := newFixture(scanner, quarantine.FailOpen, Options{})
	ctx := context.Background()

	doc, dv, err := fx.svc.UploadText(ctx, "user-a", "", jdText, "req-1")
	if err != nil {
		t.Fatalf("UploadText: %v", err)
	}
	if dv.ScanStatus != artifacts.ScanPendingRescan {
		t.Fatalf("scan status: got %s", dv.ScanStatus)
	}

	fx.queue.mu.Lock()
	defer fx.queue.mu.Unlock()
	if len(fx.queue.messages) != 1 {
		t.Fatalf("expected 1 rescan message, got %d", len(fx.queue.messages))
	}
	msg := fx.queue.messages[0]
	if msg.DocumentID != doc.ID || msg.Version != dv.Version {
		t.Fatalf("rescan message mismatch: %+v", msg)
	}
}

func TestUploadQuotaExceeded(t *testing.T) {
	fx := newFixture(nil, quarantine.FailClosed, Options{
		Quota: artifacts.QuotaLimits{MaxActiveDocuments: 1},
	})
	ctx := context.Background()

	if _, _, err := fx.svc.UploadText(ctx, "user-a", "first.txt", jdText, "req-1"); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	_, _, err := fx.svc.UploadText(ctx, "user-a", "second.txt", jdText, "req-2")
	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Reason != validate.ReasonQuotaExceeded {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}
}

func TestUploadCancelledCommitsNothing(t *testing.T) {
	fx := newFixture(nil, quarantine.FailClosed, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := fx.svc.UploadText(ctx, "user-a", "", jdText, "req-1"); err == nil {
		t.Fatal("expected cancellation error")
	}
	docs, err := fx.svc.List(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("cancelled upload left documents: %+v", docs)
	}
	if len(fx.objects.blobs) != 0 {
		t.Fatal("cancelled upload left objects")
	}
}

// buildEmptyDocx is structurally valid but has no text, so extraction fails
// while the upload itself must succeed.
func buildEmptyDocx(t *testing.T) []byte {
	t.Helper()
	data := buildDocxWith(t, `<?xml version="1.0"?><w:document><w:body></w:body></w:document>`)
	if len(data) < 1<<10 {
		t.Fatalf("docx too small for upload limits: %d", len(data))
	}
	return data
}

func TestExtractionFailureDoesNotFailUpload(t *testing.T) {
	fx := newFixture(nil, quarantine.FailClosed, Options{})
	ctx := context.Background()

	doc, dv, err := fx.svc.Upload(ctx, UploadRequest{
		OwnerID:      "user-a",
		Category:     artifacts.CategoryResume,
		FileName:     "resume.docx",
		DeclaredMIME: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Data:         buildEmptyDocx(t),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if dv.Version != 1 {
		t.Fatalf("version: got %d", dv.Version)
	}

	_, err = fx.svc.Content(ctx, "user-a", doc.ID, 0)
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}

	// The stored bytes are still downloadable.
	data, _, err := fx.svc.Download(ctx, "user-a", doc.ID, 0)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("download returned no bytes")
	}
}

func TestUploadRedactsPIIWhenEnabled(t *testing.T) {
	fx := newFixture(nil, quarantine.FailClosed, Options{RedactPII: true})
	ctx := context.Background()

	text := "Contact jane.roe@example.com for this role. " + jdText
	doc, _, err := fx.svc.UploadText(ctx, "user-a", "", text, "req-1")
	if err != nil {
		t.Fatalf("UploadText: %v", err)
	}
	content, err := fx.svc.Content(ctx, "user-a", doc.ID, 0)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if strings.Contains(content.Text, "jane.roe@example.com") {
		t.Fatalf("derived text leaked PII: %q", content.Text)
	}
	if !strings.Contains(content.Text, "[EMAIL_REMOVED]") {
		t.Fatalf("expected redaction marker: %q", content.Text)
	}
}

func TestRepeatedUploadCreatesVersions(t *testing.T) {
	fx := newFixture(nil, quarantine.FailClosed, Options{})
	ctx := context.Background()

	doc1, dv1, err := fx.svc.UploadText(ctx, "user-a", "jd.txt", jdText, "req-1")
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	doc2, dv2, err := fx.svc.UploadText(ctx, "user-a", "jd.txt", jdText+" Updated.", "req-2")
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if doc1.ID != doc2.ID {
		t.Fatalf("same logical name should reuse the document: %s vs %s", doc1.ID, doc2.ID)
	}
	if dv1.Version != 1 || dv2.Version != 2 {
		t.Fatalf("versions: %d, %d", dv1.Version, dv2.Version)
	}

	// Old version remains retrievable.
	data, _, err := fx.svc.Download(ctx, "user-a", doc1.ID, 1)
	if err != nil {
		t.Fatalf("Download v1: %v", err)
	}
	if string(data) != jdText {
		t.Fatal("v1 bytes changed after v2 upload")
	}
}

func TestRequirementsReflectConfiguredLimits(t *testing.T) {
	fx := newFixture(nil, quarantine.FailClosed, Options{
		Limits: validate.Limits{MinBytes: 1 << 10, MaxBytes: 5 << 20, MinTextChars: 50, MaxTextChars: 10000},
		Quota:  artifacts.QuotaLimits{MaxActiveDocuments: 20, MaxStoredBytes: 100 << 20},
	})
	req := fx.svc.Requirements()
	if req.MaxFileBytes != 5<<20 || req.MaxActiveDocuments != 20 {
		t.Fatalf("requirements mismatch: %+v", req)
	}
	if len(req.AcceptedFormats[string(artifacts.CategoryResume)]) == 0 {
		t.Fatalf("accepted formats missing: %+v", req.AcceptedFormats)
	}
}
