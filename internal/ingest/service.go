// Package ingest orchestrates the pipeline for untrusted documents: sniff,
// validate, quarantine, store, extract, analyze. It is the only package that
// sequences the others; each stage stays independently testable.
package ingest

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"ingest-backend/internal/analyze"
	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/extract"
	"ingest-backend/internal/quarantine"
	"ingest-backend/internal/rescan"
	"ingest-backend/internal/shared/metrics"
	"ingest-backend/internal/shared/telemetry"
	"ingest-backend/internal/shared/util"
	"ingest-backend/internal/sniff"
	"ingest-backend/internal/validate"
)

const storeRetryBaseDelay = 200 * time.Millisecond

// Options tunes the pipeline.
type Options struct {
	Limits         validate.Limits
	Quota          artifacts.QuotaLimits
	ExtractTimeout time.Duration
	MaxPDFPages    int
	RedactPII      bool
}

// Service runs the ingestion pipeline.
type Service struct {
	chain    *validate.Chain
	gate     *quarantine.Gate
	store    *artifacts.Store
	analyzer *analyze.Analyzer
	queue    rescan.Enqueuer
	opts     Options
}

// NewService constructs a Service.
func NewService(chain *validate.Chain, gate *quarantine.Gate, store *artifacts.Store, analyzer *analyze.Analyzer, queue rescan.Enqueuer, opts Options) *Service {
	if opts.ExtractTimeout <= 0 {
		opts.ExtractTimeout = 30 * time.Second
	}
	def := validate.DefaultLimits()
	if opts.Limits.MinBytes <= 0 {
		opts.Limits.MinBytes = def.MinBytes
	}
	if opts.Limits.MaxBytes <= 0 {
		opts.Limits.MaxBytes = def.MaxBytes
	}
	if opts.Limits.MinTextChars <= 0 {
		opts.Limits.MinTextChars = def.MinTextChars
	}
	if opts.Limits.MaxTextChars <= 0 {
		opts.Limits.MaxTextChars = def.MaxTextChars
	}
	if analyzer == nil {
		analyzer = analyze.New(nil)
	}
	return &Service{
		chain:    chain,
		gate:     gate,
		store:    store,
		analyzer: analyzer,
		queue:    queue,
		opts:     opts,
	}
}

// UploadRequest is one untrusted document submission.
type UploadRequest struct {
	OwnerID      string
	Category     artifacts.Category
	FileName     string
	DeclaredMIME string
	RequestID    string
	Data         []byte
}

// Upload runs the full pipeline. A refused upload returns a RejectionError
// with exactly one closed-enum reason; acceptance returns the committed
// version. Extraction and analysis run after the commit and their failure
// never unwinds it.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (artifacts.Document, artifacts.DocumentVersion, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return artifacts.Document{}, artifacts.DocumentVersion{}, err
	}

	verdict := s.chain.Validate(req.Category, req.FileName, req.DeclaredMIME, req.Data)
	if !verdict.Accepted {
		metrics.IncUploadRejected(string(verdict.Reason))
		telemetry.Info("ingest.upload.rejected", map[string]any{
			"owner_id":   req.OwnerID,
			"category":   string(req.Category),
			"reason":     string(verdict.Reason),
			"check":      verdict.FailedCheck,
			"request_id": req.RequestID,
			"size_bytes": len(req.Data),
		})
		return artifacts.Document{}, artifacts.DocumentVersion{}, reject(verdict.Reason, verdict.FailedCheck)
	}

	outcome, err := s.gate.Check(ctx, req.Data)
	if err != nil {
		return artifacts.Document{}, artifacts.DocumentVersion{}, err
	}
	scanStatus := artifacts.ScanClean
	switch outcome {
	case quarantine.OutcomeThreat:
		metrics.IncScanInfected()
		metrics.IncUploadRejected(string(validate.ReasonThreatDetected))
		return artifacts.Document{}, artifacts.DocumentVersion{}, reject(validate.ReasonThreatDetected, "scan")
	case quarantine.OutcomeDegradedReject:
		metrics.IncScanDegraded()
		metrics.IncUploadRejected(string(validate.ReasonScannerUnavailable))
		return artifacts.Document{}, artifacts.DocumentVersion{}, reject(validate.ReasonScannerUnavailable, "scan")
	case quarantine.OutcomeDegradedPass:
		metrics.IncScanDegraded()
		scanStatus = artifacts.ScanPendingRescan
	}

	args := artifacts.CommitArgs{
		OwnerID:      req.OwnerID,
		Category:     req.Category,
		LogicalName:  verdict.SanitizedName,
		DetectedMIME: sniff.MIMEFor(verdict.Format),
		ContentHash:  util.HashBytes(req.Data),
		ScanStatus:   scanStatus,
	}
	doc, dv, err := s.putWithRetry(ctx, args, req.Data)
	if err != nil {
		if errors.Is(err, artifacts.ErrQuotaExceeded) {
			metrics.IncUploadRejected(string(validate.ReasonQuotaExceeded))
			return artifacts.Document{}, artifacts.DocumentVersion{}, reject(validate.ReasonQuotaExceeded, "quota")
		}
		if ctx.Err() != nil {
			return artifacts.Document{}, artifacts.DocumentVersion{}, ctx.Err()
		}
		metrics.IncUploadRejected(string(validate.ReasonStorageError))
		telemetry.Error("ingest.store.failed", map[string]any{
			"owner_id":   req.OwnerID,
			"request_id": req.RequestID,
			"error":      err.Error(),
		})
		return artifacts.Document{}, artifacts.DocumentVersion{}, reject(validate.ReasonStorageError, "store")
	}

	if scanStatus == artifacts.ScanPendingRescan && s.queue != nil {
		msg := rescan.Message{
			DocumentID: doc.ID,
			Version:    dv.Version,
			RequestID:  req.RequestID,
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.queue.Enqueue(ctx, msg); err != nil {
			// The worker's periodic sweep will still find the version.
			telemetry.Warn("ingest.rescan.enqueue_failed", map[string]any{
				"document_id": doc.ID,
				"version":     dv.Version,
				"error":       err.Error(),
			})
		}
	}

	s.deriveContent(ctx, verdict.Format, dv, req.Data)

	metrics.IncUploadAccepted()
	metrics.ObservePipelineDurationMs(float64(time.Since(start).Milliseconds()))
	telemetry.Info("ingest.upload.accepted", map[string]any{
		"owner_id":    req.OwnerID,
		"document_id": doc.ID,
		"version":     dv.Version,
		"category":    string(req.Category),
		"mime":        dv.DetectedMIME,
		"size_bytes":  dv.SizeBytes,
		"scan_status": string(scanStatus),
		"request_id":  req.RequestID,
	})
	return doc, dv, nil
}

// UploadText ingests a raw text submission as a text-category document.
func (s *Service) UploadText(ctx context.Context, ownerID, name, text, requestID string) (artifacts.Document, artifacts.DocumentVersion, error) {
	if strings.TrimSpace(name) == "" {
		name = "submission.txt"
	}
	return s.Upload(ctx, UploadRequest{
		OwnerID:      ownerID,
		Category:     artifacts.CategoryText,
		FileName:     name,
		DeclaredMIME: "text/plain",
		RequestID:    requestID,
		Data:         []byte(text),
	})
}

// putWithRetry retries the version commit once on a transient storage error.
func (s *Service) putWithRetry(ctx context.Context, args artifacts.CommitArgs, data []byte) (artifacts.Document, artifacts.DocumentVersion, error) {
	doc, dv, err := s.store.Put(ctx, args, data)
	if err == nil || !shouldRetryStore(err) || ctx.Err() != nil {
		return doc, dv, err
	}

	telemetry.Warn("ingest.store.retry", map[string]any{
		"owner_id": args.OwnerID,
		"error":    err.Error(),
	})
	select {
	case <-time.After(storeRetryBaseDelay):
	case <-ctx.Done():
		return artifacts.Document{}, artifacts.DocumentVersion{}, ctx.Err()
	}
	return s.store.Put(ctx, args, data)
}

func shouldRetryStore(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, artifacts.ErrQuotaExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "unavailable")
}

// deriveContent extracts and analyzes after the commit. It runs on a budget
// detached from the request's cancellation: the version exists either way,
// and a failure only marks it extraction_failed.
func (s *Service) deriveContent(ctx context.Context, format sniff.Format, dv artifacts.DocumentVersion, data []byte) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ExtractTimeout)
	defer cancel()

	fields := map[string]any{
		"document_id": dv.DocumentID,
		"version":     dv.Version,
		"format":      string(format),
	}

	extractor, err := extract.ForFormat(format, s.opts.MaxPDFPages)
	if err != nil {
		s.markExtractionFailed(dctx, dv, fields, err)
		return
	}
	content, err := extractor.Extract(dctx, data)
	if err != nil {
		s.markExtractionFailed(dctx, dv, fields, err)
		return
	}

	text := content.Text
	if s.opts.RedactPII {
		text = extract.Redact(text)
	}
	result := s.analyzer.Run(text)

	derived := artifacts.ExtractedContent{
		Status:          artifacts.ExtractionOK,
		Text:            text,
		PageCount:       content.PageCount,
		Sections:        result.Sections,
		Skills:          result.Skills,
		ExperienceLevel: result.ExperienceLevel,
	}
	if err := s.store.SaveDerived(dctx, dv, derived); err != nil {
		s.markExtractionFailed(dctx, dv, fields, err)
		return
	}
}

func (s *Service) markExtractionFailed(ctx context.Context, dv artifacts.DocumentVersion, fields map[string]any, cause error) {
	fields["error"] = cause.Error()
	telemetry.Warn("ingest.extract.failed", fields)
	metrics.IncExtractionFailed()
	if err := s.store.MarkExtractionFailed(ctx, dv); err != nil {
		fields["mark_error"] = err.Error()
		telemetry.Error("ingest.extract.mark_failed", fields)
	}
}

// Content returns derived content for a version with an explicit signal when
// extraction failed or has not settled.
func (s *Service) Content(ctx context.Context, ownerID, documentID string, version int) (artifacts.ExtractedContent, error) {
	dv, err := s.store.Version(ctx, ownerID, documentID, version)
	if err != nil {
		return artifacts.ExtractedContent{}, err
	}
	switch dv.ExtractionStatus {
	case artifacts.ExtractionFailed:
		return artifacts.ExtractedContent{}, ErrExtractionFailed
	case artifacts.ExtractionPending:
		return artifacts.ExtractedContent{}, ErrExtractionPending
	}
	return s.store.Derived(ctx, ownerID, documentID, dv.Version)
}

// Describe, List, Download, and Delete re-check ownership in the store.

func (s *Service) Describe(ctx context.Context, ownerID, documentID string) (artifacts.Document, error) {
	return s.store.Describe(ctx, ownerID, documentID)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]artifacts.Document, error) {
	return s.store.List(ctx, ownerID)
}

func (s *Service) Download(ctx context.Context, ownerID, documentID string, version int) ([]byte, artifacts.DocumentVersion, error) {
	return s.store.Get(ctx, ownerID, documentID, version)
}

func (s *Service) Delete(ctx context.Context, ownerID, documentID string) error {
	return s.store.Delete(ctx, ownerID, documentID)
}

// Requirements describes the upload constraints for clients.
type Requirements struct {
	MinFileBytes       int64               `json:"minFileBytes"`
	MaxFileBytes       int64               `json:"maxFileBytes"`
	MinTextChars       int                 `json:"minTextChars"`
	MaxTextChars       int                 `json:"maxTextChars"`
	MaxActiveDocuments int                 `json:"maxActiveDocuments"`
	MaxStoredBytes     int64               `json:"maxStoredBytes"`
	AcceptedFormats    map[string][]string `json:"acceptedFormats"`
}

// Requirements returns the platform's published constraints.
func (s *Service) Requirements() Requirements {
	return Requirements{
		MinFileBytes:       s.opts.Limits.MinBytes,
		MaxFileBytes:       s.opts.Limits.MaxBytes,
		MinTextChars:       s.opts.Limits.MinTextChars,
		MaxTextChars:       s.opts.Limits.MaxTextChars,
		MaxActiveDocuments: s.opts.Quota.MaxActiveDocuments,
		MaxStoredBytes:     s.opts.Quota.MaxStoredBytes,
		AcceptedFormats: map[string][]string{
			string(artifacts.CategoryResume):         {"pdf", "doc", "docx"},
			string(artifacts.CategoryJobDescription): {"pdf", "doc", "docx", "text"},
			string(artifacts.CategoryText):           {"text"},
		},
	}
}
