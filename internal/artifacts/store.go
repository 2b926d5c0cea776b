// Package artifacts is the versioned document store: every accepted upload
// becomes an immutable version of a logical document, quota-accounted per
// owner and keyed by server-generated storage keys.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"ingest-backend/internal/shared/storage/object"
	"ingest-backend/internal/sniff"
)

// Store coordinates the repo and the object store. A per-logical-key mutex
// serializes writers to the same document so version allocation stays
// gap-free even on the memory repo; the Postgres repo's row locks make the
// same guarantee across processes.
type Store struct {
	repo    Repo
	objects object.ObjectStore
	quota   QuotaLimits

	mu    sync.Mutex
	locks map[string]*keyedLock
}

// keyedLock is reference-counted so the lock map only holds keys with
// writers in flight instead of one entry per key ever written.
type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore constructs a Store.
func NewStore(repo Repo, objects object.ObjectStore, quota QuotaLimits) *Store {
	return &Store{
		repo:    repo,
		objects: objects,
		quota:   quota,
		locks:   make(map[string]*keyedLock),
	}
}

// StorageKey builds the canonical object key for a version. Every component
// is server-generated; the client's filename never reaches the key.
func StorageKey(ownerID string, category Category, documentID string, version int, format sniff.Format) string {
	return fmt.Sprintf("%s/%s/%s/v%d.%s", ownerID, category, documentID, version, sniff.Ext(format))
}

// TextKeyFor is where a version's extracted text lives.
func TextKeyFor(storageKey string) string {
	return storageKey + ".extracted.txt"
}

func (s *Store) acquireLock(key string) *keyedLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyedLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store) releaseLock(key string, l *keyedLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs <= 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

// Put commits data as the next version of (owner, category, logicalName).
// The bytes are fully flushed to the object store before the version row
// commits, so a reader can never observe a version whose bytes are missing.
func (s *Store) Put(ctx context.Context, args CommitArgs, data []byte) (Document, DocumentVersion, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, DocumentVersion{}, err
	}
	args.SizeBytes = int64(len(data))
	args.Quota = s.quota

	key := fmt.Sprintf("%s/%s/%s", args.OwnerID, args.Category, args.LogicalName)
	lock := s.acquireLock(key)
	defer s.releaseLock(key, lock)

	format := sniff.Detect(data)
	var flushedKey string
	doc, dv, err := s.repo.CommitVersion(ctx, args, func(doc Document, version int) (string, error) {
		storageKey := StorageKey(args.OwnerID, args.Category, doc.ID, version, format)
		if _, err := s.objects.Put(ctx, storageKey, args.DetectedMIME, bytes.NewReader(data)); err != nil {
			return "", fmt.Errorf("flush version bytes: %w", err)
		}
		flushedKey = storageKey
		return storageKey, nil
	})
	if err != nil {
		if flushedKey != "" {
			// The version row never committed, so the flushed bytes are
			// unreachable orphans. Best-effort removal, detached from the
			// (possibly cancelled) request context.
			_ = s.objects.Delete(context.WithoutCancel(ctx), flushedKey)
		}
		return Document{}, DocumentVersion{}, err
	}
	return doc, dv, nil
}

// Version resolves one version row after the ownership check.
// version <= 0 resolves to the document's current version.
func (s *Store) Version(ctx context.Context, ownerID, documentID string, version int) (DocumentVersion, error) {
	doc, err := s.repo.GetDocument(ctx, ownerID, documentID)
	if err != nil {
		return DocumentVersion{}, err
	}
	if version <= 0 {
		version = doc.CurrentVersion
	}
	return s.repo.GetVersion(ctx, documentID, version)
}

// Get returns the bytes of one version after re-checking ownership.
// version <= 0 resolves to the document's current version.
func (s *Store) Get(ctx context.Context, ownerID, documentID string, version int) ([]byte, DocumentVersion, error) {
	dv, err := s.Version(ctx, ownerID, documentID, version)
	if err != nil {
		return nil, DocumentVersion{}, err
	}
	rc, err := s.objects.Open(ctx, dv.StorageKey)
	if err != nil {
		return nil, DocumentVersion{}, fmt.Errorf("open version bytes: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, DocumentVersion{}, fmt.Errorf("read version bytes: %w", err)
	}
	return data, dv, nil
}

// Describe returns document metadata after the ownership check.
func (s *Store) Describe(ctx context.Context, ownerID, documentID string) (Document, error) {
	return s.repo.GetDocument(ctx, ownerID, documentID)
}

// List returns the owner's documents.
func (s *Store) List(ctx context.Context, ownerID string) ([]Document, error) {
	return s.repo.ListDocuments(ctx, ownerID)
}

// Delete tombstones the document. Stored bytes and version history remain
// for audit; only the quota is released.
func (s *Store) Delete(ctx context.Context, ownerID, documentID string) error {
	return s.repo.MarkDeleted(ctx, ownerID, documentID)
}

// SaveDerived persists extracted text to the object store and the analysis
// metadata to the repo. Called after the version row exists; failure here
// marks extraction failed, it never unwinds the version.
func (s *Store) SaveDerived(ctx context.Context, dv DocumentVersion, content ExtractedContent) error {
	textKey := TextKeyFor(dv.StorageKey)
	if content.Text != "" {
		if _, err := s.objects.Put(ctx, textKey, "text/plain; charset=utf-8", strings.NewReader(content.Text)); err != nil {
			return fmt.Errorf("flush extracted text: %w", err)
		}
		content.TextKey = textKey
	}
	content.DocumentID = dv.DocumentID
	content.Version = dv.Version
	if err := s.repo.SaveExtractedContent(ctx, content); err != nil {
		return err
	}
	return s.repo.UpdateExtraction(ctx, dv.DocumentID, dv.Version, content.Status, len(content.Text))
}

// MarkExtractionFailed records a failed extraction on the version row.
func (s *Store) MarkExtractionFailed(ctx context.Context, dv DocumentVersion) error {
	return s.repo.UpdateExtraction(ctx, dv.DocumentID, dv.Version, ExtractionFailed, 0)
}

// Derived returns extracted content for a version, loading the text body
// from the object store. version <= 0 resolves to the current version.
func (s *Store) Derived(ctx context.Context, ownerID, documentID string, version int) (ExtractedContent, error) {
	doc, err := s.repo.GetDocument(ctx, ownerID, documentID)
	if err != nil {
		return ExtractedContent{}, err
	}
	if version <= 0 {
		version = doc.CurrentVersion
	}
	content, err := s.repo.GetExtractedContent(ctx, documentID, version)
	if err != nil {
		return ExtractedContent{}, err
	}
	if content.Text == "" && content.TextKey != "" {
		rc, err := s.objects.Open(ctx, content.TextKey)
		if err != nil {
			return ExtractedContent{}, fmt.Errorf("open extracted text: %w", err)
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			return ExtractedContent{}, fmt.Errorf("read extracted text: %w", err)
		}
		content.Text = string(raw)
	}
	return content, nil
}

// VersionRecord returns one version row without an ownership check. Callers
// are internal workers operating on server-selected rows, never request
// handlers.
func (s *Store) VersionRecord(ctx context.Context, documentID string, version int) (DocumentVersion, error) {
	return s.repo.GetVersion(ctx, documentID, version)
}

// RawVersionBytes loads a version's stored bytes for internal reprocessing.
func (s *Store) RawVersionBytes(ctx context.Context, dv DocumentVersion) ([]byte, error) {
	rc, err := s.objects.Open(ctx, dv.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open version bytes: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// RemoveCondemned tombstones the document for an infected version and
// removes the stored bytes.
func (s *Store) RemoveCondemned(ctx context.Context, documentID string, version int) error {
	storageKey, err := s.repo.CondemnVersion(ctx, documentID, version)
	if err != nil {
		return err
	}
	if err := s.objects.Delete(ctx, storageKey); err != nil {
		return fmt.Errorf("delete condemned bytes: %w", err)
	}
	return nil
}

// PromoteClean clears the pending flag after a late clean verdict.
func (s *Store) PromoteClean(ctx context.Context, documentID string, version int) error {
	return s.repo.PromoteScanClean(ctx, documentID, version)
}

// PendingRescan lists versions awaiting a late verdict.
func (s *Store) PendingRescan(ctx context.Context, limit int) ([]DocumentVersion, error) {
	return s.repo.ListPendingRescan(ctx, limit)
}
