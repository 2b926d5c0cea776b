package artifacts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps documents in memory and is safe for concurrent use. One
// mutex guards everything, which also serializes commits the way the
// Postgres row locks do.
type MemoryRepo struct {
	mu       sync.Mutex
	docs     map[string]Document
	byKey    map[string]string
	versions map[string]map[int]DocumentVersion
	content  map[string]ExtractedContent
	quotas   map[string]*ownerQuota
}

type ownerQuota struct {
	activeDocuments int
	storedBytes     int64
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:     make(map[string]Document),
		byKey:    make(map[string]string),
		versions: make(map[string]map[int]DocumentVersion),
		content:  make(map[string]ExtractedContent),
		quotas:   make(map[string]*ownerQuota),
	}
}

func logicalKey(ownerID string, category Category, logicalName string) string {
	return ownerID + "\x00" + string(category) + "\x00" + logicalName
}

func contentKey(documentID string, version int) string {
	return fmt.Sprintf("%s\x00%d", documentID, version)
}

// CommitVersion allocates the next version, enforces quota, runs persist, and
// only then mutates state. A persist failure leaves the repo untouched.
func (r *MemoryRepo) CommitVersion(ctx context.Context, args CommitArgs, persist PersistFunc) (Document, DocumentVersion, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, DocumentVersion{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := logicalKey(args.OwnerID, args.Category, args.LogicalName)

	doc, existing := r.lookupByKey(key)
	newDocument := !existing || doc.Status == StatusDeleted
	if !existing {
		doc = Document{
			ID:          uuid.NewString(),
			OwnerID:     args.OwnerID,
			Category:    args.Category,
			LogicalName: args.LogicalName,
			Status:      StatusActive,
			CreatedAt:   now,
		}
	}

	// Recommitting to a deleted lineage makes its retained history readable
	// again, so those bytes re-enter the owner's quota with it. Otherwise a
	// delete-reupload cycle would retain unbounded readable bytes.
	var retainedBytes int64
	if existing && doc.Status == StatusDeleted {
		for _, dv := range r.versions[doc.ID] {
			retainedBytes += dv.SizeBytes
		}
	}

	quota := r.quotaFor(args.OwnerID)
	if args.Quota.MaxActiveDocuments > 0 && newDocument &&
		quota.activeDocuments >= args.Quota.MaxActiveDocuments {
		return Document{}, DocumentVersion{}, ErrQuotaExceeded
	}
	if args.Quota.MaxStoredBytes > 0 &&
		quota.storedBytes+retainedBytes+args.SizeBytes > args.Quota.MaxStoredBytes {
		return Document{}, DocumentVersion{}, ErrQuotaExceeded
	}

	version := doc.CurrentVersion + 1
	storageKey, err := persist(doc, version)
	if err != nil {
		return Document{}, DocumentVersion{}, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, DocumentVersion{}, err
	}

	doc.CurrentVersion = version
	doc.Status = StatusActive
	doc.UpdatedAt = now
	r.docs[doc.ID] = doc
	r.byKey[key] = doc.ID

	dv := DocumentVersion{
		DocumentID:       doc.ID,
		Version:          version,
		SizeBytes:        args.SizeBytes,
		DetectedMIME:     args.DetectedMIME,
		ContentHash:      args.ContentHash,
		ScanStatus:       args.ScanStatus,
		ExtractionStatus: ExtractionPending,
		StorageKey:       storageKey,
		CreatedAt:        now,
	}
	if r.versions[doc.ID] == nil {
		r.versions[doc.ID] = make(map[int]DocumentVersion)
	}
	r.versions[doc.ID][version] = dv

	if newDocument {
		quota.activeDocuments++
	}
	quota.storedBytes += retainedBytes + args.SizeBytes
	return doc, dv, nil
}

func (r *MemoryRepo) lookupByKey(key string) (Document, bool) {
	id, ok := r.byKey[key]
	if !ok {
		return Document{}, false
	}
	doc, ok := r.docs[id]
	return doc, ok
}

func (r *MemoryRepo) quotaFor(ownerID string) *ownerQuota {
	q, ok := r.quotas[ownerID]
	if !ok {
		q = &ownerQuota{}
		r.quotas[ownerID] = q
	}
	return q
}

// GetDocument returns the document only when the caller owns it.
func (r *MemoryRepo) GetDocument(ctx context.Context, ownerID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.OwnerID != ownerID {
		return Document{}, ErrNotFound
	}
	if doc.Status == StatusDeleted {
		return Document{}, ErrGone
	}
	return doc, nil
}

// ListDocuments returns the owner's documents, newest first.
func (r *MemoryRepo) ListDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Document{}
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID && doc.Status != StatusDeleted {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetVersion returns one version row.
func (r *MemoryRepo) GetVersion(ctx context.Context, documentID string, version int) (DocumentVersion, error) {
	if err := ctx.Err(); err != nil {
		return DocumentVersion{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dv, ok := r.versions[documentID][version]
	if !ok {
		return DocumentVersion{}, ErrNotFound
	}
	return dv, nil
}

// MarkDeleted tombstones the document and releases its quota.
func (r *MemoryRepo) MarkDeleted(ctx context.Context, ownerID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok || doc.OwnerID != ownerID {
		return ErrNotFound
	}
	if doc.Status == StatusDeleted {
		return ErrGone
	}
	r.releaseQuota(doc)
	doc.Status = StatusDeleted
	doc.UpdatedAt = time.Now().UTC()
	r.docs[documentID] = doc
	return nil
}

func (r *MemoryRepo) releaseQuota(doc Document) {
	quota := r.quotaFor(doc.OwnerID)
	if quota.activeDocuments > 0 {
		quota.activeDocuments--
	}
	for _, dv := range r.versions[doc.ID] {
		quota.storedBytes -= dv.SizeBytes
	}
	if quota.storedBytes < 0 {
		quota.storedBytes = 0
	}
}

// UpdateExtraction records the extraction outcome on the version row.
func (r *MemoryRepo) UpdateExtraction(ctx context.Context, documentID string, version int, status ExtractionStatus, textLength int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dv, ok := r.versions[documentID][version]
	if !ok {
		return ErrNotFound
	}
	dv.ExtractionStatus = status
	dv.TextLength = textLength
	r.versions[documentID][version] = dv
	return nil
}

// SaveExtractedContent stores derived content for a version.
func (r *MemoryRepo) SaveExtractedContent(ctx context.Context, content ExtractedContent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now().UTC()
	}
	r.content[contentKey(content.DocumentID, content.Version)] = content
	return nil
}

// GetExtractedContent returns derived content for a version.
func (r *MemoryRepo) GetExtractedContent(ctx context.Context, documentID string, version int) (ExtractedContent, error) {
	if err := ctx.Err(); err != nil {
		return ExtractedContent{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.content[contentKey(documentID, version)]
	if !ok {
		return ExtractedContent{}, ErrNotFound
	}
	return c, nil
}

// ListPendingRescan returns versions awaiting a late scan verdict.
func (r *MemoryRepo) ListPendingRescan(ctx context.Context, limit int) ([]DocumentVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []DocumentVersion{}
	for docID, byVersion := range r.versions {
		doc, ok := r.docs[docID]
		if !ok || doc.Status == StatusDeleted {
			continue
		}
		for _, dv := range byVersion {
			if dv.ScanStatus == ScanPendingRescan {
				out = append(out, dv)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Version < out[j].Version
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PromoteScanClean clears the pending flag after a late clean verdict.
func (r *MemoryRepo) PromoteScanClean(ctx context.Context, documentID string, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dv, ok := r.versions[documentID][version]
	if !ok {
		return ErrNotFound
	}
	dv.ScanStatus = ScanClean
	r.versions[documentID][version] = dv
	return nil
}

// CondemnVersion tombstones the document after a late infected verdict.
func (r *MemoryRepo) CondemnVersion(ctx context.Context, documentID string, version int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dv, ok := r.versions[documentID][version]
	if !ok {
		return "", ErrNotFound
	}
	doc, ok := r.docs[documentID]
	if ok && doc.Status != StatusDeleted {
		r.releaseQuota(doc)
		doc.Status = StatusDeleted
		doc.UpdatedAt = time.Now().UTC()
		r.docs[documentID] = doc
	}
	return dv.StorageKey, nil
}
