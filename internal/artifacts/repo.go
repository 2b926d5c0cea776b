package artifacts

import "context"

// QuotaLimits bounds what one owner may keep stored.
type QuotaLimits struct {
	MaxActiveDocuments int
	MaxStoredBytes     int64
}

// CommitArgs describes one version to commit. The document is found or
// created by its (owner, category, logical name) key.
type CommitArgs struct {
	OwnerID      string
	Category     Category
	LogicalName  string
	SizeBytes    int64
	DetectedMIME string
	ContentHash  string
	ScanStatus   ScanStatus
	Quota        QuotaLimits
}

// PersistFunc flushes the version's bytes while the commit is still open. It
// receives the allocated document and version number and returns the storage
// key the bytes landed under. An error aborts the commit: no version row, no
// quota change.
type PersistFunc func(doc Document, version int) (storageKey string, err error)

// Repo defines persistence operations for documents and their versions.
type Repo interface {
	// CommitVersion allocates the next gap-free version for the logical
	// document, enforces the owner's quota, runs persist, and commits all of
	// it atomically.
	CommitVersion(ctx context.Context, args CommitArgs, persist PersistFunc) (Document, DocumentVersion, error)

	GetDocument(ctx context.Context, ownerID, documentID string) (Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]Document, error)
	GetVersion(ctx context.Context, documentID string, version int) (DocumentVersion, error)

	// MarkDeleted tombstones the document and releases its quota. Version
	// history is retained.
	MarkDeleted(ctx context.Context, ownerID, documentID string) error

	// UpdateExtraction records the outcome of text extraction for a version.
	UpdateExtraction(ctx context.Context, documentID string, version int, status ExtractionStatus, textLength int) error
	SaveExtractedContent(ctx context.Context, content ExtractedContent) error
	GetExtractedContent(ctx context.Context, documentID string, version int) (ExtractedContent, error)

	// ListPendingRescan returns versions stored without a scan verdict.
	ListPendingRescan(ctx context.Context, limit int) ([]DocumentVersion, error)
	// PromoteScanClean clears the pending flag after a late clean verdict.
	PromoteScanClean(ctx context.Context, documentID string, version int) error
	// CondemnVersion tombstones the document after a late infected verdict
	// and returns the storage key so the caller can remove the bytes.
	CondemnVersion(ctx context.Context, documentID string, version int) (string, error)
}
