package artifacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// CommitVersion serializes the commit on the document row and the owner's
// quota row with SELECT ... FOR UPDATE, so concurrent uploads to the same
// logical document allocate gap-free version numbers and the quota check is
// atomic with the increment. persist runs inside the transaction: when it
// fails or the context is cancelled, the rollback leaves no version row and
// no quota change.
func (r *PGRepo) CommitVersion(ctx context.Context, args CommitArgs, persist PersistFunc) (Document, DocumentVersion, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, DocumentVersion{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO owner_quotas (owner_id, active_documents, stored_bytes)
VALUES ($1, 0, 0)
ON CONFLICT (owner_id) DO NOTHING`, args.OwnerID); err != nil {
		return Document{}, DocumentVersion{}, err
	}

	var activeDocuments int
	var storedBytes int64
	if err := tx.QueryRowContext(ctx, `
SELECT active_documents, stored_bytes FROM owner_quotas WHERE owner_id = $1 FOR UPDATE`,
		args.OwnerID).Scan(&activeDocuments, &storedBytes); err != nil {
		return Document{}, DocumentVersion{}, err
	}

	doc := Document{
		OwnerID:     args.OwnerID,
		Category:    args.Category,
		LogicalName: args.LogicalName,
		Status:      StatusActive,
		CreatedAt:   now,
	}
	var status string
	err = tx.QueryRowContext(ctx, `
SELECT id, status, current_version, created_at
FROM documents
WHERE owner_id = $1 AND category = $2 AND logical_name = $3
FOR UPDATE`,
		args.OwnerID, string(args.Category), args.LogicalName).
		Scan(&doc.ID, &status, &doc.CurrentVersion, &doc.CreatedAt)

	newDocument := false
	resurrected := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		newDocument = true
		doc.ID = uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
INSERT INTO documents (id, owner_id, category, logical_name, status, current_version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $6)`,
			doc.ID, doc.OwnerID, string(doc.Category), doc.LogicalName, string(StatusActive), now); err != nil {
			return Document{}, DocumentVersion{}, err
		}
	case err != nil:
		return Document{}, DocumentVersion{}, err
	default:
		// A deleted lineage re-enters quota as a new active document.
		resurrected = Status(status) == StatusDeleted
		newDocument = resurrected
	}

	// Resurrecting a deleted lineage makes its retained history readable
	// again, so those bytes re-enter the owner's quota with it.
	var retainedBytes int64
	if resurrected {
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(SUM(size_bytes), 0) FROM document_versions WHERE document_id = $1`,
			doc.ID).Scan(&retainedBytes); err != nil {
			return Document{}, DocumentVersion{}, err
		}
	}

	if args.Quota.MaxActiveDocuments > 0 && newDocument &&
		activeDocuments >= args.Quota.MaxActiveDocuments {
		return Document{}, DocumentVersion{}, ErrQuotaExceeded
	}
	if args.Quota.MaxStoredBytes > 0 &&
		storedBytes+retainedBytes+args.SizeBytes > args.Quota.MaxStoredBytes {
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
	if _, err := tx.ExecContext(ctx, `
INSERT INTO document_versions (document_id, version, size_bytes, detected_mime, content_hash, text_length, scan_status, extraction_status, storage_key, created_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9)`,
		dv.DocumentID, dv.Version, dv.SizeBytes, dv.DetectedMIME, dv.ContentHash,
		string(dv.ScanStatus), string(dv.ExtractionStatus), dv.StorageKey, dv.CreatedAt); err != nil {
		return Document{}, DocumentVersion{}, err
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET current_version = $2, status = $3, updated_at = $4 WHERE id = $1`,
		doc.ID, version, string(StatusActive), now); err != nil {
		return Document{}, DocumentVersion{}, err
	}

	quotaDocs := 0
	if newDocument {
		quotaDocs = 1
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE owner_quotas SET active_documents = active_documents + $2, stored_bytes = stored_bytes + $3 WHERE owner_id = $1`,
		args.OwnerID, quotaDocs, retainedBytes+args.SizeBytes); err != nil {
		return Document{}, DocumentVersion{}, err
	}

	if err := tx.Commit(); err != nil {
		return Document{}, DocumentVersion{}, err
	}

	doc.CurrentVersion = version
	doc.Status = StatusActive
	doc.UpdatedAt = now
	return doc, dv, nil
}

// GetDocument returns the document only when the caller owns it. Ownership
// failures and absence are indistinguishable to the caller.
func (r *PGRepo) GetDocument(ctx context.Context, ownerID, documentID string) (Document, error) {
	const query = `
SELECT id, owner_id, category, logical_name, status, current_version, created_at, updated_at
FROM documents
WHERE id = $1 AND owner_id = $2
LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID, ownerID))
	if err != nil {
		return Document{}, err
	}
	if doc.Status == StatusDeleted {
		return Document{}, ErrGone
	}
	return doc, nil
}

// ListDocuments returns the owner's documents, newest first.
func (r *PGRepo) ListDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	const query = `
SELECT id, owner_id, category, logical_name, status, current_version, created_at, updated_at
FROM documents
WHERE owner_id = $1 AND status <> 'deleted'
ORDER BY updated_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var category, status string
	err := row.Scan(&doc.ID, &doc.OwnerID, &category, &doc.LogicalName, &status,
		&doc.CurrentVersion, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	doc.Category = Category(category)
	doc.Status = Status(status)
	return doc, nil
}

// GetVersion returns one version row.
func (r *PGRepo) GetVersion(ctx context.Context, documentID string, version int) (DocumentVersion, error) {
	const query = `
SELECT document_id, version, size_bytes, detected_mime, content_hash, text_length, scan_status, extraction_status, storage_key, created_at
FROM document_versions
WHERE document_id = $1 AND version = $2
LIMIT 1`
	var dv DocumentVersion
	var scanStatus, extractionStatus string
	err := r.DB.QueryRowContext(ctx, query, documentID, version).Scan(
		&dv.DocumentID, &dv.Version, &dv.SizeBytes, &dv.DetectedMIME, &dv.ContentHash,
		&dv.TextLength, &scanStatus, &extractionStatus, &dv.StorageKey, &dv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentVersion{}, ErrNotFound
		}
		return DocumentVersion{}, err
	}
	dv.ScanStatus = ScanStatus(scanStatus)
	dv.ExtractionStatus = ExtractionStatus(extractionStatus)
	return dv, nil
}

// MarkDeleted tombstones the document and releases its quota in one
// transaction.
func (r *PGRepo) MarkDeleted(ctx context.Context, ownerID, documentID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
SELECT status FROM documents WHERE id = $1 AND owner_id = $2 FOR UPDATE`,
		documentID, ownerID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if Status(status) == StatusDeleted {
		return ErrGone
	}

	var releasedBytes int64
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(SUM(size_bytes), 0) FROM document_versions WHERE document_id = $1`,
		documentID).Scan(&releasedBytes); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET status = 'deleted', updated_at = $2 WHERE id = $1`,
		documentID, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE owner_quotas
SET active_documents = GREATEST(active_documents - 1, 0),
    stored_bytes = GREATEST(stored_bytes - $2, 0)
WHERE owner_id = $1`,
		ownerID, releasedBytes); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateExtraction records the extraction outcome on the version row.
func (r *PGRepo) UpdateExtraction(ctx context.Context, documentID string, version int, status ExtractionStatus, textLength int) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE document_versions SET extraction_status = $3, text_length = $4
WHERE document_id = $1 AND version = $2`,
		documentID, version, string(status), textLength)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SaveExtractedContent upserts derived content for a version.
func (r *PGRepo) SaveExtractedContent(ctx context.Context, content ExtractedContent) error {
	sections, err := marshalJSONB(content.Sections)
	if err != nil {
		return err
	}
	skills, err := marshalJSONB(content.Skills)
	if err != nil {
		return err
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now().UTC()
	}
	_, err = r.DB.ExecContext(ctx, `
INSERT INTO extracted_content (document_id, version, status, text_key, page_count, sections, skills, experience_level, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (document_id, version) DO UPDATE
SET status = EXCLUDED.status,
    text_key = EXCLUDED.text_key,
    page_count = EXCLUDED.page_count,
    sections = EXCLUDED.sections,
    skills = EXCLUDED.skills,
    experience_level = EXCLUDED.experience_level`,
		content.DocumentID, content.Version, string(content.Status), content.TextKey,
		content.PageCount, sections, skills, string(content.ExperienceLevel), content.CreatedAt)
	return err
}

// GetExtractedContent returns derived content for a version. The text itself
// lives in the object store under TextKey.
func (r *PGRepo) GetExtractedContent(ctx context.Context, documentID string, version int) (ExtractedContent, error) {
	const query = `
SELECT document_id, version, status, text_key, page_count, sections, skills, experience_level, created_at
FROM extracted_content
WHERE document_id = $1 AND version = $2
LIMIT 1`
	var c ExtractedContent
	var status, level string
	var sections, skills sql.NullString
	err := r.DB.QueryRowContext(ctx, query, documentID, version).Scan(
		&c.DocumentID, &c.Version, &status, &c.TextKey, &c.PageCount,
		&sections, &skills, &level, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExtractedContent{}, ErrNotFound
		}
		return ExtractedContent{}, err
	}
	c.Status = ExtractionStatus(status)
	c.ExperienceLevel = ExperienceLevel(level)
	if sections.Valid {
		_ = json.Unmarshal([]byte(sections.String), &c.Sections)
	}
	if skills.Valid {
		_ = json.Unmarshal([]byte(skills.String), &c.Skills)
	}
	return c, nil
}

// ListPendingRescan returns versions awaiting a late scan verdict.
func (r *PGRepo) ListPendingRescan(ctx context.Context, limit int) ([]DocumentVersion, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT v.document_id, v.version, v.size_bytes, v.detected_mime, v.content_hash, v.text_length, v.scan_status, v.extraction_status, v.storage_key, v.created_at
FROM document_versions v
JOIN documents d ON d.id = v.document_id
WHERE v.scan_status = 'pending_rescan' AND d.status <> 'deleted'
ORDER BY v.created_at
LIMIT $1`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DocumentVersion{}
	for rows.Next() {
		var dv DocumentVersion
		var scanStatus, extractionStatus string
		if err := rows.Scan(&dv.DocumentID, &dv.Version, &dv.SizeBytes, &dv.DetectedMIME,
			&dv.ContentHash, &dv.TextLength, &scanStatus, &extractionStatus,
			&dv.StorageKey, &dv.CreatedAt); err != nil {
			return nil, err
		}
		dv.ScanStatus = ScanStatus(scanStatus)
		dv.ExtractionStatus = ExtractionStatus(extractionStatus)
		out = append(out, dv)
	}
	return out, rows.Err()
}

// PromoteScanClean clears the pending flag after a late clean verdict.
func (r *PGRepo) PromoteScanClean(ctx context.Context, documentID string, version int) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE document_versions SET scan_status = 'clean'
WHERE document_id = $1 AND version = $2 AND scan_status = 'pending_rescan'`,
		documentID, version)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CondemnVersion tombstones the document after a late infected verdict and
// returns the storage key so the caller can remove the bytes.
func (r *PGRepo) CondemnVersion(ctx context.Context, documentID string, version int) (string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var storageKey string
	err = tx.QueryRowContext(ctx, `
SELECT storage_key FROM document_versions WHERE document_id = $1 AND version = $2`,
		documentID, version).Scan(&storageKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}

	var ownerID, status string
	err = tx.QueryRowContext(ctx, `
SELECT owner_id, status FROM documents WHERE id = $1 FOR UPDATE`, documentID).
		Scan(&ownerID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}

	if Status(status) != StatusDeleted {
		var releasedBytes int64
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(SUM(size_bytes), 0) FROM document_versions WHERE document_id = $1`,
			documentID).Scan(&releasedBytes); err != nil {
			return "", err
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
UPDATE documents SET status = 'deleted', updated_at = $2 WHERE id = $1`,
			documentID, now); err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE owner_quotas
SET active_documents = GREATEST(active_documents - 1, 0),
    stored_bytes = GREATEST(stored_bytes - $2, 0)
WHERE owner_id = $1`,
			ownerID, releasedBytes); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return storageKey, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalJSONB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
