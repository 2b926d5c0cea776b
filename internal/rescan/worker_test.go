package rescan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"testing"

	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/quarantine"
)

type memObjects struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{blobs: make(map[string][]byte)}
}

func (m *memObjects) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
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

// byPayload scans by payload content: anything containing "virus" is
// infected, anything containing "maybe" stays unknown.
type byPayload struct{}

func (byPayload) Scan(ctx context.Context, data []byte) (quarantine.ScanVerdict, error) {
	switch {
	case bytes.Contains(data, []byte("virus")):
		return quarantine.VerdictInfected, nil
	case bytes.Contains(data, []byte("maybe")):
		return quarantine.VerdictUnknown, nil
	default:
		return quarantine.VerdictClean, nil
	}
}

func putPending(t *testing.T, store *artifacts.Store, name string, payload []byte) (artifacts.Document, artifacts.DocumentVersion) {
	t.Helper()
	doc, dv, err := store.Put(context.Background(), artifacts.CommitArgs{
		OwnerID:      "user-a",
		Category:     artifacts.CategoryResume,
		LogicalName:  name,
		DetectedMIME: "text/plain",
		ScanStatus:   artifacts.ScanPendingRescan,
	}, payload)
	if err != nil {
		t.Fatalf("Put %s: %v", name, err)
	}
	return doc, dv
}

func TestSweepSettlesPendingVersions(t *testing.T) {
	objects := newMemObjects()
	store := artifacts.NewStore(artifacts.NewMemoryRepo(), objects, artifacts.QuotaLimits{})
	ctx := context.Background()

	cleanDoc, cleanVersion := putPending(t, store, "clean.txt", []byte("ordinary resume text"))
	infectedDoc, infectedVersion := putPending(t, store, "infected.txt", []byte("virus payload"))
	_, _ = putPending(t, store, "unclear.txt", []byte("maybe payload"))

	worker := NewWorker(store, byPayload{})
	settled, err := worker.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if settled != 2 {
		t.Fatalf("expected 2 settled versions, got %d", settled)
	}

	dv, err := store.VersionRecord(ctx, cleanDoc.ID, cleanVersion.Version)
	if err != nil {
		t.Fatalf("VersionRecord: %v", err)
	}
	if dv.ScanStatus != artifacts.ScanClean {
		t.Fatalf("clean version not promoted: %s", dv.ScanStatus)
	}

	if _, err := store.Describe(ctx, "user-a", infectedDoc.ID); !errors.Is(err, artifacts.ErrGone) {
		t.Fatalf("infected document: got %v, want ErrGone", err)
	}
	if _, err := objects.Open(ctx, infectedVersion.StorageKey); err == nil {
		t.Fatal("infected bytes still stored")
	}

	// The inconclusive version remains for the next sweep.
	pending, err := store.PendingRescan(ctx, 10)
	if err != nil {
		t.Fatalf("PendingRescan: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 version still pending, got %d", len(pending))
	}
}

func TestProcessIgnoresAlreadySettled(t *testing.T) {
	objects := newMemObjects()
	store := artifacts.NewStore(artifacts.NewMemoryRepo(), objects, artifacts.QuotaLimits{})
	ctx := context.Background()

	doc, dv := putPending(t, store, "clean.txt", []byte("ordinary text"))
	if err := store.PromoteClean(ctx, doc.ID, dv.Version); err != nil {
		t.Fatalf("PromoteClean: %v", err)
	}

	worker := NewWorker(store, byPayload{})
	if err := worker.Process(ctx, Message{DocumentID: doc.ID, Version: dv.Version}); err != nil {
		t.Fatalf("Process: %v", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		DocumentID: "doc-123",
		Version:    2,
		RequestID:  "req-456",
		EnqueuedAt: "2026-08-28T10:00:00Z",
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}
