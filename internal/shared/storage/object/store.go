package object

import (
	"context"
	"io"
)

// ObjectStore persists binary objects at internally generated keys. Keys are
// never derived from client-supplied filenames; callers build them from owner,
// category, document id, and version.
type ObjectStore interface {
	// Put writes the full payload at key. The object must not be observable
	// by Open until Put returns.
	Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
