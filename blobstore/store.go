package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing immutable data blobs (a
// partition payload file, its manifest, a topology snapshot).
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create opens a blob for writing; the blob is only visible to
	// Open/List once Close succeeds.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically in one call.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a blob that does not exist is not
	// an error.
	Delete(ctx context.Context, name string) error
	// List returns every blob name with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes starting at off, following io.ReaderAt's
	// contract except for taking a context so a remote-backed Blob can
	// honor cancellation.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange opens a streaming reader over [off, off+length).
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a handle to a blob being written. Close must be called
// to make the write visible; an aborted write (process crash, explicit
// Abort where supported) must never leave a partial blob visible to
// Open/List.
type WritableBlob interface {
	io.Writer
	io.Closer
	// Sync flushes any buffered data to stable storage without closing.
	Sync() error
}

// Mappable is an optional interface for Blobs that support memory mapping.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	// This is a zero-copy operation if supported.
	Bytes() ([]byte, error)
}
