// Package objectstore defines the object-store capability Envoy consumes:
// bucket lifecycle, opaque-bytes object bodies, and prefix listing/deletion.
// Keys are UTF-8 strings; List must return them in an order sortable
// lexicographically, since lexicographic order is ordinal order for chunk
// keys by construction.
package objectstore

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by GetObject when key does not exist.
var ErrObjectNotFound = errors.New("objectstore: object not found")

// ErrStoreClosed is returned when an operation is attempted after Close.
var ErrStoreClosed = errors.New("objectstore: store is closed")

// Store is the object-store capability required by pkg/envoy. Implementations
// need not be safe for concurrent bucket-lifecycle calls (BucketExists,
// CreateBucket) but must support concurrent PutObject/GetObject from an
// upload/download worker pool.
type Store interface {
	// BucketExists reports whether the configured bucket exists.
	BucketExists(ctx context.Context) (bool, error)

	// CreateBucket creates the configured bucket. Safe to call when it
	// already exists only if the underlying service is idempotent about
	// it; callers should check BucketExists first.
	CreateBucket(ctx context.Context) error

	// PutObject writes body under key, overwriting any existing object.
	PutObject(ctx context.Context, key string, body []byte) error

	// GetObject reads the full body of key. Returns ErrObjectNotFound if
	// key does not exist.
	GetObject(ctx context.Context, key string) ([]byte, error)

	// ListObjects returns every key with the given prefix, in lexicographic
	// order. max caps the number of keys returned; max <= 0 means unlimited.
	ListObjects(ctx context.Context, prefix string, max int) ([]string, error)

	// DeleteObjects deletes every object whose key has the given prefix.
	// Deleting a prefix with no matching objects is not an error.
	DeleteObjects(ctx context.Context, prefix string) error

	// Close releases any resources held by the store.
	Close() error
}
