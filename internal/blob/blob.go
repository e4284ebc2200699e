// Package blob defines the storage seam the queue store is built on: a
// key-addressed byte store with a conditional write primitive. The snapshot
// is one blob; concurrency control is expressed entirely through ETags so
// that every backend — in-memory, filesystem, or database — gives the store
// the same compare-and-swap semantics.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has never been written.
	ErrNotFound = errors.New("blob: not found")

	// ErrETagMismatch is returned by Put when the stored ETag no longer
	// matches the caller's expectation, i.e. a concurrent writer won.
	ErrETagMismatch = errors.New("blob: etag mismatch")
)

// Backend is a key-addressed blob store with conditional overwrite.
//
// Get returns the current bytes and their ETag, or ErrNotFound.
//
// Put overwrites key only if the stored ETag still equals expectedETag and
// returns the new ETag. An empty expectedETag means "create only": the write
// fails with ErrETagMismatch when the key already exists. Implementations
// must make the compare-and-write step atomic with respect to each other.
type Backend interface {
	Get(ctx context.Context, key string) (data []byte, etag string, err error)
	Put(ctx context.Context, key string, data []byte, expectedETag string) (newETag string, err error)
}

// ContentETag derives an ETag from blob content. Backends without a native
// version column use it so that equal bytes always carry equal tags.
func ContentETag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
