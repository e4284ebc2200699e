package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-peerfinder-backend/internal/blob"
	"github.com/tbourn/go-peerfinder-backend/internal/domain"
)

// Version is the opaque token identifying one snapshot state. The zero value
// addresses an absent snapshot; saving against it is a create-only write.
type Version string

var (
	// ErrConflict is returned by Save when another writer committed since
	// the snapshot was loaded. The caller should reload and recompute.
	ErrConflict = errors.New("store: version conflict")

	// ErrContention is returned by Update when the bounded retry budget is
	// exhausted. The whole operation may be retried by the caller.
	ErrContention = errors.New("store: too much contention, try again")

	// ErrUnavailable wraps backend failures: the storage is unreachable or
	// the snapshot is unreadable. No partial write has happened.
	ErrUnavailable = errors.New("store: storage unavailable")
)

// DefaultMaxRetries bounds the internal reload-and-recompute loop of Update.
const DefaultMaxRetries = 3

// Queue is the versioned snapshot store. All mutation paths go through
// Update: load a snapshot, recompute it in full, and commit conditionally.
// It is safe for concurrent use; correctness under concurrency comes from
// the backend's conditional write, not from locking.
type Queue struct {
	backend    blob.Backend
	key        string
	maxRetries int
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries overrides the Update retry budget (minimum 1).
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n >= 1 {
			q.maxRetries = n
		}
	}
}

// New returns a Queue persisting its snapshot under key on backend.
func New(backend blob.Backend, key string, opts ...Option) *Queue {
	q := &Queue{
		backend:    backend,
		key:        key,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load returns the current snapshot and its version. A snapshot that has
// never been written loads as an empty record list with the zero Version.
func (q *Queue) Load(ctx context.Context) ([]domain.Record, Version, error) {
	data, etag, err := q.backend.Get(ctx, q.key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return []domain.Record{}, "", nil
		}
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	recs, err := Decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return recs, Version(etag), nil
}

// Save atomically overwrites the whole snapshot, provided the store still
// holds expected. On success it returns the new version; if another writer
// committed in between it returns ErrConflict and changes nothing.
func (q *Queue) Save(ctx context.Context, recs []domain.Record, expected Version) (Version, error) {
	data, err := Encode(recs)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	etag, err := q.backend.Put(ctx, q.key, data, string(expected))
	if err != nil {
		if errors.Is(err, blob.ErrETagMismatch) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Version(etag), nil
}

// Update runs the optimistic read-modify-write transaction: load a snapshot,
// apply mutate to it, and conditionally save. On conflict the whole
// computation reruns against a fresh snapshot, up to the retry budget; after
// that ErrContention is surfaced.
//
// mutate may run several times, so it must derive everything from the records
// it is handed; any state it captures must be reset on entry. Records may be
// mutated in place and appended to; the returned slice is committed.
// Returning mutated=false skips the write entirely.
//
// The committed (or, for read-only passes, loaded) snapshot is returned so
// callers can derive results without a second load.
func (q *Queue) Update(ctx context.Context, mutate func(recs []domain.Record) ([]domain.Record, bool, error)) ([]domain.Record, error) {
	for attempt := 0; attempt < q.maxRetries; attempt++ {
		recs, version, err := q.Load(ctx)
		if err != nil {
			return nil, err
		}

		out, mutated, err := mutate(recs)
		if err != nil {
			return nil, err
		}
		if !mutated {
			return out, nil
		}

		if _, err := q.Save(ctx, out, version); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return nil, err
		}
		return out, nil
	}
	return nil, ErrContention
}
