// Package store provides the append-only content-record store behind the
// mirror: records keyed by natural key and digest, grouped into immutable,
// monotonically numbered repository versions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

// ErrNotFound is returned when a record or version does not exist.
var ErrNotFound = errors.New("not found")

// Handle is a reference to a stored record. Handles stay valid for the
// lifetime of the store and the record behind one is immutable.
type Handle struct {
	ID     int64
	Key    content.NaturalKey
	Digest content.Digest
}

// RepositoryVersion is an immutable snapshot of a repository's content set.
// Versions are numbered monotonically per repository and never mutated
// after creation; later versions supersede, not delete, earlier ones.
type RepositoryVersion struct {
	ID         int64
	Repository string
	Number     int64
	CreatedAt  time.Time
}

// ContentStore is the persistence contract of the mirror core. Put is
// idempotent on (natural key, digest); there is no delete. Records become
// garbage when no version references them, to be reaped by a retention
// policy outside this core.
type ContentStore interface {
	// Put stores a record, returning the existing handle when an equal
	// record (same natural key and digest) is already present. Safe under
	// concurrent calls.
	Put(ctx context.Context, rec content.Record) (Handle, error)

	// Get returns the record occupying a natural key slot. With a version,
	// the lookup is scoped to that version's membership; without one the
	// most recently stored record wins. ErrNotFound when the slot is empty.
	Get(ctx context.Context, key content.NaturalKey, asOf *RepositoryVersion) (content.Record, error)

	// VersionsContaining lists the numbers of every version of any
	// repository that references the natural key.
	VersionsContaining(ctx context.Context, key content.NaturalKey) ([]int64, error)

	// CreateVersion atomically creates the next version of a repository
	// with exactly the given members. Nothing is visible on failure.
	CreateVersion(ctx context.Context, repository string, members []Handle) (*RepositoryVersion, error)

	// GetVersion fetches one version by repository and number.
	GetVersion(ctx context.Context, repository string, number int64) (*RepositoryVersion, error)

	// LatestVersion returns the highest-numbered version of a repository,
	// or ErrNotFound when the repository has never been synced.
	LatestVersion(ctx context.Context, repository string) (*RepositoryVersion, error)

	// VersionHandles lists the member handles of a version.
	VersionHandles(ctx context.Context, v *RepositoryVersion) ([]Handle, error)

	// RecordsOfType loads all records of one type in a version, ordered by
	// natural key.
	RecordsOfType(ctx context.Context, v *RepositoryVersion, t content.RecordType) ([]content.Record, error)

	Close() error
}
