// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package component

import (
	"context"
	"time"
)

// Document is a structured key/value metadata document carried by a revision.
type Document map[string]interface{}

// Revision is an immutable, versioned snapshot of a component's binary data
// and/or metadata. Either Data or Metadata may be nil when that half was not
// part of the revision; both nil is rejected at creation.
type Revision struct {
	ComponentID int64
	Version     int
	Data        []byte
	Metadata    Document
	CreatedAt   time.Time
}

// Revisions is the database for the append-only revision history.
//
// Data and metadata are versioned independently: the "current" value of
// either is taken from the highest-versioned revision that carries it,
// scanning backward from the bounding version.
//
// architecture: Database
type Revisions interface {
	// Append writes the next revision for a component, computing
	// version = max + 1 atomically with the insert. The first revision
	// must carry data; ErrConflict is returned if a concurrent append won
	// the same version slot.
	Append(ctx context.Context, componentID int64, data []byte, metadata Document, created time.Time) (*Revision, error)
	// MaxVersion returns the highest version, or 0 if no revisions exist.
	MaxVersion(ctx context.Context, componentID int64) (int, error)
	// CurrentData returns the data of the highest-versioned revision with
	// non-nil data, or nil if no revision carries data.
	CurrentData(ctx context.Context, componentID int64) ([]byte, error)
	// CurrentMetadata returns the metadata of the highest-versioned
	// revision with non-nil metadata, or an empty document.
	CurrentMetadata(ctx context.Context, componentID int64) (Document, error)
	// DataAt is CurrentData bounded at version. A version outside
	// [1, max] returns ErrOutOfRange.
	DataAt(ctx context.Context, componentID int64, version int) ([]byte, error)
	// MetadataAt is CurrentMetadata bounded at version. A version outside
	// [1, max] returns ErrOutOfRange.
	MetadataAt(ctx context.Context, componentID int64, version int) (Document, error)
	// List returns all revisions of a component in ascending version order.
	List(ctx context.Context, componentID int64) ([]*Revision, error)
}
