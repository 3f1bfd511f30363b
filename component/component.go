// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package component implements the versioned component store: append-only
// revisions of binary data and metadata, a named attribute graph between
// components, and lease based editing locks.
package component

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// DefaultContentType is used when a component does not declare a content type.
const DefaultContentType = "none"

var slugRegexp = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// Key identifies a component by slug, optionally scoped by a year/month
// partition for human-browsable addressing. An unpartitioned key has both
// year and month set to zero.
type Key struct {
	Slug  string
	Year  int
	Month int
}

// String implements fmt.Stringer.
func (key Key) String() string {
	if key.Partitioned() {
		return fmt.Sprintf("%04d/%02d/%s", key.Year, key.Month, key.Slug)
	}
	return key.Slug
}

// Partitioned reports whether the key carries a year/month partition.
func (key Key) Partitioned() bool {
	return key.Year != 0 || key.Month != 0
}

// Validate checks that the slug is a non-empty URL-safe identifier and that
// year and month are either both unset or both valid.
func (key Key) Validate() error {
	if key.Slug == "" {
		return ErrValidation.New("slug is required")
	}
	if !slugRegexp.MatchString(key.Slug) {
		return ErrValidation.New("invalid slug: %q", key.Slug)
	}
	if !key.Partitioned() {
		return nil
	}
	if key.Year < 1 {
		return ErrValidation.New("invalid year: %d", key.Year)
	}
	if key.Month < 1 || key.Month > 12 {
		return ErrValidation.New("invalid month: %d", key.Month)
	}
	return nil
}

// Component is a named, classified unit of content in the repository.
type Component struct {
	ID          int64
	Slug        string
	Year        int
	Month       int
	ContentType string
	SchemaName  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the addressing key of the component.
func (component *Component) Key() Key {
	return Key{Slug: component.Slug, Year: component.Year, Month: component.Month}
}

// Components is the database for component records.
//
// architecture: Database
type Components interface {
	// Create inserts a new component and fills in its ID.
	// A duplicate (slug, year, month) returns ErrConflict.
	Create(ctx context.Context, component *Component) error
	// Get returns the component addressed by key, or ErrNotFound.
	Get(ctx context.Context, key Key) (*Component, error)
	// GetByID returns the component with the given ID, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Component, error)
	// Update rewrites the component record addressed by component.ID.
	Update(ctx context.Context, component *Component) error
	// Delete removes the component addressed by key. With cascade it also
	// removes the component's revisions, attributes and locks in the same
	// transaction; without it they are left in place.
	Delete(ctx context.Context, key Key, cascade bool) error
	// List returns all components ordered by creation time.
	List(ctx context.Context) ([]*Component, error)
}
