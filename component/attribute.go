// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package component

import (
	"context"
	"regexp"
	"time"
)

// SingleWeight marks an attribute row as a single value rather than an
// element of an ordered list.
const SingleWeight = -1

var attributeNameRegexp = regexp.MustCompile(`^\w[-\w]*$`)

// ValidateAttributeName checks an attribute name: a word character followed
// by word or hyphen characters.
func ValidateAttributeName(name string) error {
	if !attributeNameRegexp.MatchString(name) {
		return ErrValidation.New("invalid attribute name: %q", name)
	}
	return nil
}

// Attribute is a named edge from a parent component to a child component.
// Rows sharing (parent, name) with weight SingleWeight hold a single value;
// any other weight makes the row an element of an ordered list under that
// name, sorted ascending by weight.
type Attribute struct {
	ID        int64
	ParentID  int64
	ChildID   int64
	Name      string
	Weight    int
	AddedTime time.Time
}

// Value is the result of reading a named attribute: exactly one of Single
// and List is set. A lone row with a non-single weight is still a List.
type Value struct {
	Single *Component
	List   []*Component
}

// IsList reports whether the attribute resolved to an ordered list.
func (value Value) IsList() bool { return value.Single == nil }

// Attributes is the database for the attribute graph, keyed by parent.
//
// architecture: Database
type Attributes interface {
	// Set writes an attribute row and fills in its ID. When attr.Weight is
	// SingleWeight any prior single-valued row for (parent, name) is
	// superseded in the same transaction; otherwise the row accumulates
	// into the list for the name.
	Set(ctx context.Context, attr *Attribute) error
	// Get returns the rows for (parent, name) ordered ascending by weight.
	// No rows is an empty slice, not an error.
	Get(ctx context.Context, parentID int64, name string) ([]*Attribute, error)
	// ListAll returns every attribute row of the parent, grouped by name
	// and ordered ascending by weight within a name.
	ListAll(ctx context.Context, parentID int64) ([]*Attribute, error)
	// Delete removes all rows for (parent, name). ErrNotFound if none exist.
	Delete(ctx context.Context, parentID int64, name string) error
	// DeleteAt removes the row at the given position in weight order.
	// ErrNotFound if no rows exist, ErrOutOfRange for a bad index.
	DeleteAt(ctx context.Context, parentID int64, name string, index int) error
}
