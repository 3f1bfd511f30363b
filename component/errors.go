// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package component

import (
	"fmt"
	"time"

	"github.com/zeebo/errs"
)

var (
	// ErrValidation represents malformed input: an empty revision, a bad
	// attribute name, a non-positive lock extension or an invalid
	// year/month pairing.
	ErrValidation = errs.Class("validation")
	// ErrInvalidArgument represents a missing or self-referential attribute child.
	ErrInvalidArgument = errs.Class("invalid argument")
	// ErrNotFound represents a missing component, attribute name or lock.
	ErrNotFound = errs.Class("not found")
	// ErrConflict represents a lock already being held, a duplicate
	// slug/partition key, or a revision version race.
	ErrConflict = errs.Class("conflict")
	// ErrOutOfRange represents a version argument outside [1, max version].
	ErrOutOfRange = errs.Class("out of range")
)

// LockConflictError reports the holder and expiry of the lock that caused
// an acquisition to be rejected. It is always wrapped by ErrConflict and
// reachable with errors.As.
type LockConflictError struct {
	Holder    string
	ExpiresAt time.Time
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("locked by %s until %s", e.Holder, e.ExpiresAt.Format(time.RFC3339))
}
