// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package component

import (
	"context"
	"time"
)

// DefaultLockDuration is the lease length used when the caller does not
// specify one.
const DefaultLockDuration = time.Hour

// Lock is a time-boxed mutual-exclusion claim on a component. Rows are
// never physically deleted; breaking a lock sets Broken and expiry is a
// predicate evaluated at read time.
type Lock struct {
	ID          int64
	ComponentID int64
	LockedBy    string
	LockedAt    time.Time
	LockEndsAt  time.Time
	Broken      bool
}

// LockState is the observable state of a component's lock, computed at
// read time. There is no background sweeper; a lease is Expired the
// instant its end time elapses.
type LockState int

const (
	// Unlocked means no lock row applies: none exists or the latest is broken.
	Unlocked LockState = iota
	// Locked means an unbroken lock exists with time remaining on its lease.
	Locked
	// Expired means the latest lock's lease has elapsed without being broken.
	Expired
)

// String implements fmt.Stringer.
func (state LockState) String() string {
	switch state {
	case Locked:
		return "locked"
	case Expired:
		return "expired"
	default:
		return "unlocked"
	}
}

// State returns the state of the lock as of now. A nil lock is Unlocked.
func (lock *Lock) State(now time.Time) LockState {
	switch {
	case lock == nil, lock.Broken:
		return Unlocked
	case !lock.LockEndsAt.After(now):
		return Expired
	default:
		return Locked
	}
}

// Locks is the database for component editing leases.
//
// architecture: Database
type Locks interface {
	// Current returns the most recent lock row that is not broken and has
	// not expired as of now, or nil if the component is unlocked.
	Current(ctx context.Context, componentID int64, now time.Time) (*Lock, error)
	// Acquire atomically checks for an active lock and inserts a new one
	// ending at ends. An active lock, held by anyone, returns ErrConflict
	// wrapping a LockConflictError.
	Acquire(ctx context.Context, componentID int64, holder string, now, ends time.Time) (*Lock, error)
	// Extend moves the active lock's end time forward by delta and returns
	// the updated lock. ErrNotFound if no active lock exists.
	Extend(ctx context.Context, componentID int64, delta time.Duration, now time.Time) (*Lock, error)
	// Break marks the active lock as broken. Breaking an unlocked
	// component is a no-op.
	Break(ctx context.Context, componentID int64, now time.Time) error
	// History returns every lock row for the component, newest first.
	History(ctx context.Context, componentID int64) ([]*Lock, error)
}
