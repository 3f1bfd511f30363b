// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package componentdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"github.com/motherjones/mirrors/component"
)

type locksdb struct{ *DB }

// Lease times are stored as epoch nanoseconds and compared as integers.
// SQLite's datetime() truncates fractional seconds, which would let the
// predicate here disagree with Lock.State within the final partial second
// of a lease.

// activeLockQuery selects the most recent lock row that is not broken and
// has not expired as of the bound parameter.
const activeLockQuery = `
	SELECT id, component_id, locked_by, locked_at_ns, lock_ends_at_ns, broken
	FROM component_locks
	WHERE component_id = ? AND broken = 0 AND lock_ends_at_ns > ?
	ORDER BY lock_ends_at_ns DESC, id DESC
	LIMIT 1`

// Current returns the active lock, or nil when the component is unlocked.
// Expiry is evaluated here, at read time; there is no background sweeper.
func (db *locksdb) Current(ctx context.Context, componentID int64, now time.Time) (_ *component.Lock, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.db.QueryRowContext(ctx, activeLockQuery, componentID, now.UnixNano())
	lock, err := scanLock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return lock, Error.Wrap(err)
}

// Acquire checks for an active lock and inserts a new lease in one
// transaction, so two callers cannot both observe "unlocked" and both
// acquire.
func (db *locksdb) Acquire(ctx context.Context, componentID int64, holder string, now, ends time.Time) (_ *component.Lock, err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	lock := &component.Lock{
		ComponentID: componentID,
		LockedBy:    holder,
		LockedAt:    now.UTC(),
		LockEndsAt:  ends.UTC(),
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, activeLockQuery, componentID, now.UnixNano())
		active, err := scanLock(row)
		if err != nil && err != sql.ErrNoRows {
			return Error.Wrap(err)
		}
		if active != nil {
			return component.ErrConflict.Wrap(&component.LockConflictError{
				Holder:    active.LockedBy,
				ExpiresAt: active.LockEndsAt,
			})
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO component_locks (component_id, locked_by, locked_at_ns, lock_ends_at_ns, broken)
			VALUES (?, ?, ?, ?, 0)`,
			lock.ComponentID, lock.LockedBy, lock.LockedAt.UnixNano(), lock.LockEndsAt.UnixNano())
		if err != nil {
			return Error.Wrap(err)
		}
		lock.ID, err = result.LastInsertId()
		return Error.Wrap(err)
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Extend moves the active lease's end forward by delta.
func (db *locksdb) Extend(ctx context.Context, componentID int64, delta time.Duration, now time.Time) (_ *component.Lock, err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	var lock *component.Lock
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, activeLockQuery, componentID, now.UnixNano())
		active, err := scanLock(row)
		if err == sql.ErrNoRows {
			return component.ErrNotFound.New("no active lock for component %d", componentID)
		}
		if err != nil {
			return Error.Wrap(err)
		}

		active.LockEndsAt = active.LockEndsAt.Add(delta)
		_, err = tx.ExecContext(ctx, `
			UPDATE component_locks SET lock_ends_at_ns = ? WHERE id = ?`,
			active.LockEndsAt.UnixNano(), active.ID)
		if err != nil {
			return Error.Wrap(err)
		}
		lock = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Break marks the active lock as broken. Rows are kept for audit and
// breaking an unlocked component changes nothing.
func (db *locksdb) Break(ctx context.Context, componentID int64, now time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	_, err = db.db.ExecContext(ctx, `
		UPDATE component_locks
		SET broken = 1
		WHERE component_id = ? AND broken = 0 AND lock_ends_at_ns > ?`,
		componentID, now.UnixNano())
	return Error.Wrap(err)
}

// History returns every lock row for the component, newest first.
func (db *locksdb) History(ctx context.Context, componentID int64) (_ []*component.Lock, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.QueryContext(ctx, `
		SELECT id, component_id, locked_by, locked_at_ns, lock_ends_at_ns, broken
		FROM component_locks
		WHERE component_id = ?
		ORDER BY id DESC`, componentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var locks []*component.Lock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		locks = append(locks, lock)
	}
	return locks, Error.Wrap(rows.Err())
}

func scanLock(row scannable) (*component.Lock, error) {
	lock := &component.Lock{}
	var lockedAt, endsAt int64
	err := row.Scan(
		&lock.ID, &lock.ComponentID, &lock.LockedBy,
		&lockedAt, &endsAt, &lock.Broken,
	)
	if err != nil {
		return nil, err
	}
	lock.LockedAt = time.Unix(0, lockedAt).UTC()
	lock.LockEndsAt = time.Unix(0, endsAt).UTC()
	return lock, nil
}
