// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package componentdb

import (
	"context"
	"database/sql"

	"github.com/zeebo/errs"

	"github.com/motherjones/mirrors/component"
)

type attributesdb struct{ *DB }

// Set writes an attribute row. A single-valued row replaces any prior
// single-valued row for (parent, name) inside one transaction, so a
// concurrent reader never observes the name with zero values; weighted
// rows accumulate into the list untouched.
func (db *attributesdb) Set(ctx context.Context, attr *component.Attribute) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	if attr.Weight != component.SingleWeight {
		result, err := db.db.ExecContext(ctx, `
			INSERT INTO component_attributes (parent_id, child_id, name, weight, added_time)
			VALUES (?, ?, ?, ?, ?)`,
			attr.ParentID, attr.ChildID, attr.Name, attr.Weight, attr.AddedTime.UTC())
		if err != nil {
			return Error.Wrap(err)
		}
		attr.ID, err = result.LastInsertId()
		return Error.Wrap(err)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM component_attributes
			WHERE parent_id = ? AND name = ? AND weight = ?`,
			attr.ParentID, attr.Name, component.SingleWeight)
		if err != nil {
			return Error.Wrap(err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO component_attributes (parent_id, child_id, name, weight, added_time)
			VALUES (?, ?, ?, ?, ?)`,
			attr.ParentID, attr.ChildID, attr.Name, attr.Weight, attr.AddedTime.UTC())
		if err != nil {
			return Error.Wrap(err)
		}
		attr.ID, err = result.LastInsertId()
		return Error.Wrap(err)
	})
}

// Get returns the rows for (parent, name) ordered ascending by weight.
func (db *attributesdb) Get(ctx context.Context, parentID int64, name string) (_ []*component.Attribute, err error) {
	defer mon.Task()(&ctx)(&err)

	return db.queryAttributes(ctx, `
		SELECT id, parent_id, child_id, name, weight, added_time
		FROM component_attributes
		WHERE parent_id = ? AND name = ?
		ORDER BY weight, id`, parentID, name)
}

// ListAll returns every attribute row of the parent.
func (db *attributesdb) ListAll(ctx context.Context, parentID int64) (_ []*component.Attribute, err error) {
	defer mon.Task()(&ctx)(&err)

	return db.queryAttributes(ctx, `
		SELECT id, parent_id, child_id, name, weight, added_time
		FROM component_attributes
		WHERE parent_id = ?
		ORDER BY name, weight, id`, parentID)
}

// Delete removes all rows for (parent, name).
func (db *attributesdb) Delete(ctx context.Context, parentID int64, name string) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	result, err := db.db.ExecContext(ctx, `
		DELETE FROM component_attributes
		WHERE parent_id = ? AND name = ?`, parentID, name)
	if err != nil {
		return Error.Wrap(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected == 0 {
		return component.ErrNotFound.New("attribute %q", name)
	}
	return nil
}

// DeleteAt removes the row at the given position in weight order.
func (db *attributesdb) DeleteAt(ctx context.Context, parentID int64, name string, index int) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM component_attributes
			WHERE parent_id = ? AND name = ?
			ORDER BY weight, id`, parentID, name)
		if err != nil {
			return Error.Wrap(err)
		}

		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return errs.Combine(Error.Wrap(err), rows.Close())
			}
			ids = append(ids, id)
		}
		if err := errs.Combine(rows.Err(), rows.Close()); err != nil {
			return Error.Wrap(err)
		}

		if len(ids) == 0 {
			return component.ErrNotFound.New("attribute %q", name)
		}
		if index < 0 || index >= len(ids) {
			return component.ErrOutOfRange.New("index %d of attribute %q", index, name)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM component_attributes WHERE id = ?`, ids[index])
		return Error.Wrap(err)
	})
}

func (db *attributesdb) queryAttributes(ctx context.Context, query string, args ...interface{}) (_ []*component.Attribute, err error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var attrs []*component.Attribute
	for rows.Next() {
		attr := &component.Attribute{}
		err := rows.Scan(&attr.ID, &attr.ParentID, &attr.ChildID, &attr.Name, &attr.Weight, &attr.AddedTime)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		attrs = append(attrs, attr)
	}
	return attrs, Error.Wrap(rows.Err())
}
