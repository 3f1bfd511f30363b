// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package componentdb

import (
	"context"
	"database/sql"

	"github.com/zeebo/errs"

	"github.com/motherjones/mirrors/component"
)

type componentsdb struct{ *DB }

// Create inserts a new component and fills in its ID.
func (db *componentsdb) Create(ctx context.Context, comp *component.Component) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	result, err := db.db.ExecContext(ctx, `
		INSERT INTO components (slug, year, month, content_type, schema_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		comp.Slug, comp.Year, comp.Month, comp.ContentType, comp.SchemaName,
		comp.CreatedAt.UTC(), comp.UpdatedAt.UTC())
	if err != nil {
		if isConstraintViolation(err) {
			return component.ErrConflict.New("component %q already exists", comp.Key())
		}
		return Error.Wrap(err)
	}

	comp.ID, err = result.LastInsertId()
	return Error.Wrap(err)
}

// Get returns the component addressed by key.
func (db *componentsdb) Get(ctx context.Context, key component.Key) (_ *component.Component, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.db.QueryRowContext(ctx, `
		SELECT id, slug, year, month, content_type, schema_name, created_at, updated_at
		FROM components
		WHERE slug = ? AND year = ? AND month = ?`,
		key.Slug, key.Year, key.Month)

	comp, err := scanComponent(row)
	if err == sql.ErrNoRows {
		return nil, component.ErrNotFound.New("component %q", key)
	}
	return comp, Error.Wrap(err)
}

// GetByID returns the component with the given ID.
func (db *componentsdb) GetByID(ctx context.Context, id int64) (_ *component.Component, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.db.QueryRowContext(ctx, `
		SELECT id, slug, year, month, content_type, schema_name, created_at, updated_at
		FROM components
		WHERE id = ?`, id)

	comp, err := scanComponent(row)
	if err == sql.ErrNoRows {
		return nil, component.ErrNotFound.New("component %d", id)
	}
	return comp, Error.Wrap(err)
}

// Update rewrites the component record addressed by comp.ID.
func (db *componentsdb) Update(ctx context.Context, comp *component.Component) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	result, err := db.db.ExecContext(ctx, `
		UPDATE components
		SET slug = ?, year = ?, month = ?, content_type = ?, schema_name = ?, updated_at = ?
		WHERE id = ?`,
		comp.Slug, comp.Year, comp.Month, comp.ContentType, comp.SchemaName,
		comp.UpdatedAt.UTC(), comp.ID)
	if err != nil {
		if isConstraintViolation(err) {
			return component.ErrConflict.New("component %q already exists", comp.Key())
		}
		return Error.Wrap(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected == 0 {
		return component.ErrNotFound.New("component %d", comp.ID)
	}
	return nil
}

// Delete removes the component addressed by key, optionally cascading to
// its revisions, attributes and locks.
func (db *componentsdb) Delete(ctx context.Context, key component.Key, cascade bool) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM components
			WHERE slug = ? AND year = ? AND month = ?`,
			key.Slug, key.Year, key.Month).Scan(&id)
		if err == sql.ErrNoRows {
			return component.ErrNotFound.New("component %q", key)
		}
		if err != nil {
			return Error.Wrap(err)
		}

		if cascade {
			for _, query := range []string{
				`DELETE FROM component_locks WHERE component_id = ?`,
				`DELETE FROM component_attributes WHERE parent_id = ?`,
				`DELETE FROM component_revisions WHERE component_id = ?`,
			} {
				_, err := tx.ExecContext(ctx, query, id)
				if err != nil {
					return Error.Wrap(err)
				}
			}
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM components WHERE id = ?`, id)
		return Error.Wrap(err)
	})
}

// List returns all components in creation order.
func (db *componentsdb) List(ctx context.Context) (_ []*component.Component, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.QueryContext(ctx, `
		SELECT id, slug, year, month, content_type, schema_name, created_at, updated_at
		FROM components
		ORDER BY id`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var components []*component.Component
	for rows.Next() {
		comp, err := scanComponent(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		components = append(components, comp)
	}
	return components, Error.Wrap(rows.Err())
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanComponent(row scannable) (*component.Component, error) {
	comp := &component.Component{}
	err := row.Scan(
		&comp.ID, &comp.Slug, &comp.Year, &comp.Month,
		&comp.ContentType, &comp.SchemaName,
		&comp.CreatedAt, &comp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return comp, nil
}
