// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package componentdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/zeebo/errs"

	"github.com/motherjones/mirrors/component"
)

type revisionsdb struct{ *DB }

// Append writes the next revision for a component. The version is computed
// as max + 1 inside the transaction; the (component_id, version) primary
// key is the backstop against concurrent appends racing to the same slot.
func (db *revisionsdb) Append(ctx context.Context, componentID int64, data []byte, metadata component.Document, created time.Time) (_ *component.Revision, err error) {
	defer mon.Task()(&ctx)(&err)

	var metadataJSON []byte
	if len(metadata) > 0 {
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	defer db.locked()()

	rev := &component.Revision{
		ComponentID: componentID,
		Data:        data,
		Metadata:    metadata,
		CreatedAt:   created.UTC(),
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM components WHERE id = ?`, componentID).Scan(&exists)
		if err == sql.ErrNoRows {
			return component.ErrNotFound.New("component %d", componentID)
		}
		if err != nil {
			return Error.Wrap(err)
		}

		var max sql.NullInt64
		err = tx.QueryRowContext(ctx, `
			SELECT MAX(version) FROM component_revisions WHERE component_id = ?`,
			componentID).Scan(&max)
		if err != nil && err != sql.ErrNoRows {
			return Error.Wrap(err)
		}

		if max.Int64 == 0 && len(data) == 0 {
			return component.ErrValidation.New("first revision must carry data")
		}
		rev.Version = int(max.Int64) + 1

		_, err = tx.ExecContext(ctx, `
			INSERT INTO component_revisions (component_id, version, data, metadata, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			componentID, rev.Version, nullable(data), nullable(metadataJSON), rev.CreatedAt)
		if err != nil {
			if isConstraintViolation(err) {
				return component.ErrConflict.New("version %d of component %d already written", rev.Version, componentID)
			}
			return Error.Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// MaxVersion returns the highest version of a component, or 0.
func (db *revisionsdb) MaxVersion(ctx context.Context, componentID int64) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.maxVersion(ctx, componentID)
}

func (db *revisionsdb) maxVersion(ctx context.Context, componentID int64) (int, error) {
	var max sql.NullInt64
	err := db.db.QueryRowContext(ctx, `
		SELECT MAX(version) FROM component_revisions WHERE component_id = ?`,
		componentID).Scan(&max)
	if err != nil && err != sql.ErrNoRows {
		return 0, Error.Wrap(err)
	}
	return int(max.Int64), nil
}

// CurrentData returns the data of the highest-versioned revision carrying
// data, or nil.
func (db *revisionsdb) CurrentData(ctx context.Context, componentID int64) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.dataBounded(ctx, componentID, nil)
}

// CurrentMetadata returns the metadata of the highest-versioned revision
// carrying metadata, or an empty document.
func (db *revisionsdb) CurrentMetadata(ctx context.Context, componentID int64) (_ component.Document, err error) {
	defer mon.Task()(&ctx)(&err)
	return db.metadataBounded(ctx, componentID, nil)
}

// DataAt returns the data as of the bounding version.
func (db *revisionsdb) DataAt(ctx context.Context, componentID int64, version int) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.checkVersion(ctx, componentID, version)
	if err != nil {
		return nil, err
	}
	return db.dataBounded(ctx, componentID, &version)
}

// MetadataAt returns the metadata as of the bounding version.
func (db *revisionsdb) MetadataAt(ctx context.Context, componentID int64, version int) (_ component.Document, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.checkVersion(ctx, componentID, version)
	if err != nil {
		return nil, err
	}
	return db.metadataBounded(ctx, componentID, &version)
}

func (db *revisionsdb) checkVersion(ctx context.Context, componentID int64, version int) error {
	max, err := db.maxVersion(ctx, componentID)
	if err != nil {
		return err
	}
	if version < 1 || version > max {
		return component.ErrOutOfRange.New("version %d not in [1, %d]", version, max)
	}
	return nil
}

// dataBounded scans backward from the highest version not above bound for
// a revision with non-null data. A nil bound means unbounded.
func (db *revisionsdb) dataBounded(ctx context.Context, componentID int64, bound *int) ([]byte, error) {
	query := `
		SELECT data FROM component_revisions
		WHERE component_id = ? AND data IS NOT NULL`
	args := []interface{}{componentID}
	if bound != nil {
		query += ` AND version <= ?`
		args = append(args, *bound)
	}
	query += ` ORDER BY version DESC LIMIT 1`

	var data []byte
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return data, Error.Wrap(err)
}

func (db *revisionsdb) metadataBounded(ctx context.Context, componentID int64, bound *int) (component.Document, error) {
	query := `
		SELECT metadata FROM component_revisions
		WHERE component_id = ? AND metadata IS NOT NULL`
	args := []interface{}{componentID}
	if bound != nil {
		query += ` AND version <= ?`
		args = append(args, *bound)
	}
	query += ` ORDER BY version DESC LIMIT 1`

	var metadataJSON []byte
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&metadataJSON)
	if err == sql.ErrNoRows {
		return component.Document{}, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return unmarshalDocument(metadataJSON)
}

// List returns all revisions of a component in ascending version order.
func (db *revisionsdb) List(ctx context.Context, componentID int64) (_ []*component.Revision, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.QueryContext(ctx, `
		SELECT component_id, version, data, metadata, created_at
		FROM component_revisions
		WHERE component_id = ?
		ORDER BY version`, componentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var revisions []*component.Revision
	for rows.Next() {
		rev := &component.Revision{}
		var metadataJSON []byte
		err := rows.Scan(&rev.ComponentID, &rev.Version, &rev.Data, &metadataJSON, &rev.CreatedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if metadataJSON != nil {
			rev.Metadata, err = unmarshalDocument(metadataJSON)
			if err != nil {
				return nil, err
			}
		}
		revisions = append(revisions, rev)
	}
	return revisions, Error.Wrap(rows.Err())
}

func unmarshalDocument(data []byte) (component.Document, error) {
	doc := component.Document{}
	err := json.Unmarshal(data, &doc)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return doc, nil
}
