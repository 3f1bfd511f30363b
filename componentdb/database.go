// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package componentdb implements the component store databases on SQLite.
package componentdb

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3" // used indirectly.
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/motherjones/mirrors/component"
	"github.com/motherjones/mirrors/internal/migrate"
)

// VersionTable is the table that stores the migration version info.
const VersionTable = "versions"

var (
	mon = monkit.Package()

	// Error represents errors from the component database.
	Error = errs.Class("componentdb")
	// ErrPreflight represents an error during the preflight check.
	ErrPreflight = errs.Class("preflight")
)

// Config configures the component database.
type Config struct {
	Database string `help:"path to the component database file" default:"$CONFDIR/components.db"`
}

// DB is the master database of the content repository. It implements
// component.DB against a single SQLite file.
type DB struct {
	log *zap.Logger
	db  *sql.DB

	mu sync.Mutex

	components componentsdb
	revisions  revisionsdb
	attributes attributesdb
	locks      locksdb
}

// New opens the component database at the configured path.
func New(log *zap.Logger, config Config) (*DB, error) {
	return open(log, config.Database)
}

// NewInMemory creates a new in-memory component database for testing.
func NewInMemory(log *zap.Logger) (*DB, error) {
	return open(log, "file::memory:?mode=memory")
}

func open(log *zap.Logger, path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	// sqlite allows only a single writer and in-memory databases are
	// per-connection, so keep everything on one connection.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{
		log: log,
		db:  sqlDB,
	}
	db.components = componentsdb{db}
	db.revisions = revisionsdb{db}
	db.attributes = attributesdb{db}
	db.locks = locksdb{db}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// Components returns the database for component records.
func (db *DB) Components() component.Components { return &db.components }

// Revisions returns the database for revision history.
func (db *DB) Revisions() component.Revisions { return &db.revisions }

// Attributes returns the database for the attribute graph.
func (db *DB) Attributes() component.Attributes { return &db.attributes }

// Locks returns the database for editing leases.
func (db *DB) Locks() component.Locks { return &db.locks }

// CreateTables applies all pending schema migrations.
func (db *DB) CreateTables(ctx context.Context) error {
	migration := db.Migration()
	return migration.Run(ctx, db.log.Named("migration"))
}

// Migration returns the table migrations for the component database.
func (db *DB) Migration() *migrate.Migration {
	return &migrate.Migration{
		Table: VersionTable,
		Steps: []*migrate.Step{
			{
				DB:          db.db,
				Description: "Initial setup",
				Version:     0,
				Action: migrate.SQL{
					`CREATE TABLE components (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						slug TEXT NOT NULL,
						year INTEGER NOT NULL DEFAULT 0,
						month INTEGER NOT NULL DEFAULT 0,
						content_type TEXT NOT NULL DEFAULT 'none',
						schema_name TEXT NOT NULL DEFAULT '',
						created_at TIMESTAMP NOT NULL,
						updated_at TIMESTAMP NOT NULL,
						UNIQUE (slug, year, month)
					)`,
					`CREATE TABLE component_revisions (
						component_id INTEGER NOT NULL REFERENCES components (id),
						version INTEGER NOT NULL,
						data BLOB,
						metadata TEXT,
						created_at TIMESTAMP NOT NULL,
						PRIMARY KEY (component_id, version)
					)`,
					`CREATE TABLE component_attributes (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						parent_id INTEGER NOT NULL REFERENCES components (id),
						child_id INTEGER NOT NULL REFERENCES components (id),
						name TEXT NOT NULL,
						weight INTEGER NOT NULL DEFAULT -1,
						added_time TIMESTAMP NOT NULL
					)`,
					`CREATE INDEX idx_component_attributes_parent_name
						ON component_attributes (parent_id, name)`,
					`CREATE TABLE component_locks (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						component_id INTEGER NOT NULL REFERENCES components (id),
						locked_by TEXT NOT NULL,
						locked_at_ns INTEGER NOT NULL,
						lock_ends_at_ns INTEGER NOT NULL,
						broken INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX idx_component_locks_component
						ON component_locks (component_id)`,
				},
			},
		},
	}
}

// Preflight verifies that the live table set matches the expected schema.
func (db *DB) Preflight(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return ErrPreflight.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var tables []string
	for rows.Next() {
		var name string
		err := rows.Scan(&name)
		if err != nil {
			return ErrPreflight.Wrap(err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return ErrPreflight.Wrap(err)
	}

	expected := []string{
		"component_attributes",
		"component_locks",
		"component_revisions",
		"components",
		VersionTable,
	}
	if diff := cmp.Diff(expected, tables); diff != "" {
		return ErrPreflight.New("schema mismatch (-expected +actual):\n%s", diff)
	}
	return nil
}

// locked performs locking and returns the unlock function.
func (db *DB) locked() func() {
	db.mu.Lock()
	return db.mu.Unlock
}

// withTx executes cb inside a transaction.
func (db *DB) withTx(ctx context.Context, cb func(tx *sql.Tx) error) (err error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}

	defer func() {
		if err != nil {
			err = errs.Combine(err, tx.Rollback())
			return
		}
		err = tx.Commit()
	}()

	return cb(tx)
}

func isConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// nullable turns an empty byte slice into a NULL parameter.
func nullable(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}
