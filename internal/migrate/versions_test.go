// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package migrate_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3" // used indirectly.
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/motherjones/mirrors/internal/migrate"
	"github.com/motherjones/mirrors/internal/testcontext"
)

func TestBasicMigration(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db, err := sql.Open("sqlite3", "file::memory:?mode=memory")
	require.NoError(t, err)
	defer ctx.Check(db.Close)
	db.SetMaxOpenConns(1)

	ran := false
	m := migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{
				DB:          db,
				Description: "Initial setup",
				Version:     0,
				Action: migrate.SQL{
					`CREATE TABLE users (id int)`,
				},
			},
			{
				DB:          db,
				Description: "Seed users",
				Version:     1,
				Action: migrate.Func(func(ctx context.Context, log *zap.Logger, tx *sql.Tx) error {
					ran = true
					_, err := tx.ExecContext(ctx, `INSERT INTO users (id) VALUES (1)`)
					return err
				}),
			},
		},
	}

	log := zaptest.NewLogger(t)
	require.NoError(t, m.Run(ctx, log))
	require.True(t, ran)

	version, err := m.CurrentVersion(ctx, db)
	require.NoError(t, err)
	require.Equal(t, 1, version)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	require.Equal(t, 1, count)

	// re-running is a no-op
	require.NoError(t, m.Run(ctx, log))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestMigrationValidation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db, err := sql.Open("sqlite3", "file::memory:?mode=memory")
	require.NoError(t, err)
	defer ctx.Check(db.Close)
	db.SetMaxOpenConns(1)

	log := zaptest.NewLogger(t)

	badTable := migrate.Migration{Table: "123-versions"}
	require.Error(t, badTable.Run(ctx, log))

	outOfOrder := migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{DB: db, Version: 1, Action: migrate.SQL{}},
			{DB: db, Version: 0, Action: migrate.SQL{}},
		},
	}
	require.Error(t, outOfOrder.Run(ctx, log))

	partial := migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{DB: db, Version: 0, Action: migrate.SQL{`CREATE TABLE a (id int)`}},
			{DB: db, Version: 1, Action: migrate.SQL{`CREATE TABLE b (id int)`}},
		},
	}
	targeted := partial.TargetVersion(0)
	require.NoError(t, targeted.Run(ctx, log))

	version, err := partial.CurrentVersion(ctx, db)
	require.NoError(t, err)
	require.Equal(t, 0, version)
}
