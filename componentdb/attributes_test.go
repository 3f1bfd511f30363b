// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package componentdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/motherjones/mirrors/component"
)

func setAttribute(t *testing.T, ctx context.Context, db *DB, parentID, childID int64, name string, weight int) *component.Attribute {
	t.Helper()
	attr := &component.Attribute{
		ParentID:  parentID,
		ChildID:   childID,
		Name:      name,
		Weight:    weight,
		AddedTime: time.Now().UTC(),
	}
	require.NoError(t, db.Attributes().Set(ctx, attr))
	return attr
}

func TestAttributes_SingleReplaces(t *testing.T) {
	Run(t, func(t *testing.T, ctx context.Context, db *DB) {
		parent := createComponent(t, ctx, db, "parent")
		first := createComponent(t, ctx, db, "first-author")
		second := createComponent(t, ctx, db, "second-author")

		setAttribute(t, ctx, db, parent.ID, first.ID, "author", component.SingleWeight)
		setAttribute(t, ctx, db, parent.ID, second.ID, "author", component.SingleWeight)

		rows, err := db.Attributes().Get(ctx, parent.ID, "author")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, second.ID, rows[0].ChildID)
		require.Equal(t, component.SingleWeight, rows[0].Weight)
	})
}

func TestAttributes_WeightedAccumulate(t *testing.T) {
	Run(t, func(t *testing.T, ctx context.Context, db *DB) {
		parent := createComponent(t, ctx, db, "gallery")
		a := createComponent(t, ctx, db, "image-a")
		b := createComponent(t, ctx, db, "image-b")
		c := createComponent(t, ctx, db, "image-c")

		setAttribute(t, ctx, db, parent.ID, a.ID, "images", 100)
		setAttribute(t, ctx, db, parent.ID, b.ID, "images", 50)
		setAttribute(t, ctx, db, parent.ID, c.ID, "images", 75)

		rows, err := db.Attributes().Get(ctx, parent.ID, "images")
		require.NoError(t, err)
		require.Len(t, rows, 3)

		// ascending weight order
		require.Equal(t, b.ID, rows[0].ChildID)
		require.Equal(t, c.ID, rows[1].ChildID)
		require.Equal(t, a.ID, rows[2].ChildID)
	})
}

func TestAttributes_ListAll(t *testing.T) {
	Run(t, func(t *testing.T, ctx context.Context, db *DB) {
		parent := createComponent(t, ctx, db, "article")
		child := createComponent(t, ctx, db, "linked")

		setAttribute(t, ctx, db, parent.ID, child.ID, "author", component.SingleWeight)
		setAttribute(t, ctx, db, parent.ID, child.ID, "images", 10)
		setAttribute(t, ctx, db, parent.ID, child.ID, "images", 20)

		rows, err := db.Attributes().ListAll(ctx, parent.ID)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, "author", rows[0].Name)
		require.Equal(t, "images", rows[1].Name)
		require.Equal(t, 10, rows[1].Weight)
		require.Equal(t, 20, rows[2].Weight)
	})
}

func TestAttributes_Delete(t *testing.T) {
	Run(t, func(t *testing.T, ctx context.Context, db *DB) {
		parent := createComponent(t, ctx, db, "parent")
		child := createComponent(t, ctx, db, "child")

		setAttribute(t, ctx, db, parent.ID, child.ID, "tags", 1)
		setAttribute(t, ctx, db, parent.ID, child.ID, "tags", 2)

		require.NoError(t, db.Attributes().Delete(ctx, parent.ID, "tags"))

		rows, err := db.Attributes().Get(ctx, parent.ID, "tags")
		require.NoError(t, err)
		require.Empty(t, rows)

		err = db.Attributes().Delete(ctx, parent.ID, "tags")
		require.True(t, component.ErrNotFound.Has(err))
	})
}

func TestAttributes_DeleteAt(t *testing.T) {
	Run(t, func(t *testing.T, ctx context.Context, db *DB) {
		parent := createComponent(t, ctx, db, "parent")
		a := createComponent(t, ctx, db, "element-a")
		b := createComponent(t, ctx, db, "element-b")
		c := createComponent(t, ctx, db, "element-c")

		setAttribute(t, ctx, db, parent.ID, a.ID, "list", 10)
		setAttribute(t, ctx, db, parent.ID, b.ID, "list", 20)
		setAttribute(t, ctx, db, parent.ID, c.ID, "list", 30)

		err := db.Attributes().DeleteAt(ctx, parent.ID, "list", 3)
		require.True(t, component.ErrOutOfRange.Has(err))

		require.NoError(t, db.Attributes().DeleteAt(ctx, parent.ID, "list", 1))

		rows, err := db.Attributes().Get(ctx, parent.ID, "list")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.Equal(t, a.ID, rows[0].ChildID)
		require.Equal(t, c.ID, rows[1].ChildID)

		err = db.Attributes().DeleteAt(ctx, parent.ID, "missing", 0)
		require.True(t, component.ErrNotFound.Has(err))
	})
}
