// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package component

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyValidate(t *testing.T) {
	valid := []Key{
		{Slug: "a"},
		{Slug: "article-about-go"},
		{Slug: "Under_scores-2"},
		{Slug: "report", Year: 2014, Month: 1},
		{Slug: "report", Year: 2014, Month: 12},
	}
	for _, key := range valid {
		require.NoError(t, key.Validate(), "%v", key)
	}

	invalid := []Key{
		{},
		{Slug: "has space"},
		{Slug: "dollar$"},
		{Slug: "report", Year: 2014},
		{Slug: "report", Month: 3},
		{Slug: "report", Year: 2014, Month: 13},
		{Slug: "report", Year: -1, Month: 3},
	}
	for _, key := range invalid {
		require.Error(t, key.Validate(), "%v", key)
	}
}

func TestKeyString(t *testing.T) {
	require.Equal(t, "plain", Key{Slug: "plain"}.String())
	require.Equal(t, "2014/02/report", Key{Slug: "report", Year: 2014, Month: 2}.String())
}

func TestValidateAttributeName(t *testing.T) {
	for _, name := range []string{"a", "aoesnuthoaue", "23eonth8", "aeoutns-2342e", "x_y"} {
		require.NoError(t, ValidateAttributeName(name), name)
	}
	for _, name := range []string{"", "s nstubcomponent", "-snth", "snth$", "über"} {
		require.Error(t, ValidateAttributeName(name), name)
	}
}

func TestLockState(t *testing.T) {
	now := time.Now()

	var missing *Lock
	require.Equal(t, Unlocked, missing.State(now))

	held := &Lock{LockEndsAt: now.Add(time.Hour)}
	require.Equal(t, Locked, held.State(now))
	require.Equal(t, Expired, held.State(now.Add(time.Hour)))
	require.Equal(t, Expired, held.State(now.Add(2*time.Hour)))

	broken := &Lock{LockEndsAt: now.Add(time.Hour), Broken: true}
	require.Equal(t, Unlocked, broken.State(now))

	require.Equal(t, "unlocked", Unlocked.String())
	require.Equal(t, "locked", Locked.String())
	require.Equal(t, "expired", Expired.String())
}
