// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testrand implements generating random base types for testing.
package testrand

import (
	"math/rand"
)

// Read reads pseudo-random data into data.
func Read(data []byte) {
	const newSourceThreshold = 64
	if len(data) < newSourceThreshold {
		_, _ = rand.Read(data)
		return
	}

	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// Bytes generates size amount of random data.
func Bytes(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// Intn returns, as an int, a non-negative pseudo-random number in [0,n)
// from the default source. It panics if n <= 0.
func Intn(n int) int {
	return rand.Intn(n)
}

const slugRunes = "abcdefghijklmnopqrstuvwxyz0123456789"

// Slug generates a random URL-safe identifier of length n.
func Slug(n int) string {
	data := make([]byte, n)
	for i := range data {
		data[i] = slugRunes[rand.Intn(len(slugRunes))]
	}
	return string(data)
}
