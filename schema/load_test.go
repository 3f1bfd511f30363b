// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package schema_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/motherjones/mirrors/internal/testcontext"
	"github.com/motherjones/mirrors/schema"
)

const descriptorYAML = `
- name: article
  content_types: [application/json]
  metadata:
    - name: title
      required: true
  attributes:
    - name: author
      required: true
    - name: images
      list: true
- name: essay
`

func TestLoad(t *testing.T) {
	descriptors, err := schema.Load(strings.NewReader(descriptorYAML))
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	article := descriptors[0]
	require.Equal(t, "article", article.Name)
	require.Equal(t, []string{"application/json"}, article.ContentTypes)
	require.Len(t, article.Metadata, 1)
	require.True(t, article.Metadata[0].Required)
	require.Len(t, article.Attributes, 2)
	require.Equal(t, schema.Single, article.Attributes[0].Cardinality())
	require.Equal(t, schema.List, article.Attributes[1].Cardinality())

	_, err = schema.Load(strings.NewReader("{not yaml"))
	require.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("schemas", "descriptors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(descriptorYAML), 0644))

	registry, err := schema.LoadFiles(path)
	require.NoError(t, err)
	require.Equal(t, []string{"article", "essay"}, registry.Names())

	_, err = schema.LoadFiles(ctx.File("schemas", "missing.yaml"))
	require.Error(t, err)

	// duplicates across files are rejected at merge
	_, err = schema.LoadFiles(path, path)
	require.Error(t, err)
}
