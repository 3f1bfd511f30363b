// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package schema

import (
	"io"
	"os"

	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML list of descriptors.
func Load(r io.Reader) ([]Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var descriptors []Descriptor
	err = yaml.Unmarshal(data, &descriptors)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return descriptors, nil
}

// LoadFiles reads descriptor files and merges them into a registry.
func LoadFiles(paths ...string) (*Registry, error) {
	var all []Descriptor
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, Error.Wrap(err)
		}

		descriptors, err := Load(file)
		if err != nil {
			return nil, errs.Combine(err, file.Close())
		}
		err = file.Close()
		if err != nil {
			return nil, Error.Wrap(err)
		}

		all = append(all, descriptors...)
	}
	return NewRegistry(all...)
}
