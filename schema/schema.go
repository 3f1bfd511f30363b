// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package schema implements an explicit registry of component schema
// descriptors and pure structural validation of component snapshots
// against them.
package schema

import (
	"fmt"
	"sort"

	"github.com/zeebo/errs"
)

var (
	// Error is the default schema errs class.
	Error = errs.Class("schema")
	// ErrMissingSchema is returned when a descriptor lookup fails.
	ErrMissingSchema = errs.Class("missing schema")
)

// Cardinality says whether an attribute holds a single component or an
// ordered list of them.
type Cardinality int

const (
	// Single is a plain named reference to one component.
	Single Cardinality = iota
	// List is an ordered collection of components under one name.
	List
)

// String implements fmt.Stringer.
func (c Cardinality) String() string {
	if c == List {
		return "list"
	}
	return "single"
}

// Field describes one metadata field of a schema.
type Field struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
}

// AttributeSpec describes one named attribute of a schema.
type AttributeSpec struct {
	Name     string `yaml:"name"`
	List     bool   `yaml:"list"`
	Required bool   `yaml:"required"`
}

// Cardinality returns the declared cardinality of the attribute.
func (spec AttributeSpec) Cardinality() Cardinality {
	if spec.List {
		return List
	}
	return Single
}

// Descriptor is the statically defined structure of one component schema:
// the allowed content types, the metadata fields and the named attributes
// with their cardinality.
type Descriptor struct {
	Name         string          `yaml:"name"`
	ContentTypes []string        `yaml:"content_types"`
	Metadata     []Field         `yaml:"metadata"`
	Attributes   []AttributeSpec `yaml:"attributes"`
}

// Registry is an immutable mapping from schema name to descriptor, built
// once at process start and passed by reference to whatever needs lookups.
type Registry struct {
	byName map[string]Descriptor
}

// NewRegistry merges descriptor lists into a registry. Duplicate or empty
// names are rejected.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	byName := make(map[string]Descriptor, len(descriptors))
	for _, desc := range descriptors {
		if desc.Name == "" {
			return nil, Error.New("descriptor without a name")
		}
		if _, exists := byName[desc.Name]; exists {
			return nil, Error.New("duplicate descriptor %q", desc.Name)
		}
		byName[desc.Name] = desc
	}
	return &Registry{byName: byName}, nil
}

// Lookup returns the descriptor registered under name.
func (registry *Registry) Lookup(name string) (Descriptor, error) {
	desc, ok := registry.byName[name]
	if !ok {
		return Descriptor{}, ErrMissingSchema.New("%q", name)
	}
	return desc, nil
}

// Names returns the registered schema names in sorted order.
func (registry *Registry) Names() []string {
	names := make([]string, 0, len(registry.byName))
	for name := range registry.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot is the part of a component visible to validation: its content
// type, its current metadata document and the cardinality its attribute
// rows resolved to.
type Snapshot struct {
	ContentType string
	Metadata    map[string]interface{}
	Attributes  map[string]Cardinality
}

// Issue is a single validation finding.
type Issue struct {
	Path    string
	Message string
}

// String implements fmt.Stringer.
func (issue Issue) String() string {
	return fmt.Sprintf("%s: %s", issue.Path, issue.Message)
}

// Validate checks a component snapshot against a descriptor and returns all
// findings. It is a pure function: no lookups, no state.
func Validate(desc Descriptor, snap Snapshot) []Issue {
	var issues []Issue

	if len(desc.ContentTypes) > 0 {
		allowed := false
		for _, ct := range desc.ContentTypes {
			if ct == snap.ContentType {
				allowed = true
				break
			}
		}
		if !allowed {
			issues = append(issues, Issue{
				Path:    "content_type",
				Message: fmt.Sprintf("%q is not allowed by schema %q", snap.ContentType, desc.Name),
			})
		}
	}

	for _, field := range desc.Metadata {
		if !field.Required {
			continue
		}
		value, ok := snap.Metadata[field.Name]
		if !ok || value == nil {
			issues = append(issues, Issue{
				Path:    "metadata." + field.Name,
				Message: "required field is missing",
			})
		}
	}

	for _, spec := range desc.Attributes {
		cardinality, ok := snap.Attributes[spec.Name]
		if !ok {
			if spec.Required {
				issues = append(issues, Issue{
					Path:    "attributes." + spec.Name,
					Message: "required attribute is missing",
				})
			}
			continue
		}
		if cardinality != spec.Cardinality() {
			issues = append(issues, Issue{
				Path:    "attributes." + spec.Name,
				Message: fmt.Sprintf("expected %v, found %v", spec.Cardinality(), cardinality),
			})
		}
	}

	return issues
}
