// Package core holds the domain of strata: content items, their locations in
// the content tree, content type schemas, and the contracts of the external
// collaborators (content repository, tag store, search index).
package core

import (
	"slices"
	"strings"
	"unicode"
)

// Location is a place in the content tree. It is the handle every tree
// operation works with: parents are locations, children are created below
// locations, and undo removes locations.
type Location struct {
	ID       int64  `json:"id" yaml:"id"`
	RemoteID string `json:"remote_id" yaml:"remote_id"`
	ItemID   int64  `json:"item_id" yaml:"item_id"`
	ParentID int64  `json:"parent_id" yaml:"parent_id"`
	Name     string `json:"name" yaml:"name"`
	// Path is the normalized URL path of the location, e.g. "/media/images".
	Path string `json:"path" yaml:"path"`
}

// IsRoot reports whether the location is the root of the content tree.
func (l *Location) IsRoot() bool {
	return l.Path == "/"
}

// Item is a typed content item with per-language field values.
type Item struct {
	ID       int64  `json:"id" yaml:"id"`
	RemoteID string `json:"remote_id" yaml:"remote_id"`
	TypeID   string `json:"type" yaml:"type"`
	Name     string `json:"name" yaml:"name"`
	// MainLocationID is zero until the item has been published with at least
	// one location. Items stuck at zero are orphans of an aborted build.
	MainLocationID  int64                     `json:"main_location_id" yaml:"main_location_id"`
	InitialLanguage string                    `json:"initial_language" yaml:"initial_language"`
	Languages       []string                  `json:"languages" yaml:"languages"`
	Published       []string                  `json:"published,omitempty" yaml:"published,omitempty"`
	Version         int                       `json:"version" yaml:"version"`
	Options         map[string]any            `json:"options,omitempty" yaml:"options,omitempty"`
	Fields          map[string]map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Field returns the stored value of key in language, and whether it is set.
func (i *Item) Field(language, key string) (any, bool) {
	layer, ok := i.Fields[language]
	if !ok {
		return nil, false
	}
	v, ok := layer[key]
	return v, ok
}

// HasLanguage reports whether the item has a translation in language.
func (i *Item) HasLanguage(language string) bool {
	return slices.Contains(i.Languages, language)
}

// IsPublished reports whether language has been published at least once.
func (i *Item) IsPublished(language string) bool {
	return slices.Contains(i.Published, language)
}

// ItemOptions are the structural, language-independent parameters of a new item.
type ItemOptions struct {
	TypeID   string
	RemoteID string
	Name     string
	Language string
	Options  map[string]any
}

// PublishOptions control a single publish call.
type PublishOptions struct {
	Language              string
	SkipModificationCheck bool
}

// Tag is a node of the tag tree used by tag-typed attributes.
type Tag struct {
	ID       int64  `json:"id" yaml:"id"`
	ParentID int64  `json:"parent_id" yaml:"parent_id"`
	Keyword  string `json:"keyword" yaml:"keyword"`
	Path     string `json:"path" yaml:"path"`
}

// StructuralAttributes are the item attributes that are not content fields.
// Repositories use them as the default structural set of every schema.
var StructuralAttributes = []string{
	"remote_id",
	"section_id",
	"owner_id",
	"priority",
	"sort_field",
	"sort_order",
	"hidden",
}

// AttributeContext classifies a key of a node specification against a schema.
type AttributeContext int

const (
	ContextUnknown AttributeContext = iota
	ContextStructural
	ContextContent
)

// TypeSchema describes a content type: its structural attributes and its
// content attributes with their declared data types.
type TypeSchema struct {
	ID string `json:"identifier" yaml:"identifier"`
	// NamePattern builds item names from attribute values, e.g. "<short_title|title>".
	NamePattern string `json:"name_pattern" yaml:"name_pattern"`
	Container   bool   `json:"container" yaml:"container"`
	// Structural lists the structural attributes; empty means StructuralAttributes.
	Structural []string `json:"structural,omitempty" yaml:"structural,omitempty"`
	// Content maps content attribute keys to their data type.
	Content map[string]string `json:"attributes" yaml:"attributes"`
}

// Context reports whether key is a structural or a content attribute.
// Content attributes win when a key is declared as both.
func (s *TypeSchema) Context(key string) AttributeContext {
	if _, ok := s.Content[key]; ok {
		return ContextContent
	}
	structural := s.Structural
	if len(structural) == 0 {
		structural = StructuralAttributes
	}
	if slices.Contains(structural, key) {
		return ContextStructural
	}
	return ContextUnknown
}

// AttributeType returns the declared data type of a content attribute.
func (s *TypeSchema) AttributeType(key string) (string, bool) {
	t, ok := s.Content[key]
	return t, ok
}

// Slug normalizes a single path segment the way URL aliases are built:
// lower case, runs of anything but letters and digits collapsed into "-".
func Slug(segment string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(segment) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// NormalizePath turns a user supplied path string into the canonical form
// stored on locations: leading slash, slugged segments, no trailing slash.
func NormalizePath(p string) string {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return "/"
	}
	for i, part := range parts {
		parts[i] = Slug(part)
	}
	return "/" + strings.Join(parts, "/")
}

// SplitPath returns the non-empty segments of a path string.
func SplitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// JoinPath appends a child segment to a normalized parent path.
func JoinPath(parent, name string) string {
	slug := Slug(name)
	if parent == "/" || parent == "" {
		return "/" + slug
	}
	return parent + "/" + slug
}
