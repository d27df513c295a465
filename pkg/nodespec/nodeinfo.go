// Package nodespec compiles raw node specifications into NodeInfo, the
// per-language field layout the builder creates items from.
package nodespec

import (
	"maps"
	"slices"
)

// Reserved keys of a node specification.
const (
	ClassKey       = "class"
	ChildrenKey    = "children"
	PostPublishKey = "postPublish"
	ParentKey      = "parentNode"
)

// CustomField is a value handed to a field builder.
type CustomField struct {
	Type  string
	Value any
}

// NodeInfo is the compiled description of one item.
type NodeInfo struct {
	TypeID   string
	Name     string
	RemoteID string

	// BaseLanguage holds the base layer every other language inherits from.
	BaseLanguage string
	// Languages lists the languages with recorded fields in first-recorded order.
	Languages []string

	Fields       map[string]map[string]any
	CustomFields map[string]map[string]CustomField
	PostPublish  []string
	Options      map[string]any
	Children     []any
	// Parent is the raw parent override, nil when the node inherits its parent.
	Parent any
}

func newNodeInfo(typeID, base string) *NodeInfo {
	return &NodeInfo{
		TypeID:       typeID,
		BaseLanguage: base,
		Fields:       map[string]map[string]any{},
		CustomFields: map[string]map[string]CustomField{},
		Options:      map[string]any{},
	}
}

// CreationLanguage is the language the item is created in.
func (n *NodeInfo) CreationLanguage() string {
	if len(n.Languages) > 0 {
		return n.Languages[0]
	}
	return n.BaseLanguage
}

// IsPostPublish reports whether key is deferred until after the children.
func (n *NodeInfo) IsPostPublish(key string) bool {
	return slices.Contains(n.PostPublish, key)
}

// Layer returns the simple fields of language merged over the base layer.
func (n *NodeInfo) Layer(language string) map[string]any {
	out := maps.Clone(n.Fields[n.BaseLanguage])
	if out == nil {
		out = map[string]any{}
	}
	if language != n.BaseLanguage {
		maps.Copy(out, n.Fields[language])
	}
	return out
}

// CustomLayer returns the custom fields of language merged over the base layer.
func (n *NodeInfo) CustomLayer(language string) map[string]CustomField {
	out := maps.Clone(n.CustomFields[n.BaseLanguage])
	if out == nil {
		out = map[string]CustomField{}
	}
	if language != n.BaseLanguage {
		maps.Copy(out, n.CustomFields[language])
	}
	return out
}

func (n *NodeInfo) recordField(language, key string, value any) {
	if n.Fields[language] == nil {
		n.Fields[language] = map[string]any{}
	}
	n.Fields[language][key] = value
	n.touch(language)
}

func (n *NodeInfo) recordCustom(language, key string, field CustomField) {
	if n.CustomFields[language] == nil {
		n.CustomFields[language] = map[string]CustomField{}
	}
	n.CustomFields[language][key] = field
	n.touch(language)
}

func (n *NodeInfo) touch(language string) {
	if !slices.Contains(n.Languages, language) {
		n.Languages = append(n.Languages, language)
	}
}
