package nodespec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/execpath"
	"github.com/aretw0/strata/pkg/macro"
)

// RemoteIDOption is the structural option holding an explicit remote id.
const RemoteIDOption = "remote_id"

// CustomTypes reports which attribute types are handled by field builders.
type CustomTypes interface {
	Has(typeID string) bool
}

// Config configures a Compiler.
type Config struct {
	Macros *macro.Resolver
	// Custom decides which attributes become custom fields. Nil means none.
	Custom CustomTypes
	// RemoteIDPrefix prefixes synthesized remote ids.
	RemoteIDPrefix string
	Logger         *slog.Logger
}

// Compiler turns node specifications into NodeInfo.
type Compiler struct {
	macros *macro.Resolver
	custom CustomTypes
	prefix string
	logger *slog.Logger
}

// New returns a compiler.
func New(cfg Config) (*Compiler, error) {
	if cfg.Macros == nil {
		return nil, fmt.Errorf("%w: compiler requires a macro resolver", core.ErrMacro)
	}
	c := &Compiler{
		macros: cfg.Macros,
		custom: cfg.Custom,
		prefix: cfg.RemoteIDPrefix,
		logger: cfg.Logger,
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c, nil
}

// TypeOf returns the content type identifier of spec.
func TypeOf(spec map[string]any) (string, error) {
	raw, ok := spec[ClassKey]
	if !ok {
		return "", fmt.Errorf("%w: node has no %q key", core.ErrSchema, ClassKey)
	}
	typeID, ok := raw.(string)
	if !ok || typeID == "" {
		return "", fmt.Errorf("%w: node %q must be a non-empty string, got %v", core.ErrSchema, ClassKey, raw)
	}
	return typeID, nil
}

// Compile builds the NodeInfo of spec. languages are the active languages
// of the build and defaultLanguage holds the base layer.
//
// Content values are macro-resolved, except those of post-publish keys
// which stay raw until the deferred pass.
func (c *Compiler) Compile(ctx context.Context, spec map[string]any, schema *core.TypeSchema, languages []string, defaultLanguage string) (*NodeInfo, error) {
	typeID, err := TypeOf(spec)
	if err != nil {
		return nil, err
	}
	if schema == nil || schema.ID != typeID {
		return nil, fmt.Errorf("%w: no schema for content type %q", core.ErrSchema, typeID)
	}

	info := newNodeInfo(typeID, defaultLanguage)
	path := execpath.FromContext(ctx)

	base := map[string]any{}
	overrides := map[string]map[string]any{}

	for _, key := range slices.Sorted(maps.Keys(spec)) {
		value := spec[key]
		switch {
		case key == ClassKey:
		case key == ParentKey:
			info.Parent = value
		case key == ChildrenKey:
			children, ok := value.([]any)
			if !ok && value != nil {
				c.logger.Warn("ignoring children that are not a sequence", "type", typeID, "got", fmt.Sprintf("%T", value))
			}
			info.Children = children
		case key == PostPublishKey:
			keys, err := postPublishKeys(value)
			if err != nil {
				return nil, err
			}
			info.PostPublish = keys
		case slices.Contains(languages, key):
			block, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: language block %q must be a mapping", core.ErrSchema, key)
			}
			overrides[key] = block
		default:
			switch schema.Context(key) {
			case core.ContextStructural:
				path.Push(key)
				v, err := c.macros.Resolve(ctx, value)
				if err != nil {
					return nil, err
				}
				path.Pop()
				info.Options[key] = v
			case core.ContextContent:
				base[key] = value
			default:
				return nil, fmt.Errorf("%w: content type %q has no attribute %q", core.ErrSchema, typeID, key)
			}
		}
	}

	for _, key := range info.PostPublish {
		if schema.Context(key) != core.ContextContent {
			return nil, fmt.Errorf("%w: post-publish key %q is not an attribute of %q", core.ErrSchema, key, typeID)
		}
	}

	if err := c.record(ctx, info, schema, defaultLanguage, base); err != nil {
		return nil, err
	}
	for _, lang := range languages {
		block, ok := overrides[lang]
		if !ok {
			continue
		}
		path.Push(lang)
		for key := range block {
			if schema.Context(key) != core.ContextContent {
				return nil, fmt.Errorf("%w: %q in language block %q is not a translatable attribute of %q", core.ErrSchema, key, lang, typeID)
			}
		}
		if err := c.record(ctx, info, schema, lang, block); err != nil {
			return nil, err
		}
		path.Pop()
	}

	info.RemoteID = c.remoteID(info.Options)
	delete(info.Options, RemoteIDOption)

	baseLayer := info.Layer(defaultLanguage)
	info.Name = Interpolate(schema.NamePattern, func(key string) (any, bool) {
		if v, ok := baseLayer[key]; ok {
			return v, true
		}
		if v, ok := info.Options[key]; ok {
			return v, true
		}
		v, ok := spec[key]
		return v, ok
	})
	return info, nil
}

// record resolves and stores the content values of one language layer.
func (c *Compiler) record(ctx context.Context, info *NodeInfo, schema *core.TypeSchema, lang string, values map[string]any) error {
	path := execpath.FromContext(ctx)
	for _, key := range slices.Sorted(maps.Keys(values)) {
		attrType, _ := schema.AttributeType(key)
		value := values[key]
		if !info.IsPostPublish(key) {
			path.Push(key)
			v, err := c.macros.Resolve(ctx, value)
			if err != nil {
				return err
			}
			path.Pop()
			value = v
		}
		if c.custom != nil && c.custom.Has(attrType) {
			info.recordCustom(lang, key, CustomField{Type: attrType, Value: value})
			continue
		}
		info.recordField(lang, key, value)
	}
	return nil
}

func (c *Compiler) remoteID(options map[string]any) string {
	if v, ok := options[RemoteIDOption]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	if c.prefix == "" {
		return uuid.NewString()
	}
	return c.prefix + ":" + uuid.NewString()
}

func postPublishKeys(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []any:
		keys := make([]string, 0, len(t))
		for _, el := range t {
			s, ok := el.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s entries must be strings, got %T", core.ErrSchema, PostPublishKey, el)
			}
			keys = append(keys, s)
		}
		return keys, nil
	}
	return nil, fmt.Errorf("%w: %s must be a string or a list, got %T", core.ErrSchema, PostPublishKey, v)
}
