// Package fields converts raw document values into stored attribute values
// for attribute types that need more than a plain copy.
package fields

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/execpath"
	"github.com/aretw0/strata/pkg/location"
	"github.com/aretw0/strata/pkg/macro"
)

// Target identifies the attribute a builder writes.
type Target struct {
	Item      *core.Item
	Language  string
	Attribute string
	Type      string
}

// FieldBuilder converts a raw value and stores it on the target item.
type FieldBuilder interface {
	Apply(ctx context.Context, target Target, value any) error
}

// FieldBuilderFunc adapts a plain function to FieldBuilder.
type FieldBuilderFunc func(ctx context.Context, target Target, value any) error

func (f FieldBuilderFunc) Apply(ctx context.Context, target Target, value any) error {
	return f(ctx, target, value)
}

// Env holds the collaborators available to builders.
type Env struct {
	Repo      core.Repository
	Locations *location.Resolver
	Macros    *macro.Resolver
	Logger    *slog.Logger
}

// Factory produces a builder for an environment.
type Factory func(env Env) (FieldBuilder, error)

// Defaults returns the factories of the built-in attribute types.
func Defaults() map[string]Factory {
	return map[string]Factory{
		"datetime":     NewDateTime,
		"relation":     NewRelation,
		"relationlist": NewRelationList,
		"tags":         NewTags,
		"metadata":     NewMetadata,
		"richtext":     NewRichText,
	}
}

// Registry maps attribute types to builders, instantiated once.
type Registry struct {
	builders map[string]FieldBuilder
}

// NewRegistry instantiates every factory against env.
func NewRegistry(env Env, factories map[string]Factory) (*Registry, error) {
	if env.Logger == nil {
		env.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reg := &Registry{builders: make(map[string]FieldBuilder, len(factories))}
	for _, typeID := range slices.Sorted(maps.Keys(factories)) {
		factory := factories[typeID]
		if factory == nil {
			return nil, fmt.Errorf("%w: no factory for attribute type %q", core.ErrFieldBuilder, typeID)
		}
		b, err := factory(env)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute type %q: %w", core.ErrFieldBuilder, typeID, err)
		}
		if b == nil {
			return nil, fmt.Errorf("%w: factory for attribute type %q returned no builder", core.ErrFieldBuilder, typeID)
		}
		reg.builders[typeID] = b
	}
	return reg, nil
}

// Lookup returns the builder for an attribute type.
func (r *Registry) Lookup(typeID string) (FieldBuilder, bool) {
	if r == nil {
		return nil, false
	}
	b, ok := r.builders[typeID]
	return b, ok
}

// Has reports whether an attribute type has a builder.
func (r *Registry) Has(typeID string) bool {
	_, ok := r.Lookup(typeID)
	return ok
}

// Types lists the registered attribute types.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.builders))
}

// within runs fn with extra segments on the execution path. The segments are
// dropped again when fn returns; a failure keeps them in its PathError.
// Callers have already pushed the attribute itself.
func within(ctx context.Context, fn func() error, segments ...any) error {
	p := execpath.FromContext(ctx)
	p.Store()
	defer p.Restore()
	for _, s := range segments {
		p.Push(s)
	}
	err := fn()
	if err == nil {
		return nil
	}
	var pe *core.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &core.PathError{Path: p.String(), Err: err}
}

func set(ctx context.Context, env Env, t Target, value any) error {
	if err := env.Repo.SetField(ctx, t.Item, t.Language, t.Attribute, value); err != nil {
		return core.RepositoryFailure("set "+t.Attribute, err)
	}
	return nil
}

// list normalizes a scalar or a sequence into a sequence.
func list(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return []any{v}
}
