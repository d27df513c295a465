// Package macro expands function invocations embedded in parsed documents.
//
// An invocation is any mapping holding the FunctionKey key:
//
//	title:
//	  function: content/locate
//	  path: /media/images
//
// The resolver looks up the first registered handler whose pattern matches
// the function name and replaces the mapping by the handler result, which is
// resolved again. Expansion is bounded by a maximum nesting depth so that
// self-including documents fail instead of recursing forever.
package macro

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/execpath"
)

// FunctionKey marks a mapping as a function invocation.
const FunctionKey = "function"

// DefaultMaxDepth bounds nested expansion when Config.MaxDepth is zero.
const DefaultMaxDepth = 50

// Handler computes the value of an invocation.
type Handler interface {
	Apply(ctx context.Context, function string, args map[string]any) (any, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, function string, args map[string]any) (any, error)

func (f HandlerFunc) Apply(ctx context.Context, function string, args map[string]any) (any, error) {
	return f(ctx, function, args)
}

// Registration binds a function name pattern to a handler. Patterns use
// glob syntax where "/" is an ordinary character, so "*" matches any run of
// characters: "ns/fetch/*" matches "ns/fetch/content/list".
type Registration struct {
	Pattern string
	Handler Handler
}

// Config configures a Resolver.
type Config struct {
	Handlers []Registration
	MaxDepth int
	Logger   *slog.Logger
}

// Resolver expands invocations. It holds no per-build state and can be
// shared by consecutive builds.
type Resolver struct {
	handlers []Registration
	maxDepth int
	logger   *slog.Logger
}

// New validates the registrations and returns a resolver.
func New(cfg Config) (*Resolver, error) {
	r := &Resolver{
		maxDepth: cfg.MaxDepth,
		logger:   cfg.Logger,
	}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for _, reg := range cfg.Handlers {
		if err := r.Register(reg.Pattern, reg.Handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a handler. Earlier registrations take precedence.
func (r *Resolver) Register(pattern string, h Handler) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty handler pattern", core.ErrMacro)
	}
	if !doublestar.ValidatePattern(flatten(pattern)) {
		return fmt.Errorf("%w: invalid handler pattern %q", core.ErrMacro, pattern)
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler for pattern %q", core.ErrMacro, pattern)
	}
	r.handlers = append(r.handlers, Registration{Pattern: pattern, Handler: h})
	return nil
}

// Patterns lists the registered patterns in precedence order.
func (r *Resolver) Patterns() []string {
	out := make([]string, len(r.handlers))
	for i, reg := range r.handlers {
		out[i] = reg.Pattern
	}
	return out
}

// MaxDepth returns the effective expansion bound.
func (r *Resolver) MaxDepth() int {
	return r.maxDepth
}

// Invocation reports whether v is a function invocation and returns its
// function name and arguments.
func Invocation(v any) (string, map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", nil, false
	}
	raw, ok := m[FunctionKey]
	if !ok {
		return "", nil, false
	}
	name, _ := raw.(string)
	name = strings.TrimSpace(name)
	args := make(map[string]any, len(m)-1)
	for k, val := range m {
		if k != FunctionKey {
			args[k] = val
		}
	}
	return name, args, true
}

// Resolve expands every invocation in node, including invocations produced
// by handlers. Mappings and sequences are rewritten in place.
//
// Handlers receive a context carrying the current depth, so a handler that
// resolves on its own (an include) keeps counting from there.
func (r *Resolver) Resolve(ctx context.Context, node any) (any, error) {
	return r.resolve(ctx, node, depthFrom(ctx))
}

func (r *Resolver) resolve(ctx context.Context, node any, depth int) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		if depth > r.maxDepth {
			return nil, fmt.Errorf("%w: maximum nesting depth %d exceeded", core.ErrMacro, r.maxDepth)
		}
		if _, _, ok := Invocation(n); ok {
			out, err := r.dispatch(ctx, n, depth)
			if err != nil {
				return nil, err
			}
			return r.resolve(ctx, out, depth+1)
		}
		path := execpath.FromContext(ctx)
		for _, k := range slices.Sorted(maps.Keys(n)) {
			path.Push(k)
			v, err := r.resolve(ctx, n[k], depth+1)
			if err != nil {
				return nil, err
			}
			path.Pop()
			n[k] = v
		}
		return n, nil
	case []any:
		if depth > r.maxDepth {
			return nil, fmt.Errorf("%w: maximum nesting depth %d exceeded", core.ErrMacro, r.maxDepth)
		}
		path := execpath.FromContext(ctx)
		for i, el := range n {
			path.Push(i)
			v, err := r.resolve(ctx, el, depth+1)
			if err != nil {
				return nil, err
			}
			path.Pop()
			n[i] = v
		}
		return n, nil
	}
	return node, nil
}

// ResolveOne expands node if it is an invocation, repeating while the result
// is itself an invocation. It does not descend into the result. Values that
// are not invocations are returned unchanged.
func (r *Resolver) ResolveOne(ctx context.Context, node any) (any, error) {
	for depth := depthFrom(ctx); ; depth++ {
		if _, _, ok := Invocation(node); !ok {
			return node, nil
		}
		if depth > r.maxDepth {
			return nil, fmt.Errorf("%w: maximum nesting depth %d exceeded", core.ErrMacro, r.maxDepth)
		}
		out, err := r.dispatch(ctx, node.(map[string]any), depth)
		if err != nil {
			return nil, err
		}
		node = out
	}
}

func (r *Resolver) dispatch(ctx context.Context, inv map[string]any, depth int) (any, error) {
	name, args, _ := Invocation(inv)
	if name == "" {
		return nil, fmt.Errorf("%w: invocation without a function name", core.ErrMacro)
	}
	h, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: no handler registered for function %q", core.ErrMacro, name)
	}
	r.logger.Debug("dispatching macro", "function", name)
	out, err := h.Apply(context.WithValue(ctx, depthKey{}, depth+1), name, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrMacro, name, err)
	}
	return out, nil
}

func (r *Resolver) lookup(name string) (Handler, bool) {
	for _, reg := range r.handlers {
		if ok, _ := doublestar.Match(flatten(reg.Pattern), flatten(name)); ok {
			return reg.Handler, true
		}
	}
	return nil, false
}

// flatten hides the separators from doublestar so wildcards span them.
func flatten(s string) string {
	return strings.ReplaceAll(s, "/", nameSeparator)
}

const nameSeparator = "\u241f"

type depthKey struct{}

func depthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}
