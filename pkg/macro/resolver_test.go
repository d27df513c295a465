package macro_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/execpath"
	"github.com/aretw0/strata/pkg/macro"
)

// nest returns a new invocation of itself until level reaches zero.
var nest = macro.HandlerFunc(func(_ context.Context, _ string, args map[string]any) (any, error) {
	level := args["level"].(int)
	if level == 0 {
		return "done", nil
	}
	return map[string]any{"function": "test/nest", "level": level - 1}, nil
})

var upper = macro.HandlerFunc(func(_ context.Context, fn string, args map[string]any) (any, error) {
	return fn + ":" + args["value"].(string), nil
})

func newResolver(t *testing.T, regs ...macro.Registration) *macro.Resolver {
	t.Helper()
	r, err := macro.New(macro.Config{Handlers: regs})
	require.NoError(t, err)
	return r
}

func TestResolveScalarsUnchanged(t *testing.T) {
	r := newResolver(t)
	for _, v := range []any{"text", 42, 1.5, true, nil} {
		out, err := r.Resolve(context.Background(), v)
		require.NoError(t, err)
		assert.Equal(t, v, out)
	}
}

func TestResolveWalksTree(t *testing.T) {
	r := newResolver(t, macro.Registration{Pattern: "ns/*", Handler: upper})

	doc := map[string]any{
		"content": []any{
			map[string]any{
				"class": "article",
				"title": map[string]any{"function": "ns/title", "value": "hello"},
				"tags":  []any{map[string]any{"function": "ns/tag", "value": "a"}, "b"},
			},
		},
	}

	out, err := r.Resolve(context.Background(), doc)
	require.NoError(t, err)

	node := out.(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "ns/title:hello", node["title"])
	assert.Equal(t, []any{"ns/tag:a", "b"}, node["tags"])
	assert.Equal(t, "article", node["class"])

	again, err := r.Resolve(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, out, again, "resolving a resolved tree changes nothing")
}

func TestResolveHandlerOutputIsResolved(t *testing.T) {
	r := newResolver(t,
		macro.Registration{Pattern: "outer", Handler: macro.HandlerFunc(func(context.Context, string, map[string]any) (any, error) {
			return map[string]any{"inner": map[string]any{"function": "ns/x", "value": "v"}}, nil
		})},
		macro.Registration{Pattern: "ns/*", Handler: upper},
	)

	out, err := r.Resolve(context.Background(), map[string]any{"function": "outer"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"inner": "ns/x:v"}, out)
}

func TestFirstMatchingPatternWins(t *testing.T) {
	first := macro.HandlerFunc(func(context.Context, string, map[string]any) (any, error) { return "first", nil })
	second := macro.HandlerFunc(func(context.Context, string, map[string]any) (any, error) { return "second", nil })

	r := newResolver(t,
		macro.Registration{Pattern: "content/fetch/*", Handler: first},
		macro.Registration{Pattern: "content/**", Handler: second},
	)

	tests := []struct {
		function string
		want     string
	}{
		{"content/fetch/node", "first"},
		{"content/locate", "second"},
		{"content/fetch/deep/node", "first"},
		{"content/fetch", "second"},
	}
	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			out, err := r.Resolve(context.Background(), map[string]any{"function": tt.function})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestWildcardSpansNameSegments(t *testing.T) {
	r := newResolver(t, macro.Registration{Pattern: "ns/fetch/*", Handler: upper})

	tests := []struct {
		function string
		want     string
		found    bool
	}{
		{"ns/fetch/list", "ns/fetch/list:v", true},
		{"ns/fetch/content/list", "ns/fetch/content/list:v", true},
		{"ns/fetch", "", false},
		{"other/fetch/content/list", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.function, func(t *testing.T) {
			out, err := r.ResolveOne(context.Background(), map[string]any{"function": tt.function, "value": "v"})
			if !tt.found {
				assert.ErrorIs(t, err, core.ErrMacro)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestFunctionNameIsTrimmed(t *testing.T) {
	r := newResolver(t, macro.Registration{Pattern: "include", Handler: upper})

	for _, name := range []string{" include", "include\n", "\tinclude  "} {
		out, err := r.ResolveOne(context.Background(), map[string]any{"function": name, "value": "v"})
		require.NoError(t, err, "%q", name)
		assert.Equal(t, "include:v", out)
	}

	_, err := r.ResolveOne(context.Background(), map[string]any{"function": "   "})
	assert.ErrorIs(t, err, core.ErrMacro)
}

func TestUnregisteredFunction(t *testing.T) {
	r := newResolver(t, macro.Registration{Pattern: "ns/*", Handler: upper})

	path := execpath.New()
	ctx := execpath.WithPath(context.Background(), path)

	_, err := r.Resolve(ctx, map[string]any{
		"list": []any{"a", map[string]any{"function": "other/thing"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMacro)
	assert.Contains(t, err.Error(), "other/thing")
	assert.Equal(t, "list/[1]", path.String(), "failure position stays on the path")
}

func TestMaxDepth(t *testing.T) {
	r := newResolver(t, macro.Registration{Pattern: "test/nest", Handler: nest})
	assert.Equal(t, macro.DefaultMaxDepth, r.MaxDepth())

	out, err := r.Resolve(context.Background(), map[string]any{"function": "test/nest", "level": 50})
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	_, err = r.Resolve(context.Background(), map[string]any{"function": "test/nest", "level": 51})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMacro)

	t.Run("custom bound", func(t *testing.T) {
		r, err := macro.New(macro.Config{
			MaxDepth: 3,
			Handlers: []macro.Registration{{Pattern: "test/nest", Handler: nest}},
		})
		require.NoError(t, err)

		_, err = r.Resolve(context.Background(), map[string]any{"function": "test/nest", "level": 3})
		assert.NoError(t, err)
		_, err = r.Resolve(context.Background(), map[string]any{"function": "test/nest", "level": 4})
		assert.ErrorIs(t, err, core.ErrMacro)
	})
}

func TestResolveOne(t *testing.T) {
	r := newResolver(t,
		macro.Registration{Pattern: "test/nest", Handler: nest},
		macro.Registration{Pattern: "wrap", Handler: macro.HandlerFunc(func(context.Context, string, map[string]any) (any, error) {
			return map[string]any{"nested": map[string]any{"function": "test/nest", "level": 0}}, nil
		})},
	)
	ctx := context.Background()

	out, err := r.ResolveOne(ctx, map[string]any{"function": "test/nest", "level": 3})
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	out, err = r.ResolveOne(ctx, map[string]any{"function": "wrap"})
	require.NoError(t, err)
	nested := out.(map[string]any)["nested"]
	_, _, isInvocation := macro.Invocation(nested)
	assert.True(t, isInvocation, "nested values are left for the caller")

	out, err = r.ResolveOne(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestHandlerErrorsAreMacroErrors(t *testing.T) {
	boom := errors.New("boom")
	r := newResolver(t, macro.Registration{Pattern: "fail", Handler: macro.HandlerFunc(func(context.Context, string, map[string]any) (any, error) {
		return nil, boom
	})})

	_, err := r.Resolve(context.Background(), map[string]any{"function": "fail"})
	assert.ErrorIs(t, err, core.ErrMacro)
	assert.ErrorIs(t, err, boom)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name string
		reg  macro.Registration
	}{
		{"empty pattern", macro.Registration{Pattern: "", Handler: upper}},
		{"invalid pattern", macro.Registration{Pattern: "ns/[", Handler: upper}},
		{"nil handler", macro.Registration{Pattern: "ns/*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := macro.New(macro.Config{Handlers: []macro.Registration{tt.reg}})
			assert.ErrorIs(t, err, core.ErrMacro)
		})
	}
}
