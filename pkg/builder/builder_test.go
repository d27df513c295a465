package builder_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/builder"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/document"
	"github.com/aretw0/strata/pkg/fields"
	"github.com/aretw0/strata/pkg/location"
	"github.com/aretw0/strata/pkg/macro"
	"github.com/aretw0/strata/pkg/macro/handlers"
)

var pageSchema = core.TypeSchema{
	ID:          "page",
	NamePattern: "<title>",
	Container:   true,
	Content: map[string]string{
		"title":   "string",
		"menu":    "list",
		"related": "relation",
		"broken":  "broken",
	},
}

// recordingRepo remembers the order of removals and calls onCreate before
// every item creation.
type recordingRepo struct {
	*memory.Repository
	removed  []int64
	onCreate func(ctx context.Context)
}

func (r *recordingRepo) CreateItem(ctx context.Context, opts core.ItemOptions) (*core.Item, error) {
	if r.onCreate != nil {
		r.onCreate(ctx)
	}
	return r.Repository.CreateItem(ctx, opts)
}

func (r *recordingRepo) RemoveLocation(ctx context.Context, loc *core.Location) error {
	r.removed = append(r.removed, loc.ID)
	return r.Repository.RemoveLocation(ctx, loc)
}

// countingIndex counts search index traffic.
type countingIndex struct {
	added   []string
	commits int
}

func (c *countingIndex) Add(_ context.Context, item *core.Item, _ *core.Location) error {
	c.added = append(c.added, item.Name)
	return nil
}

func (c *countingIndex) Commit(context.Context) error {
	c.commits++
	return nil
}

type fixture struct {
	repo    *recordingRepo
	index   *countingIndex
	builder *builder.Builder
}

type setup struct {
	languages []string
	state     *memory.State
	factories map[string]fields.Factory
}

func newFixture(t *testing.T, s setup) *fixture {
	t.Helper()
	mem := memory.New(memory.WithState(s.state), memory.WithSchemas(pageSchema))
	repo := &recordingRepo{Repository: mem}

	locs, err := location.New(location.Config{Repository: repo})
	require.NoError(t, err)
	macros, err := macro.New(macro.Config{})
	require.NoError(t, err)
	require.NoError(t, handlers.Register(macros, handlers.Deps{
		Parser:    &document.Parser{},
		Repo:      repo,
		Locations: locs,
	}))

	factories := fields.Defaults()
	for k, f := range s.factories {
		factories[k] = f
	}
	reg, err := fields.NewRegistry(fields.Env{Repo: repo, Locations: locs, Macros: macros}, factories)
	require.NoError(t, err)

	index := &countingIndex{}
	b, err := builder.New(builder.Config{
		Repository: repo,
		Macros:     macros,
		Locations:  locs,
		Fields:     reg,
		Index:      index,
		Languages:  s.languages,
	})
	require.NoError(t, err)
	return &fixture{repo: repo, index: index, builder: b}
}

func (f *fixture) item(t *testing.T, path string) *core.Item {
	t.Helper()
	ctx := context.Background()
	loc, err := f.repo.LocationByPath(ctx, path)
	require.NoError(t, err, path)
	item, err := f.repo.ItemByID(ctx, loc.ItemID)
	require.NoError(t, err)
	return item
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := builder.New(builder.Config{})
	assert.ErrorIs(t, err, core.ErrRepository)
}

func TestLanguagesDefaultFirst(t *testing.T) {
	f := newFixture(t, setup{languages: []string{"ger-DE", "ger-AT", "ger-DE", ""}})
	assert.Equal(t, []string{"ger-DE", "ger-AT"}, f.builder.Languages())

	f = newFixture(t, setup{})
	assert.Equal(t, []string{builder.DefaultLanguage}, f.builder.Languages())
}

func TestApplyInvalidDocument(t *testing.T) {
	tests := []struct {
		name string
		root any
	}{
		{"not a mapping", []any{}},
		{"no content", map[string]any{"other": 1}},
		{"content not a sequence", map[string]any{"content": "page"}},
		{"node not a mapping", map[string]any{"content": []any{"page"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, setup{})
			report, err := f.builder.Apply(context.Background(), tt.root)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrValidation)
			require.NotNil(t, report)
			assert.Zero(t, report.Ledger.Len())
			assert.Empty(t, f.repo.Snapshot().Items)
		})
	}
}

func TestApplyBuildsTree(t *testing.T) {
	f := newFixture(t, setup{})
	ctx := context.Background()

	report, err := f.builder.Apply(ctx, map[string]any{
		"content": []any{
			map[string]any{
				"class": "page",
				"title": "Home",
				"children": []any{
					map[string]any{"class": "page", "title": "About"},
					map[string]any{"class": "page", "title": "Contact", "remote_id": "contact"},
				},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Ledger.Len())
	assert.Empty(t, report.Path)

	home := f.item(t, "/home")
	about := f.item(t, "/home/about")
	contact := f.item(t, "/home/contact")
	assert.Equal(t, "Home", field(home, builder.DefaultLanguage, "title"))
	assert.Equal(t, "About", field(about, builder.DefaultLanguage, "title"))
	assert.Equal(t, "contact", contact.RemoteID)
	assert.True(t, home.IsPublished(builder.DefaultLanguage))

	assert.Equal(t, []string{"About", "Contact", "Home"}, f.index.added, "children are indexed before their parent")
	assert.Equal(t, 1, f.index.commits)
}

func TestRemoteIDPrefixFromSource(t *testing.T) {
	f := newFixture(t, setup{})
	ctx := document.WithSource(context.Background(), "/sites/landing.yaml")

	_, err := f.builder.Apply(ctx, map[string]any{
		"content": []any{map[string]any{"class": "page", "title": "Start"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.item(t, "/start").RemoteID, "landing:"))

	f = newFixture(t, setup{})
	_, err = f.builder.Apply(ctx, map[string]any{
		"remoteIdPrefix": "campaign",
		"content":        []any{map[string]any{"class": "page", "title": "Start"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.item(t, "/start").RemoteID, "campaign:"))
}

func TestLanguageLayers(t *testing.T) {
	f := newFixture(t, setup{languages: []string{"ger-DE", "ger-AT", "ger-CH"}})

	_, err := f.builder.Apply(context.Background(), map[string]any{
		"content": []any{map[string]any{
			"class":  "page",
			"title":  "Default",
			"ger-AT": map[string]any{"title": "Servus"},
		}},
	})
	require.NoError(t, err)

	item := f.item(t, "/default")
	assert.Equal(t, "Default", field(item, "ger-DE", "title"))
	assert.Equal(t, "Servus", field(item, "ger-AT", "title"))
	assert.Equal(t, "Default", field(item, "ger-CH", "title"))
	for _, lang := range []string{"ger-DE", "ger-AT", "ger-CH"} {
		assert.True(t, item.IsPublished(lang), lang)
	}
}

func TestPostPublishSeesChildren(t *testing.T) {
	f := newFixture(t, setup{})

	// menu state of the parent each time a child is created
	var seen []bool
	f.repo.onCreate = func(ctx context.Context) {
		loc, err := f.repo.LocationByPath(ctx, "/home")
		if err != nil {
			return
		}
		home, err := f.repo.ItemByID(ctx, loc.ItemID)
		require.NoError(t, err)
		_, set := home.Field(builder.DefaultLanguage, "menu")
		seen = append(seen, set)
	}

	_, err := f.builder.Apply(context.Background(), map[string]any{
		"content": []any{map[string]any{
			"class":       "page",
			"title":       "Home",
			"postPublish": []any{"menu"},
			"menu": map[string]any{
				"function": "content/fetch/children",
				"location": "/home",
				"as":       []any{"title"},
			},
			"children": []any{
				map[string]any{"class": "page", "title": "One"},
				map[string]any{"class": "page", "title": "Two"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, []bool{false, false}, seen, "menu stays unset until the children exist")
	assert.Equal(t, []any{
		map[string]any{"title": "One"},
		map[string]any{"title": "Two"},
	}, field(f.item(t, "/home"), builder.DefaultLanguage, "menu"))
}

func TestParentNodeCreatesPath(t *testing.T) {
	f := newFixture(t, setup{})

	_, err := f.builder.Apply(context.Background(), map[string]any{
		"content": []any{map[string]any{
			"class":      "page",
			"title":      "Logo",
			"parentNode": "/media/images",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "folder", f.item(t, "/media").TypeID)
	assert.Equal(t, "folder", f.item(t, "/media/images").TypeID)
	assert.Equal(t, "Logo", f.item(t, "/media/images/logo").Name)
}

func TestOrphanIsReplaced(t *testing.T) {
	f := newFixture(t, setup{})
	ctx := context.Background()

	orphan, err := f.repo.CreateItem(ctx, core.ItemOptions{TypeID: "page", RemoteID: "home"})
	require.NoError(t, err)

	_, err = f.builder.Apply(ctx, map[string]any{
		"content": []any{map[string]any{"class": "page", "title": "Home", "remote_id": "home"}},
	})
	require.NoError(t, err)

	_, err = f.repo.ItemByID(ctx, orphan.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, "home", f.item(t, "/home").RemoteID)
}

func TestPlacedRemoteIDIsNotReplaced(t *testing.T) {
	f := newFixture(t, setup{})
	ctx := context.Background()
	doc := func() map[string]any {
		return map[string]any{
			"content": []any{map[string]any{"class": "page", "title": "Home", "remote_id": "home"}},
		}
	}

	_, err := f.builder.Apply(ctx, doc())
	require.NoError(t, err)
	report, err := f.builder.Apply(ctx, doc())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRepository)
	assert.Equal(t, "content/[0]", report.Path)
}

func TestFailureReportsPathAndLedger(t *testing.T) {
	f := newFixture(t, setup{})

	report, err := f.builder.Apply(context.Background(), map[string]any{
		"content": []any{
			map[string]any{"class": "page", "title": "First"},
			map[string]any{
				"class": "page",
				"title": "Second",
				"children": []any{
					map[string]any{"class": "page", "title": "Child", "nonsense": true},
				},
			},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSchema)
	assert.Equal(t, "content/[1]/children/[0]", report.Path)
	assert.Equal(t, "content/[1]/children/[0]", core.PathOf(err))
	assert.Equal(t, 2, report.Ledger.Len(), "created nodes stay in place")
	assert.Equal(t, 1, f.index.commits)
}

func TestFieldBuilderFailure(t *testing.T) {
	broken := func(fields.Env) (fields.FieldBuilder, error) {
		return fields.FieldBuilderFunc(func(context.Context, fields.Target, any) error {
			return errors.New("cannot convert")
		}), nil
	}
	f := newFixture(t, setup{factories: map[string]fields.Factory{"broken": broken}})

	report, err := f.builder.Apply(context.Background(), map[string]any{
		"content": []any{map[string]any{"class": "page", "title": "Home", "broken": "x"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrFieldBuilder)
	assert.Equal(t, "content/[0]/broken", report.Path)
}

func TestRelationFailureKeepsKind(t *testing.T) {
	f := newFixture(t, setup{})

	report, err := f.builder.Apply(context.Background(), map[string]any{
		"content": []any{map[string]any{"class": "page", "title": "Home", "related": "/nowhere"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrLocation)
	assert.Equal(t, "content/[0]/related", report.Path)
}

func TestUndoReversesLedger(t *testing.T) {
	state := memory.NewState()
	state.NextLocation = 100
	f := newFixture(t, setup{state: state})
	ctx := context.Background()

	report, err := f.builder.Apply(ctx, map[string]any{
		"content": []any{map[string]any{
			"class": "page",
			"title": "Home",
			"children": []any{
				map[string]any{
					"class":    "page",
					"title":    "Section",
					"children": []any{map[string]any{"class": "page", "title": "Leaf"}},
				},
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101, 102}, report.Ledger.IDs())
	assert.Equal(t, "102,101,100", report.Undo())

	res, err := f.builder.UndoLedger(ctx, report)
	require.NoError(t, err)
	assert.Equal(t, []int64{102, 101, 100}, f.repo.removed)
	assert.Equal(t, []int64{102, 101, 100}, res.Removed)
	assert.Empty(t, f.repo.Snapshot().Items)
}

func TestUndoSkipsMissing(t *testing.T) {
	f := newFixture(t, setup{})
	ctx := context.Background()

	_, err := f.builder.Apply(ctx, map[string]any{
		"content": []any{map[string]any{"class": "page", "title": "Home"}},
	})
	require.NoError(t, err)

	res, err := f.builder.Undo(ctx, []any{"/home", int64(9999), "/gone"})
	require.NoError(t, err)
	assert.Len(t, res.Removed, 1)
	assert.Equal(t, []string{"9999", "/gone"}, res.Missing)
}

func TestCreateNodeBelowParent(t *testing.T) {
	f := newFixture(t, setup{})
	ctx := context.Background()
	root, err := f.repo.Root(ctx)
	require.NoError(t, err)
	news, err := f.repo.CreateContainer(ctx, root, "folder", "News")
	require.NoError(t, err)

	loc, err := f.builder.CreateNode(ctx, news, map[string]any{"class": "page", "title": "Launch"})
	require.NoError(t, err)
	assert.Equal(t, "/news/launch", loc.Path)
	assert.Equal(t, news.ID, loc.ParentID)
}

func TestCreateNodeLeavesPathUnchanged(t *testing.T) {
	f := newFixture(t, setup{})
	ctx := context.Background()
	root, err := f.repo.Root(ctx)
	require.NoError(t, err)

	for range 2 {
		_, err := f.builder.CreateNode(ctx, root, map[string]any{"class": "page", "title": "Home", "related": "/nowhere"})
		require.Error(t, err)
		assert.Equal(t, "related", core.PathOf(err))
		assert.Empty(t, f.builder.Path().String())
	}

	_, err = f.builder.CreateNode(ctx, root, map[string]any{"class": "page", "title": "About"})
	require.NoError(t, err)
	assert.Empty(t, f.builder.Path().String())
	assert.Zero(t, f.builder.Path().Depth())
}

func TestState(t *testing.T) {
	f := newFixture(t, setup{languages: []string{"eng-GB", "fre-FR"}})
	st, ok := f.builder.State().(builder.Stats)
	require.True(t, ok)
	assert.Equal(t, []string{"eng-GB", "fre-FR"}, st.Languages)
	assert.Contains(t, st.FieldTypes, "relation")
	assert.Contains(t, st.Macros, "include")
	assert.Equal(t, "builder", f.builder.ComponentType())
}

func field(item *core.Item, language, key string) any {
	v, _ := item.Field(language, key)
	return v
}
