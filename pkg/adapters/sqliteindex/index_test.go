package sqliteindex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/aretw0/strata/pkg/adapters/sqliteindex"
	"github.com/aretw0/strata/pkg/core"
)

func openIndex(t *testing.T) *sqliteindex.Index {
	t.Helper()
	idx, err := sqliteindex.Open(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

type entry struct {
	item *core.Item
	loc  *core.Location
}

func page(id int64, name string, fields map[string]map[string]any) entry {
	item := &core.Item{ID: id, RemoteID: "page-" + name, TypeID: "page", Name: name, Fields: fields}
	for lang := range fields {
		item.Languages = append(item.Languages, lang)
	}
	return entry{item: item, loc: &core.Location{ID: id + 100, ItemID: id, Path: "/" + core.Slug(name)}}
}

func add(t *testing.T, idx *sqliteindex.Index, e entry) {
	t.Helper()
	require.NoError(t, idx.Add(context.Background(), e.item, e.loc))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := sqliteindex.Open("")
	assert.Error(t, err)
}

func TestCommitAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)

	add(t, idx, page(1, "Home", map[string]map[string]any{
		"eng-GB": {"title": "Welcome home", "tags": []any{"intro", "start"}},
		"ger-DE": {"title": "Willkommen"},
	}))
	add(t, idx, page(2, "About", map[string]map[string]any{
		"eng-GB": {"title": "About us", "body": "We build HOME pages"},
	}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is written before commit")
	assert.Equal(t, 3, idx.State().(sqliteindex.Stats).Pending)

	require.NoError(t, idx.Commit(ctx))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	docs, err := idx.Search(ctx, "home", "eng-GB")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "/about", docs[0].Path)
	assert.Equal(t, "/home", docs[1].Path)
	assert.Equal(t, int64(101), docs[1].LocationID)
	assert.Equal(t, "intro start\nWelcome home", docs[1].Body)

	docs, err = idx.Search(ctx, "willkommen", "")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ger-DE", docs[0].Language)
}

func TestReAddReplaces(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t)

	add(t, idx, page(1, "Home", map[string]map[string]any{"eng-GB": {"title": "Old"}}))
	require.NoError(t, idx.Commit(ctx))
	add(t, idx, page(1, "Home", map[string]map[string]any{"eng-GB": {"title": "New"}}))
	require.NoError(t, idx.Commit(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := idx.Search(ctx, "new", "")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	st := idx.State().(sqliteindex.Stats)
	assert.Equal(t, 2, st.Committed)
	assert.Zero(t, st.Pending)
	assert.Equal(t, "search-index", idx.ComponentType())
}

func TestEmptyCommit(t *testing.T) {
	idx := openIndex(t)
	assert.NoError(t, idx.Commit(context.Background()))
}

func TestAddRequiresLocation(t *testing.T) {
	idx := openIndex(t)
	assert.Error(t, idx.Add(context.Background(), page(1, "Home", nil).item, nil))
}

func TestFailedCommitKeepsDocumentsBuffered(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "search.db")
	idx, err := sqliteindex.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	_, err = idx.Count(ctx)
	require.NoError(t, err)
	exec := func(query string) {
		conn, err := sqlite.OpenConn(path)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, sqlitex.ExecuteTransient(conn, query, nil))
	}
	exec(`CREATE TRIGGER reject BEFORE INSERT ON documents BEGIN SELECT RAISE(ABORT, 'rejected'); END`)

	add(t, idx, page(1, "Home", map[string]map[string]any{"eng-GB": {"title": "Home"}}))
	add(t, idx, page(2, "About", map[string]map[string]any{"eng-GB": {"title": "About"}}))

	require.Error(t, idx.Commit(ctx))
	st := idx.State().(sqliteindex.Stats)
	assert.Equal(t, 2, st.Pending)
	assert.Zero(t, st.Committed)
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the failed transaction is rolled back")

	exec(`DROP TRIGGER reject`)
	require.NoError(t, idx.Commit(ctx))
	st = idx.State().(sqliteindex.Stats)
	assert.Zero(t, st.Pending)
	assert.Equal(t, 2, st.Committed)
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
