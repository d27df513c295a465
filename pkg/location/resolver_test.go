package location_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/location"
)

func setup(t *testing.T) (*memory.Repository, *location.Resolver) {
	t.Helper()
	repo := memory.New()
	res, err := location.New(location.Config{Repository: repo})
	require.NoError(t, err)
	return repo, res
}

func TestResolveKinds(t *testing.T) {
	ctx := context.Background()
	repo, res := setup(t)

	root, err := repo.Root(ctx)
	require.NoError(t, err)
	media, err := repo.CreateContainer(ctx, root, "folder", "Media")
	require.NoError(t, err)
	mediaItem, err := repo.ItemByID(ctx, media.ItemID)
	require.NoError(t, err)

	tests := []struct {
		name string
		ref  any
		want int64
	}{
		{"handle", media, media.ID},
		{"numeric id", media.ID, media.ID},
		{"numeric string", "1", root.ID},
		{"path", "/media", media.ID},
		{"path is case insensitive", "/MEDIA/", media.ID},
		{"empty is root", "", root.ID},
		{"location remote id", media.RemoteID, media.ID},
		{"item remote id", mediaItem.RemoteID, media.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := res.Resolve(ctx, tt.ref, false)
			require.NoError(t, err)
			require.NotNil(t, loc)
			assert.Equal(t, tt.want, loc.ID)
		})
	}
}

func TestResolveMisses(t *testing.T) {
	ctx := context.Background()
	_, res := setup(t)

	for _, ref := range []any{"/nowhere", 999, "unknown-remote"} {
		loc, err := res.Resolve(ctx, ref, false)
		assert.NoError(t, err)
		assert.Nil(t, loc)
	}

	_, err := res.MustResolve(ctx, "/nowhere", false)
	assert.ErrorIs(t, err, core.ErrLocation)
}

func TestResolveUnpublishedItemRemoteID(t *testing.T) {
	ctx := context.Background()
	repo, res := setup(t)

	_, err := repo.CreateItem(ctx, core.ItemOptions{TypeID: "folder", RemoteID: "draft"})
	require.NoError(t, err)

	loc, err := res.Resolve(ctx, "draft", false)
	assert.NoError(t, err)
	assert.Nil(t, loc)
}

func TestEnsurePath(t *testing.T) {
	ctx := context.Background()
	repo, res := setup(t)

	loc, err := res.Resolve(ctx, "/media/my-images/2024", true)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "/media/my-images/2024", loc.Path)

	parent, err := repo.LocationByPath(ctx, "/media/my-images")
	require.NoError(t, err)
	assert.Equal(t, parent.ID, loc.ParentID)
	assert.Equal(t, "My images", parent.Name)

	again, err := res.Resolve(ctx, "/media/my-images/2024", true)
	require.NoError(t, err)
	assert.Equal(t, loc.ID, again.ID, "existing segments are reused")

	root, _ := repo.Root(ctx)
	children, err := repo.Children(ctx, root)
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestEnsurePathUnknownFolderType(t *testing.T) {
	repo := memory.New()
	res, err := location.New(location.Config{Repository: repo, FolderType: "missing"})
	require.NoError(t, err)

	_, err = res.Resolve(context.Background(), "/a", true)
	assert.ErrorIs(t, err, core.ErrSchema)
}

func TestNewRequiresRepository(t *testing.T) {
	_, err := location.New(location.Config{})
	assert.ErrorIs(t, err, core.ErrLocation)
}
