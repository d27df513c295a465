package core

import "context"

// Repository defines the contract of the content repository the builder
// writes to. Adhering to this interface keeps the builder independent of the
// storage backend (in-memory, filesystem, a remote CMS API).
//
// Lookups return an error wrapping ErrNotFound when nothing matches.
type Repository interface {
	// Root returns the root location of the content tree.
	Root(ctx context.Context) (*Location, error)

	// LocationByID fetches a location by its numeric identifier.
	LocationByID(ctx context.Context, id int64) (*Location, error)

	// LocationByRemoteID fetches a location by its own remote identifier.
	LocationByRemoteID(ctx context.Context, remoteID string) (*Location, error)

	// LocationByPath fetches a location by its URL path.
	LocationByPath(ctx context.Context, path string) (*Location, error)

	// Children lists the direct children of a location in creation order.
	Children(ctx context.Context, parent *Location) ([]*Location, error)

	// ItemByID fetches an item by its numeric identifier.
	ItemByID(ctx context.Context, id int64) (*Item, error)

	// ItemByRemoteID fetches an item by its remote identifier.
	ItemByRemoteID(ctx context.Context, remoteID string) (*Item, error)

	// Schema fetches the schema of a content type.
	Schema(ctx context.Context, typeID string) (*TypeSchema, error)

	// CreateContainer creates and publishes a container item named name below
	// parent and returns its main location.
	CreateContainer(ctx context.Context, parent *Location, typeID, name string) (*Location, error)

	// CreateItem creates an unpublished item without locations.
	CreateItem(ctx context.Context, opts ItemOptions) (*Item, error)

	// SetField stores a field value of an item in a language.
	SetField(ctx context.Context, item *Item, language, key string, value any) error

	// AddTranslation adds a language to an item.
	AddTranslation(ctx context.Context, item *Item, language string) error

	// AddLocation places an item below parent.
	AddLocation(ctx context.Context, item *Item, parent *Location) error

	// HasLocation reports whether an item is already placed below parent.
	HasLocation(ctx context.Context, item *Item, parent *Location) (bool, error)

	// Publish publishes a language of an item. The first publish of an item
	// with locations assigns its main location.
	Publish(ctx context.Context, item *Item, opts PublishOptions) error

	// Reload fetches the current repository state of an item.
	Reload(ctx context.Context, item *Item) (*Item, error)

	// Delete removes an item and all its locations.
	Delete(ctx context.Context, item *Item) error

	// RemoveLocation removes a location and its subtree. Items left without
	// any location are deleted.
	RemoveLocation(ctx context.Context, location *Location) error
}

// TagStore is implemented by repositories that manage a tag tree.
type TagStore interface {
	// EnsureTag returns the tag at path, creating missing levels on the way.
	EnsureTag(ctx context.Context, path string) (*Tag, error)
}

// SchemaLister is implemented by repositories that can enumerate their schemas.
type SchemaLister interface {
	Schemas(ctx context.Context) ([]*TypeSchema, error)
}

// SearchIndex is the search-index side effect of a build. Additions are
// buffered until Commit.
type SearchIndex interface {
	Add(ctx context.Context, item *Item, location *Location) error
	Commit(ctx context.Context) error
}

// NopIndex is a SearchIndex that discards everything.
type NopIndex struct{}

func (NopIndex) Add(context.Context, *Item, *Location) error { return nil }

func (NopIndex) Commit(context.Context) error { return nil }
