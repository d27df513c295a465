// Package memory implements an in-memory content repository.
//
// It is the reference implementation of core.Repository: the filesystem
// adapter persists its state, tests use it directly, and dry runs build into
// it without touching disk.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"

	"github.com/aretw0/strata/pkg/core"
)

// RootLocationID is the id of the root location of every repository.
const RootLocationID int64 = 1

// FolderSchema is the container type used for auto-created path segments.
var FolderSchema = core.TypeSchema{
	ID:          "folder",
	NamePattern: "<short_name|name>",
	Container:   true,
	Content: map[string]string{
		"name":        "string",
		"short_name":  "string",
		"description": "richtext",
	},
}

// State is the complete, serializable content of a repository.
type State struct {
	NextItem     int64                       `json:"next_item"`
	NextLocation int64                       `json:"next_location"`
	NextTag      int64                       `json:"next_tag"`
	Items        map[int64]*core.Item        `json:"items"`
	Locations    map[int64]*core.Location    `json:"locations"`
	Tags         map[int64]*core.Tag         `json:"tags"`
	Schemas      map[string]*core.TypeSchema `json:"schemas"`
}

// NewState returns an empty state holding only the root location.
func NewState() *State {
	return &State{
		NextItem:     1,
		NextLocation: RootLocationID + 1,
		NextTag:      1,
		Items:        map[int64]*core.Item{},
		Locations: map[int64]*core.Location{
			RootLocationID: {ID: RootLocationID, RemoteID: "root", Path: "/"},
		},
		Tags:    map[int64]*core.Tag{},
		Schemas: map[string]*core.TypeSchema{},
	}
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDefaultLanguage sets the language of items created without one.
func WithDefaultLanguage(lang string) Option {
	return func(r *Repository) {
		if lang != "" {
			r.language = lang
		}
	}
}

// WithSchemas registers content type schemas.
func WithSchemas(schemas ...core.TypeSchema) Option {
	return func(r *Repository) {
		for i := range schemas {
			s := schemas[i]
			r.state.Schemas[s.ID] = &s
		}
	}
}

// WithState starts the repository from a previously captured state.
func WithState(s *State) Option {
	return func(r *Repository) {
		if s != nil {
			r.state = s
		}
	}
}

// Repository is a core.Repository held in memory. It is safe for concurrent use.
type Repository struct {
	mu       sync.RWMutex
	state    *State
	dirty    map[int64]map[string]bool
	logger   *slog.Logger
	language string

	// OnChange, when set, is called after every successful mutation while
	// the write lock is held.
	OnChange func(*State) error
}

// New returns a repository holding the root location and the folder schema.
func New(opts ...Option) *Repository {
	r := &Repository{
		state:    NewState(),
		dirty:    map[int64]map[string]bool{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		language: DefaultLanguage,
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, ok := r.state.Schemas[FolderSchema.ID]; !ok {
		folder := FolderSchema
		r.state.Schemas[folder.ID] = &folder
	}
	return r
}

var (
	_ core.Repository   = (*Repository)(nil)
	_ core.TagStore     = (*Repository)(nil)
	_ core.SchemaLister = (*Repository)(nil)
)

// RegisterSchema adds or replaces a content type schema.
func (r *Repository) RegisterSchema(s core.TypeSchema) error {
	if s.ID == "" {
		return fmt.Errorf("%w: schema without identifier", core.ErrSchema)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Schemas[s.ID] = &s
	return r.changed()
}

// Snapshot returns a deep copy of the current state.
func (r *Repository) Snapshot() *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneState(r.state)
}

func (r *Repository) changed() error {
	if r.OnChange == nil {
		return nil
	}
	return r.OnChange(r.state)
}

func (r *Repository) Root(ctx context.Context) (*core.Location, error) {
	return r.LocationByID(ctx, RootLocationID)
}

func (r *Repository) LocationByID(_ context.Context, id int64) (*core.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.state.Locations[id]
	if !ok {
		return nil, fmt.Errorf("location %d: %w", id, core.ErrNotFound)
	}
	return cloneLocation(loc), nil
}

func (r *Repository) LocationByRemoteID(_ context.Context, remoteID string) (*core.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, loc := range r.state.Locations {
		if loc.RemoteID == remoteID {
			return cloneLocation(loc), nil
		}
	}
	return nil, fmt.Errorf("location %q: %w", remoteID, core.ErrNotFound)
}

func (r *Repository) LocationByPath(_ context.Context, path string) (*core.Location, error) {
	want := core.NormalizePath(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, loc := range r.state.Locations {
		if strings.EqualFold(loc.Path, want) {
			return cloneLocation(loc), nil
		}
	}
	return nil, fmt.Errorf("path %q: %w", path, core.ErrNotFound)
}

func (r *Repository) Children(_ context.Context, parent *core.Location) ([]*core.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.state.Locations[parent.ID]; !ok {
		return nil, fmt.Errorf("location %d: %w", parent.ID, core.ErrNotFound)
	}
	var out []*core.Location
	for _, id := range r.childIDs(parent.ID) {
		out = append(out, cloneLocation(r.state.Locations[id]))
	}
	return out, nil
}

func (r *Repository) ItemByID(_ context.Context, id int64) (*core.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.state.Items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, core.ErrNotFound)
	}
	return cloneItem(item), nil
}

func (r *Repository) ItemByRemoteID(_ context.Context, remoteID string) (*core.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if item := r.itemByRemoteID(remoteID); item != nil {
		return cloneItem(item), nil
	}
	return nil, fmt.Errorf("item %q: %w", remoteID, core.ErrNotFound)
}

func (r *Repository) Schema(_ context.Context, typeID string) (*core.TypeSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.state.Schemas[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown content type %q: %w", core.ErrSchema, typeID, core.ErrNotFound)
	}
	c := *s
	return &c, nil
}

// Schemas lists all registered schemas ordered by identifier.
func (r *Repository) Schemas(_ context.Context) ([]*core.TypeSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.TypeSchema, 0, len(r.state.Schemas))
	for _, id := range slices.Sorted(maps.Keys(r.state.Schemas)) {
		c := *r.state.Schemas[id]
		out = append(out, &c)
	}
	return out, nil
}

func (r *Repository) CreateContainer(ctx context.Context, parent *core.Location, typeID, name string) (*core.Location, error) {
	schema, err := r.Schema(ctx, typeID)
	if err != nil {
		return nil, err
	}
	if !schema.Container {
		return nil, fmt.Errorf("%w: content type %q is not a container", core.ErrSchema, typeID)
	}
	item, err := r.CreateItem(ctx, core.ItemOptions{
		TypeID:   typeID,
		RemoteID: uuid.NewString(),
		Name:     name,
	})
	if err != nil {
		return nil, err
	}
	if _, ok := schema.Content["name"]; ok {
		if err := r.SetField(ctx, item, item.InitialLanguage, "name", name); err != nil {
			return nil, err
		}
	}
	if err := r.AddLocation(ctx, item, parent); err != nil {
		return nil, err
	}
	if err := r.Publish(ctx, item, core.PublishOptions{Language: item.InitialLanguage}); err != nil {
		return nil, err
	}
	item, err = r.Reload(ctx, item)
	if err != nil {
		return nil, err
	}
	return r.LocationByID(ctx, item.MainLocationID)
}

// DefaultLanguage is used for items created without a language.
const DefaultLanguage = "eng-GB"

func (r *Repository) CreateItem(_ context.Context, opts core.ItemOptions) (*core.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.state.Schemas[opts.TypeID]; !ok {
		return nil, fmt.Errorf("%w: unknown content type %q", core.ErrSchema, opts.TypeID)
	}
	if opts.RemoteID == "" {
		opts.RemoteID = uuid.NewString()
	}
	if r.itemByRemoteID(opts.RemoteID) != nil {
		return nil, fmt.Errorf("item with remote id %q already exists", opts.RemoteID)
	}
	lang := cmp.Or(opts.Language, r.language)

	id := r.state.NextItem
	r.state.NextItem++
	item := &core.Item{
		ID:              id,
		RemoteID:        opts.RemoteID,
		TypeID:          opts.TypeID,
		Name:            cmp.Or(opts.Name, "item-"+strconv.FormatInt(id, 10)),
		InitialLanguage: lang,
		Languages:       []string{lang},
		Options:         maps.Clone(opts.Options),
		Fields:          map[string]map[string]any{lang: {}},
	}
	r.state.Items[id] = item
	r.markDirty(id, lang)
	r.logger.Debug("item created", "id", id, "type", opts.TypeID, "remote_id", opts.RemoteID)
	return cloneItem(item), r.changed()
}

func (r *Repository) SetField(_ context.Context, item *core.Item, language, key string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.item(item)
	if err != nil {
		return err
	}
	if !stored.HasLanguage(language) {
		return fmt.Errorf("item %d has no translation %q", stored.ID, language)
	}
	schema := r.state.Schemas[stored.TypeID]
	if schema != nil {
		if _, ok := schema.Content[key]; !ok {
			return fmt.Errorf("%w: content type %q has no attribute %q", core.ErrSchema, stored.TypeID, key)
		}
	}
	stored.Fields[language][key] = value
	r.markDirty(stored.ID, language)
	return r.changed()
}

func (r *Repository) AddTranslation(_ context.Context, item *core.Item, language string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.item(item)
	if err != nil {
		return err
	}
	if stored.HasLanguage(language) {
		return nil
	}
	stored.Languages = append(stored.Languages, language)
	stored.Fields[language] = map[string]any{}
	r.markDirty(stored.ID, language)
	return r.changed()
}

func (r *Repository) AddLocation(_ context.Context, item *core.Item, parent *core.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.item(item)
	if err != nil {
		return err
	}
	p, ok := r.state.Locations[parent.ID]
	if !ok {
		return fmt.Errorf("parent location %d: %w", parent.ID, core.ErrNotFound)
	}
	if r.hasLocation(stored.ID, p.ID) {
		return fmt.Errorf("item %d is already placed below location %d", stored.ID, p.ID)
	}
	id := r.state.NextLocation
	r.state.NextLocation++
	r.state.Locations[id] = &core.Location{
		ID:       id,
		RemoteID: uuid.NewString(),
		ItemID:   stored.ID,
		ParentID: p.ID,
		Name:     stored.Name,
		Path:     r.uniquePath(core.JoinPath(p.Path, stored.Name)),
	}
	if stored.MainLocationID == 0 && stored.IsPublished(stored.InitialLanguage) {
		stored.MainLocationID = id
	}
	return r.changed()
}

func (r *Repository) HasLocation(_ context.Context, item *core.Item, parent *core.Location) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasLocation(item.ID, parent.ID), nil
}

func (r *Repository) Publish(_ context.Context, item *core.Item, opts core.PublishOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.item(item)
	if err != nil {
		return err
	}
	lang := cmp.Or(opts.Language, stored.InitialLanguage)
	if !stored.HasLanguage(lang) {
		return fmt.Errorf("item %d has no translation %q", stored.ID, lang)
	}
	if !opts.SkipModificationCheck && stored.IsPublished(lang) && !r.dirty[stored.ID][lang] {
		r.logger.Debug("publish skipped, no modifications", "id", stored.ID, "language", lang)
		return nil
	}
	if !stored.IsPublished(lang) {
		stored.Published = append(stored.Published, lang)
	}
	stored.Version++
	if stored.MainLocationID == 0 {
		if ids := r.itemLocationIDs(stored.ID); len(ids) > 0 {
			stored.MainLocationID = ids[0]
		}
	}
	delete(r.dirty[stored.ID], lang)
	r.logger.Debug("item published", "id", stored.ID, "language", lang, "version", stored.Version)
	return r.changed()
}

func (r *Repository) Reload(ctx context.Context, item *core.Item) (*core.Item, error) {
	return r.ItemByID(ctx, item.ID)
}

func (r *Repository) Delete(_ context.Context, item *core.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.item(item)
	if err != nil {
		return err
	}
	for _, id := range r.itemLocationIDs(stored.ID) {
		if _, ok := r.state.Locations[id]; ok {
			r.removeSubtree(id)
		}
	}
	delete(r.state.Items, stored.ID)
	delete(r.dirty, stored.ID)
	r.logger.Debug("item deleted", "id", stored.ID, "remote_id", stored.RemoteID)
	return r.changed()
}

func (r *Repository) RemoveLocation(_ context.Context, location *core.Location) error {
	if location.ID == RootLocationID {
		return fmt.Errorf("the root location cannot be removed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.Locations[location.ID]; !ok {
		return fmt.Errorf("location %d: %w", location.ID, core.ErrNotFound)
	}
	r.removeSubtree(location.ID)
	return r.changed()
}

// removeSubtree removes a location and its descendants. Items left without
// locations are deleted; items keeping other locations get a new main one.
func (r *Repository) removeSubtree(id int64) {
	ids := []int64{id}
	for i := 0; i < len(ids); i++ {
		ids = append(ids, r.childIDs(ids[i])...)
	}
	touched := map[int64]bool{}
	for _, lid := range ids {
		if loc, ok := r.state.Locations[lid]; ok {
			touched[loc.ItemID] = true
			delete(r.state.Locations, lid)
		}
	}
	for itemID := range touched {
		item, ok := r.state.Items[itemID]
		if !ok {
			continue
		}
		remaining := r.itemLocationIDs(itemID)
		if len(remaining) == 0 {
			delete(r.state.Items, itemID)
			delete(r.dirty, itemID)
			continue
		}
		if !slices.Contains(remaining, item.MainLocationID) {
			item.MainLocationID = remaining[0]
		}
	}
}

// EnsureTag returns the tag at path, creating missing levels.
func (r *Repository) EnsureTag(_ context.Context, path string) (*core.Tag, error) {
	parts := core.SplitPath(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty tag path")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var parent *core.Tag
	created := false
	for _, kw := range parts {
		kw = strings.TrimSpace(kw)
		var parentID int64
		parentPath := ""
		if parent != nil {
			parentID = parent.ID
			parentPath = parent.Path
		}
		next := r.tagBelow(parentID, kw)
		if next == nil {
			next = &core.Tag{
				ID:       r.state.NextTag,
				ParentID: parentID,
				Keyword:  kw,
				Path:     parentPath + "/" + kw,
			}
			r.state.NextTag++
			r.state.Tags[next.ID] = next
			created = true
		}
		parent = next
	}
	if created {
		if err := r.changed(); err != nil {
			return nil, err
		}
	}
	c := *parent
	return &c, nil
}

func (r *Repository) tagBelow(parentID int64, keyword string) *core.Tag {
	for _, t := range r.state.Tags {
		if t.ParentID == parentID && strings.EqualFold(t.Keyword, keyword) {
			return t
		}
	}
	return nil
}

// Stats summarizes repository content.
type Stats struct {
	Items     int `json:"items"`
	Locations int `json:"locations"`
	Tags      int `json:"tags"`
	Schemas   int `json:"schemas"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Items:     len(r.state.Items),
		Locations: len(r.state.Locations),
		Tags:      len(r.state.Tags),
		Schemas:   len(r.state.Schemas),
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)

func (r *Repository) item(item *core.Item) (*core.Item, error) {
	if item == nil {
		return nil, fmt.Errorf("nil item")
	}
	stored, ok := r.state.Items[item.ID]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", item.ID, core.ErrNotFound)
	}
	return stored, nil
}

func (r *Repository) itemByRemoteID(remoteID string) *core.Item {
	for _, item := range r.state.Items {
		if item.RemoteID == remoteID {
			return item
		}
	}
	return nil
}

func (r *Repository) hasLocation(itemID, parentID int64) bool {
	for _, loc := range r.state.Locations {
		if loc.ItemID == itemID && loc.ParentID == parentID {
			return true
		}
	}
	return false
}

func (r *Repository) itemLocationIDs(itemID int64) []int64 {
	var ids []int64
	for id, loc := range r.state.Locations {
		if loc.ItemID == itemID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *Repository) childIDs(parentID int64) []int64 {
	var ids []int64
	for id, loc := range r.state.Locations {
		if loc.ParentID == parentID && id != parentID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *Repository) uniquePath(p string) string {
	taken := func(candidate string) bool {
		for _, loc := range r.state.Locations {
			if strings.EqualFold(loc.Path, candidate) {
				return true
			}
		}
		return false
	}
	if !taken(p) {
		return p
	}
	for n := 2; ; n++ {
		candidate := p + "-" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}

func (r *Repository) markDirty(itemID int64, language string) {
	if r.dirty[itemID] == nil {
		r.dirty[itemID] = map[string]bool{}
	}
	r.dirty[itemID][language] = true
}

func cloneLocation(l *core.Location) *core.Location {
	c := *l
	return &c
}

func cloneItem(i *core.Item) *core.Item {
	c := *i
	c.Languages = slices.Clone(i.Languages)
	c.Published = slices.Clone(i.Published)
	c.Options = maps.Clone(i.Options)
	c.Fields = make(map[string]map[string]any, len(i.Fields))
	for lang, layer := range i.Fields {
		c.Fields[lang] = maps.Clone(layer)
	}
	return &c
}

func cloneState(s *State) *State {
	out := &State{
		NextItem:     s.NextItem,
		NextLocation: s.NextLocation,
		NextTag:      s.NextTag,
		Items:        make(map[int64]*core.Item, len(s.Items)),
		Locations:    make(map[int64]*core.Location, len(s.Locations)),
		Tags:         make(map[int64]*core.Tag, len(s.Tags)),
		Schemas:      make(map[string]*core.TypeSchema, len(s.Schemas)),
	}
	for id, item := range s.Items {
		out.Items[id] = cloneItem(item)
	}
	for id, loc := range s.Locations {
		out.Locations[id] = cloneLocation(loc)
	}
	for id, tag := range s.Tags {
		c := *tag
		out.Tags[id] = &c
	}
	for id, schema := range s.Schemas {
		c := *schema
		out.Schemas[id] = &c
	}
	return out
}
