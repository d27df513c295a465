// Package fs is a content repository persisted as a directory of plain
// files:
//
//	types/**/<type>.yaml     content type schemas, maintained by hand
//	content/<id>.yaml        one file per item with all its translations
//	.strata/index.json       location tree, tag tree and id counters
//
// The repository keeps everything in memory and writes the affected files
// after every mutation. JSON can be chosen instead of YAML for item files;
// schemas may use either.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/core"
)

const (
	// DefaultSystemDir holds the tree index and marks a repository root.
	DefaultSystemDir = ".strata"
	// ContentDir holds the item files.
	ContentDir = "content"
	// TypesDir holds the content type schemas.
	TypesDir = "types"
)

// Config holds the configuration of a filesystem repository.
type Config struct {
	Path      string
	SystemDir string // default ".strata"
	// Format is the extension of item files: ".yaml" (default) or ".json".
	Format string
	// MustExist refuses to create a missing repository directory.
	MustExist bool
	// ReadOnly rejects every mutation with core.ErrReadOnly.
	ReadOnly bool
	// DryRun applies mutations in memory only.
	DryRun          bool
	DefaultLanguage string
	Logger          *slog.Logger
}

// Repository implements core.Repository on the filesystem. Reads and
// mutations are served by an embedded memory repository; its change hook
// writes the files.
type Repository struct {
	*memory.Repository

	Path        string
	config      Config
	cache       *cache
	serializers map[string]Serializer
	logger      *slog.Logger

	mu       sync.RWMutex
	schemas  []string
	saves    int
	lastSave *time.Time
}

// NewRepository returns a repository for cfg. Call Initialize before use.
func NewRepository(cfg Config) *Repository {
	if cfg.SystemDir == "" {
		cfg.SystemDir = DefaultSystemDir
	}
	if cfg.Format == "" {
		cfg.Format = ".yaml"
	}
	if !strings.HasPrefix(cfg.Format, ".") {
		cfg.Format = "." + cfg.Format
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repository{
		Repository:  memory.New(memory.WithLogger(logger), memory.WithDefaultLanguage(cfg.DefaultLanguage)),
		Path:        cfg.Path,
		config:      cfg,
		cache:       newCache(cfg.Path, cfg.SystemDir),
		serializers: DefaultSerializers(),
		logger:      logger,
	}
}

// Initialize prepares the directory and loads schemas, items and the tree.
func (r *Repository) Initialize(ctx context.Context) error {
	if _, ok := r.serializers[r.config.Format]; !ok {
		return fmt.Errorf("%w: unsupported item format %q", core.ErrRepository, r.config.Format)
	}

	info, err := os.Stat(r.Path)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: repository path is not a directory: %s", core.ErrRepository, r.Path)
	case os.IsNotExist(err) && (r.config.MustExist || r.config.ReadOnly):
		return fmt.Errorf("%w: repository path does not exist: %s", core.ErrRepository, r.Path)
	case os.IsNotExist(err):
		if err := os.MkdirAll(r.Path, 0o755); err != nil {
			return fmt.Errorf("%w: creating repository directory: %w", core.ErrRepository, err)
		}
	case err != nil:
		return fmt.Errorf("%w: %w", core.ErrRepository, err)
	}
	if !r.config.ReadOnly && !r.config.DryRun {
		if err := os.MkdirAll(filepath.Join(r.Path, r.config.SystemDir), 0o755); err != nil {
			return fmt.Errorf("%w: creating system directory: %w", core.ErrRepository, err)
		}
	}

	schemas, err := r.loadSchemas()
	if err != nil {
		return err
	}
	state, err := r.loadState()
	if err != nil {
		return err
	}

	mem := memory.New(
		memory.WithState(state),
		memory.WithSchemas(schemas...),
		memory.WithLogger(r.logger),
		memory.WithDefaultLanguage(r.config.DefaultLanguage),
	)
	mem.OnChange = r.persist
	r.Repository = mem

	r.logger.Info("repository loaded", "path", r.Path, "items", len(state.Items), "locations", len(state.Locations), "schemas", len(schemas))
	return nil
}

func (r *Repository) loadSchemas() ([]core.TypeSchema, error) {
	matches, err := doublestar.Glob(os.DirFS(r.Path), TypesDir+"/**/*.{yaml,yml,json}")
	if err != nil {
		return nil, fmt.Errorf("%w: listing schemas: %w", core.ErrRepository, err)
	}
	var out []core.TypeSchema
	seen := map[string]string{}
	for _, rel := range matches {
		var s core.TypeSchema
		if _, err := r.decodeFile(rel, &s); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrSchema, err)
		}
		if s.ID == "" {
			s.ID = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
		}
		if prev, ok := seen[s.ID]; ok {
			return nil, fmt.Errorf("%w: content type %q defined in %s and %s", core.ErrSchema, s.ID, prev, rel)
		}
		seen[s.ID] = rel
		out = append(out, s)
	}

	r.mu.Lock()
	r.schemas = matches
	r.mu.Unlock()
	return out, nil
}

func (r *Repository) loadState() (*memory.State, error) {
	state := memory.NewState()
	found, err := r.cache.Load()
	if err != nil {
		return nil, err
	}
	if found {
		tree := r.cache.Tree()
		state.NextItem = max(tree.NextItem, state.NextItem)
		state.NextLocation = max(tree.NextLocation, state.NextLocation)
		state.NextTag = max(tree.NextTag, state.NextTag)
		if tree.Locations != nil {
			state.Locations = tree.Locations
		}
		if tree.Tags != nil {
			state.Tags = tree.Tags
		}
		if _, ok := state.Locations[memory.RootLocationID]; !ok {
			return nil, fmt.Errorf("%w: tree index has no root location", core.ErrRepository)
		}
	}

	matches, err := doublestar.Glob(os.DirFS(r.Path), ContentDir+"/**/*.{yaml,yml,json}")
	if err != nil {
		return nil, fmt.Errorf("%w: listing items: %w", core.ErrRepository, err)
	}
	for _, rel := range matches {
		if strings.HasPrefix(path.Base(rel), TempFilePrefix) {
			continue
		}
		item := &core.Item{}
		data, err := r.decodeFile(rel, item)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrRepository, err)
		}
		if item.ID == 0 {
			return nil, fmt.Errorf("%w: %s: item without id", core.ErrRepository, rel)
		}
		if prev, ok := state.Items[item.ID]; ok {
			return nil, fmt.Errorf("%w: %s: item %d already loaded (%s)", core.ErrRepository, rel, item.ID, prev.Name)
		}
		normalizeItem(item)
		if item.Fields == nil {
			item.Fields = map[string]map[string]any{}
		}
		state.Items[item.ID] = item
		state.NextItem = max(state.NextItem, item.ID+1)
		r.cache.Remember(item.ID, rel, item.Version, data)
	}
	return state, nil
}

// decodeFile decodes the file at rel into v and returns its raw bytes.
func (r *Repository) decodeFile(rel string, v any) ([]byte, error) {
	s, ok := r.serializers[strings.ToLower(path.Ext(rel))]
	if !ok {
		return nil, fmt.Errorf("%s: no serializer for %q", rel, path.Ext(rel))
	}
	data, err := os.ReadFile(filepath.Join(r.Path, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	if err := s.Decode(bytes.NewReader(data), v); err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	return data, nil
}

func (r *Repository) itemFile(id int64) string {
	return ContentDir + "/" + strconv.FormatInt(id, 10) + r.config.Format
}

// persist writes the items that changed, removes the files of deleted items
// and saves the tree index. It runs under the memory repository's lock.
func (r *Repository) persist(s *memory.State) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	if r.config.DryRun {
		return nil
	}

	ser := r.serializers[r.config.Format]
	for id, item := range s.Items {
		data, err := ser.Encode(item)
		if err != nil {
			return fmt.Errorf("%w: encoding item %d: %w", core.ErrRepository, id, err)
		}
		if !r.cache.Changed(id, data) {
			continue
		}
		file := r.itemFile(id)
		if err := writeFileAtomic(filepath.Join(r.Path, filepath.FromSlash(file)), data, 0o644); err != nil {
			return fmt.Errorf("%w: %w", core.ErrRepository, err)
		}
		if moved := r.cache.Set(id, file, item.Version, data); moved != "" {
			if err := r.removeFile(moved); err != nil {
				return err
			}
		}
	}

	for _, file := range r.cache.Prune(func(id int64) bool { _, ok := s.Items[id]; return ok }) {
		if err := r.removeFile(file); err != nil {
			return err
		}
	}

	r.cache.SetTree(s.NextItem, s.NextLocation, s.NextTag, s.Locations, s.Tags)
	if err := r.cache.Save(); err != nil {
		return fmt.Errorf("%w: saving tree index: %w", core.ErrRepository, err)
	}

	now := time.Now()
	r.mu.Lock()
	r.saves++
	r.lastSave = &now
	r.mu.Unlock()
	return nil
}

func (r *Repository) removeFile(rel string) error {
	err := os.Remove(filepath.Join(r.Path, filepath.FromSlash(rel)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: removing %s: %w", core.ErrRepository, rel, err)
	}
	r.logger.Debug("item file removed", "file", rel)
	return nil
}

// SaveSchema writes a content type schema to types/<id>.yaml and registers it.
func (r *Repository) SaveSchema(s core.TypeSchema) error {
	if s.ID == "" {
		return fmt.Errorf("%w: schema without identifier", core.ErrSchema)
	}
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	if !r.config.DryRun {
		data, err := YAMLSerializer{}.Encode(s)
		if err != nil {
			return fmt.Errorf("%w: encoding schema %q: %w", core.ErrSchema, s.ID, err)
		}
		file := filepath.Join(r.Path, TypesDir, s.ID+".yaml")
		if err := writeFileAtomic(file, data, 0o644); err != nil {
			return fmt.Errorf("%w: %w", core.ErrRepository, err)
		}
		rel := TypesDir + "/" + s.ID + ".yaml"
		r.mu.Lock()
		if !slices.Contains(r.schemas, rel) {
			r.schemas = append(r.schemas, rel)
		}
		r.mu.Unlock()
	}
	return r.RegisterSchema(s)
}

// SchemaFiles lists the schema files loaded from the types directory,
// relative to the repository root.
func (r *Repository) SchemaFiles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.schemas...)
}
