package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/core"
)

// indexVersion is bumped when the layout of index.json changes.
const indexVersion = 1

// indexEntry records where an item is stored and what was last written.
type indexEntry struct {
	File         string    `json:"file"`
	Version      int       `json:"version"`
	LastModified time.Time `json:"lastModified"`
}

// treeIndex is the persisted part of the repository that is not an item:
// the location tree, the tag tree and the id counters.
type treeIndex struct {
	Version      int                      `json:"version"`
	NextItem     int64                    `json:"next_item"`
	NextLocation int64                    `json:"next_location"`
	NextTag      int64                    `json:"next_tag"`
	Locations    map[int64]*core.Location `json:"locations"`
	Tags         map[int64]*core.Tag      `json:"tags"`
	Entries      map[int64]*indexEntry    `json:"entries"`
}

// cache loads and saves the tree index and remembers the bytes last written
// for every item file so unchanged items are not rewritten.
type cache struct {
	Path string // {root}/{systemDir}/index.json

	mu      sync.Mutex
	index   *treeIndex
	written map[int64][]byte
	dirty   bool
}

func newCache(root, systemDir string) *cache {
	return &cache{
		Path:    filepath.Join(root, systemDir, "index.json"),
		index:   &treeIndex{Version: indexVersion, Entries: map[int64]*indexEntry{}},
		written: map[int64][]byte{},
	}
}

// Load reads index.json. A missing file leaves the index empty and reports
// false.
func (c *cache) Load() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading tree index: %w", err)
	}
	idx := &treeIndex{}
	if err := json.Unmarshal(data, idx); err != nil {
		return false, fmt.Errorf("%w: corrupt tree index %s: %w", core.ErrRepository, c.Path, err)
	}
	if idx.Version != indexVersion {
		return false, fmt.Errorf("%w: tree index %s has version %d, want %d", core.ErrRepository, c.Path, idx.Version, indexVersion)
	}
	if idx.Entries == nil {
		idx.Entries = map[int64]*indexEntry{}
	}
	c.index = idx
	c.dirty = false
	return true, nil
}

// Save writes index.json when something changed since the last save.
func (c *cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(c.Path, data, 0o644); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// SetTree replaces the tree part of the index.
func (c *cache) SetTree(nextItem, nextLocation, nextTag int64, locations map[int64]*core.Location, tags map[int64]*core.Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.NextItem = nextItem
	c.index.NextLocation = nextLocation
	c.index.NextTag = nextTag
	c.index.Locations = locations
	c.index.Tags = tags
	c.dirty = true
}

// Changed reports whether data differs from what was last written for id.
func (c *cache) Changed(id int64, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.written[id]
	return !ok || string(prev) != string(data)
}

// Set records a written item file and returns the file previously holding
// the item when it moved.
func (c *cache) Set(id int64, file string, version int, data []byte) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var moved string
	if prev, ok := c.index.Entries[id]; ok && prev.File != file {
		moved = prev.File
	}
	c.index.Entries[id] = &indexEntry{File: file, Version: version, LastModified: time.Now().UTC()}
	c.written[id] = data
	c.dirty = true
	return moved
}

// Remember records an item file read from disk.
func (c *cache) Remember(id int64, file string, version int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index.Entries[id]; !ok || e.File != file {
		c.index.Entries[id] = &indexEntry{File: file, Version: version}
		c.dirty = true
	}
	c.written[id] = data
}

// Prune drops the entries of items not in keep and returns their files.
func (c *cache) Prune(keep func(id int64) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var files []string
	for id, e := range c.index.Entries {
		if keep(id) {
			continue
		}
		files = append(files, e.File)
		delete(c.index.Entries, id)
		delete(c.written, id)
		c.dirty = true
	}
	return files
}

// Tree returns the loaded tree part of the index.
func (c *cache) Tree() *treeIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Len returns the number of indexed items.
func (c *cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index.Entries)
}
