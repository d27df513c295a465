package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path         string     `json:"path"`
	SystemDir    string     `json:"system_dir"`
	Format       string     `json:"format"`
	IndexedItems int        `json:"indexed_items"`
	SchemaFiles  []string   `json:"schema_files,omitempty"`
	ReadOnly     bool       `json:"read_only"`
	DryRun       bool       `json:"dry_run"`
	Saves        int        `json:"saves"`
	LastSave     *time.Time `json:"last_save,omitempty"`
	Memory       any        `json:"memory"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	mem := r.Repository.State()
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RepositoryState{
		Path:         r.Path,
		SystemDir:    r.config.SystemDir,
		Format:       r.config.Format,
		IndexedItems: r.cache.Len(),
		SchemaFiles:  r.schemas,
		ReadOnly:     r.config.ReadOnly,
		DryRun:       r.config.DryRun,
		Saves:        r.saves,
		LastSave:     r.lastSave,
		Memory:       mem,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
