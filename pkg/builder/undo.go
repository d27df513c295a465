package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/introspection"

	"github.com/aretw0/strata/pkg/core"
)

// UndoResult lists what Undo removed and what it could not find.
type UndoResult struct {
	Removed []int64
	Missing []string
}

// Undo removes the referenced locations with their subtrees, in the given
// order. Pass the ledger reversed so children go before their parents.
// References that no longer resolve are skipped; other failures are
// collected and returned together once every reference was tried.
func (b *Builder) Undo(ctx context.Context, refs []any) (*UndoResult, error) {
	res := &UndoResult{}
	var errs []error
	for _, ref := range refs {
		loc, err := b.locations.Resolve(ctx, ref, false)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			errs = append(errs, fmt.Errorf("resolve %v: %w", ref, err))
			continue
		}
		if loc == nil {
			b.logger.Warn("nothing to remove", "ref", ref)
			res.Missing = append(res.Missing, fmt.Sprint(ref))
			continue
		}
		if err := b.repo.RemoveLocation(ctx, loc); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				res.Missing = append(res.Missing, fmt.Sprint(ref))
				continue
			}
			errs = append(errs, core.RepositoryFailure(fmt.Sprintf("remove location %d", loc.ID), err))
			continue
		}
		b.logger.Info("location removed", "location", loc.ID, "path", loc.Path)
		res.Removed = append(res.Removed, loc.ID)
	}
	return res, errors.Join(errs...)
}

// UndoLedger removes everything a report's ledger recorded, newest first.
func (b *Builder) UndoLedger(ctx context.Context, r *Report) (*UndoResult, error) {
	ids := r.Ledger.Reversed()
	refs := make([]any, len(ids))
	for i, id := range ids {
		refs[i] = id
	}
	return b.Undo(ctx, refs)
}

// Stats is the introspection state of a Builder.
type Stats struct {
	Languages       []string `json:"languages"`
	DefaultLanguage string   `json:"default_language"`
	RemoteIDPrefix  string   `json:"remote_id_prefix,omitempty"`
	Created         int      `json:"created"`
	Path            string   `json:"path,omitempty"`
	FieldTypes      []string `json:"field_types,omitempty"`
	Macros          []string `json:"macros"`
}

// State implements introspection.Introspectable.
func (b *Builder) State() any {
	return Stats{
		Languages:       b.Languages(),
		DefaultLanguage: b.defaultLanguage,
		RemoteIDPrefix:  b.prefix,
		Created:         b.ledger.Len(),
		Path:            b.path.String(),
		FieldTypes:      b.fields.Types(),
		Macros:          b.macros.Patterns(),
	}
}

// ComponentType implements introspection.Component.
func (b *Builder) ComponentType() string {
	return "builder"
}

var _ introspection.Introspectable = (*Builder)(nil)
var _ introspection.Component = (*Builder)(nil)
