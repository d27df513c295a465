package builder

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/fields"
	"github.com/aretw0/strata/pkg/nodespec"
)

func (b *Builder) createNode(ctx context.Context, parentRef any, raw any) (*core.Location, error) {
	spec, err := b.specOf(ctx, raw)
	if err != nil {
		return nil, err
	}

	parent, err := b.parentOf(ctx, parentRef, spec)
	if err != nil {
		return nil, err
	}

	typeID, err := nodespec.TypeOf(spec)
	if err != nil {
		return nil, err
	}
	schema, err := b.schemaOf(ctx, typeID)
	if err != nil {
		return nil, err
	}
	info, err := b.compiler.Compile(ctx, spec, schema, b.languages, b.defaultLanguage)
	if err != nil {
		return nil, err
	}

	if err := b.removeOrphan(ctx, info.RemoteID); err != nil {
		return nil, err
	}

	lang := info.CreationLanguage()
	item, err := b.repo.CreateItem(ctx, core.ItemOptions{
		TypeID:   info.TypeID,
		RemoteID: info.RemoteID,
		Name:     info.Name,
		Language: lang,
		Options:  info.Options,
	})
	if err != nil {
		return nil, core.RepositoryFailure("create item", err)
	}
	b.logger.Debug("item created", "id", item.ID, "type", info.TypeID, "remote_id", info.RemoteID, "language", lang)

	if err := b.applyLayer(ctx, item, info, lang, false); err != nil {
		return nil, err
	}
	has, err := b.repo.HasLocation(ctx, item, parent)
	if err != nil {
		return nil, core.RepositoryFailure("location check", err)
	}
	if !has {
		if err := b.repo.AddLocation(ctx, item, parent); err != nil {
			return nil, core.RepositoryFailure("add location", err)
		}
	}
	if err := b.repo.Publish(ctx, item, core.PublishOptions{Language: lang}); err != nil {
		return nil, core.RepositoryFailure("publish", err)
	}
	if item, err = b.reload(ctx, item); err != nil {
		return nil, err
	}

	for _, other := range b.otherLanguages(info, lang) {
		if err := b.repo.AddTranslation(ctx, item, other); err != nil {
			return nil, core.RepositoryFailure("add translation "+other, err)
		}
		if err := b.applyLayer(ctx, item, info, other, false); err != nil {
			return nil, err
		}
		if err := b.repo.Publish(ctx, item, core.PublishOptions{Language: other, SkipModificationCheck: true}); err != nil {
			return nil, core.RepositoryFailure("publish "+other, err)
		}
	}
	if item, err = b.reload(ctx, item); err != nil {
		return nil, err
	}
	if item.MainLocationID == 0 {
		return nil, fmt.Errorf("%w: item %d has no main location after publishing", core.ErrRepository, item.ID)
	}
	self, err := b.repo.LocationByID(ctx, item.MainLocationID)
	if err != nil {
		return nil, core.RepositoryFailure("main location", err)
	}

	b.ledger.Append(self.ID)
	b.logger.Info("node created", "name", info.Name, "location", self.ID, "parent", parent.ID, "remote_id", info.RemoteID)

	if len(info.Children) > 0 {
		b.path.Push(nodespec.ChildrenKey)
		for i, child := range info.Children {
			b.path.Push(i)
			if _, err := b.createNode(ctx, self, child); err != nil {
				return nil, err
			}
			b.path.Pop()
		}
		b.path.Pop()
	}

	if len(info.PostPublish) > 0 {
		for _, l := range item.Languages {
			if err := b.applyLayer(ctx, item, info, l, true); err != nil {
				return nil, err
			}
			if err := b.repo.Publish(ctx, item, core.PublishOptions{Language: l, SkipModificationCheck: true}); err != nil {
				return nil, core.RepositoryFailure("publish "+l, err)
			}
		}
		if item, err = b.reload(ctx, item); err != nil {
			return nil, err
		}
	}

	if err := b.index.Add(ctx, item, self); err != nil {
		return nil, core.RepositoryFailure("search index", err)
	}
	return self, nil
}

// parentOf resolves the parent location. An explicit parentNode wins over
// the inherited parent and has its missing path segments created.
func (b *Builder) parentOf(ctx context.Context, inherited any, spec map[string]any) (*core.Location, error) {
	raw, ok := spec[nodespec.ParentKey]
	if !ok || raw == nil {
		return b.locations.MustResolve(ctx, inherited, false)
	}
	b.path.Push(nodespec.ParentKey)
	ref, err := b.macros.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	loc, err := b.locations.MustResolve(ctx, ref, true)
	if err != nil {
		return nil, err
	}
	b.path.Pop()
	spec[nodespec.ParentKey] = ref
	return loc, nil
}

// removeOrphan deletes an item left behind by an aborted build: it carries
// the remote id about to be created but was never published with a location.
func (b *Builder) removeOrphan(ctx context.Context, remoteID string) error {
	existing, err := b.repo.ItemByRemoteID(ctx, remoteID)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return core.RepositoryFailure("orphan lookup", err)
	}
	if existing.MainLocationID != 0 {
		return nil
	}
	b.logger.Warn("removing orphan item from an aborted build", "id", existing.ID, "remote_id", remoteID)
	if err := b.repo.Delete(ctx, existing); err != nil {
		return core.RepositoryFailure("delete orphan", err)
	}
	return nil
}

// otherLanguages lists the languages published after the creation language:
// recorded languages first, then the remaining active ones.
func (b *Builder) otherLanguages(info *nodespec.NodeInfo, creation string) []string {
	var out []string
	for _, l := range slices.Concat(info.Languages, b.languages) {
		if l != creation && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

// applyLayer stores the fields of one language. The first pass skips the
// post-publish keys; the deferred pass stores only those, resolving their
// values now that the children exist.
func (b *Builder) applyLayer(ctx context.Context, item *core.Item, info *nodespec.NodeInfo, lang string, deferred bool) error {
	simple := info.Layer(lang)
	for _, key := range slices.Sorted(maps.Keys(simple)) {
		if info.IsPostPublish(key) != deferred {
			continue
		}
		b.path.Push(key)
		value, err := b.valueOf(ctx, simple[key], deferred)
		if err != nil {
			return err
		}
		if err := b.repo.SetField(ctx, item, lang, key, value); err != nil {
			return core.RepositoryFailure("set field "+key, err)
		}
		b.path.Pop()
	}

	custom := info.CustomLayer(lang)
	for _, key := range slices.Sorted(maps.Keys(custom)) {
		if info.IsPostPublish(key) != deferred {
			continue
		}
		field := custom[key]
		fb, ok := b.fields.Lookup(field.Type)
		if !ok {
			return fmt.Errorf("%w: no builder for attribute type %q", core.ErrFieldBuilder, field.Type)
		}
		b.path.Push(key)
		value, err := b.valueOf(ctx, field.Value, deferred)
		if err != nil {
			return err
		}
		target := fields.Target{Item: item, Language: lang, Attribute: key, Type: field.Type}
		if err := fb.Apply(ctx, target, value); err != nil {
			return fieldFailure(key, err)
		}
		b.path.Pop()
	}
	return nil
}

func (b *Builder) schemaOf(ctx context.Context, typeID string) (*core.TypeSchema, error) {
	schema, err := b.repo.Schema(ctx, typeID)
	switch {
	case err == nil:
		return schema, nil
	case errors.Is(err, core.ErrSchema):
		return nil, err
	case errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("%w: %w", core.ErrSchema, err)
	}
	return nil, core.RepositoryFailure("schema "+typeID, err)
}

func (b *Builder) valueOf(ctx context.Context, raw any, deferred bool) (any, error) {
	if !deferred {
		return raw, nil
	}
	return b.macros.Resolve(ctx, raw)
}

func (b *Builder) reload(ctx context.Context, item *core.Item) (*core.Item, error) {
	fresh, err := b.repo.Reload(ctx, item)
	if err != nil {
		return nil, core.RepositoryFailure("reload", err)
	}
	return fresh, nil
}

// fieldFailure classifies a builder error. Errors already carrying a kind
// keep it; anything else is a field builder error.
func fieldFailure(key string, err error) error {
	for _, kind := range []error{core.ErrValidation, core.ErrMacro, core.ErrLocation, core.ErrSchema, core.ErrFieldBuilder, core.ErrRepository} {
		if errors.Is(err, kind) {
			return fmt.Errorf("field %s: %w", key, err)
		}
	}
	return fmt.Errorf("%w: field %s: %w", core.ErrFieldBuilder, key, err)
}
