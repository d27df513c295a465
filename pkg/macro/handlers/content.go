package handlers

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/location"
)

func refArg(args map[string]any) (any, error) {
	for _, k := range []string{"location", "path", "ref"} {
		if v, ok := args[k]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("missing argument %q", "location")
}

// Locate returns the id of a referenced location, or of its item for
// content/locate/object. Unresolvable references yield null.
//
//	function: content/locate/object
//	path: /media/images
type Locate struct {
	Locations *location.Resolver
}

func (h *Locate) Apply(ctx context.Context, function string, args map[string]any) (any, error) {
	ref, err := refArg(args)
	if err != nil {
		return nil, err
	}
	mode := path.Base(function)
	if mode != "locate" && mode != "node" && mode != "object" {
		return nil, fmt.Errorf("unknown locate mode %q", mode)
	}
	loc, err := h.Locations.Resolve(ctx, ref, false)
	if err != nil || loc == nil {
		return nil, err
	}
	if mode == "object" {
		return loc.ItemID, nil
	}
	return loc.ID, nil
}

// Fetch reads records of existing content. A record holds id, item_id,
// remote_id, location_remote_id, parent_id, name, path, type and fields.
// The "as" argument narrows a record: a list keeps the named keys, a
// mapping renames them (output key: source key). Field values are looked
// up when a key is not a record property.
//
//	function: content/fetch/children
//	location: /news
//	as: {title: title, link: path}
type Fetch struct {
	Repo      core.Repository
	Locations *location.Resolver
}

func (h *Fetch) Apply(ctx context.Context, function string, args map[string]any) (any, error) {
	ref, err := refArg(args)
	if err != nil {
		return nil, err
	}
	language, _ := args["language"].(string)
	loc, err := h.Locations.MustResolve(ctx, ref, false)
	if err != nil {
		return nil, err
	}

	switch mode := path.Base(function); mode {
	case "node":
		return h.record(ctx, loc, language, args["as"])
	case "children":
		children, err := h.Repo.Children(ctx, loc)
		if err != nil {
			return nil, core.RepositoryFailure("children", err)
		}
		return h.records(ctx, children, language, args["as"])
	case "subtree":
		var all []*core.Location
		if err := h.walk(ctx, loc, &all); err != nil {
			return nil, err
		}
		return h.records(ctx, all, language, args["as"])
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", mode)
	}
}

func (h *Fetch) walk(ctx context.Context, loc *core.Location, out *[]*core.Location) error {
	children, err := h.Repo.Children(ctx, loc)
	if err != nil {
		return core.RepositoryFailure("children", err)
	}
	for _, c := range children {
		*out = append(*out, c)
		if err := h.walk(ctx, c, out); err != nil {
			return err
		}
	}
	return nil
}

func (h *Fetch) records(ctx context.Context, locs []*core.Location, language string, as any) ([]any, error) {
	out := make([]any, 0, len(locs))
	for _, l := range locs {
		rec, err := h.record(ctx, l, language, as)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (h *Fetch) record(ctx context.Context, loc *core.Location, language string, as any) (map[string]any, error) {
	full := map[string]any{
		"id":                 loc.ID,
		"item_id":            loc.ItemID,
		"location_remote_id": loc.RemoteID,
		"parent_id":          loc.ParentID,
		"name":               loc.Name,
		"path":               loc.Path,
	}
	fields := map[string]any{}
	if loc.ItemID != 0 {
		item, err := h.Repo.ItemByID(ctx, loc.ItemID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, core.RepositoryFailure("item lookup", err)
		}
		if item != nil {
			full["remote_id"] = item.RemoteID
			full["type"] = item.TypeID
			lang := language
			if lang == "" || !item.HasLanguage(lang) {
				lang = item.InitialLanguage
			}
			fields = maps.Clone(item.Fields[lang])
		}
	}

	lookup := func(key string) any {
		if v, ok := full[key]; ok {
			return v
		}
		return fields[key]
	}

	switch sel := as.(type) {
	case nil:
		full["fields"] = fields
		return full, nil
	case []any:
		out := make(map[string]any, len(sel))
		for _, k := range sel {
			key := fmt.Sprint(k)
			out[key] = lookup(key)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(sel))
		for k, src := range sel {
			out[k] = lookup(fmt.Sprint(src))
		}
		return out, nil
	}
	return nil, fmt.Errorf("argument %q must be a list or a mapping, got %T", "as", as)
}
