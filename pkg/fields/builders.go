package fields

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/aretw0/strata/pkg/core"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006",
}

// NewDateTime stores Unix timestamps. Integers are taken as they are and
// strings are parsed in a few common layouts. Unparseable values store 0.
func NewDateTime(env Env) (FieldBuilder, error) {
	return FieldBuilderFunc(func(ctx context.Context, t Target, value any) error {
		var ts int64
		switch v := value.(type) {
		case nil:
		case int:
			ts = int64(v)
		case int64:
			ts = v
		case float64:
			ts = int64(v)
		case time.Time:
			ts = v.Unix()
		case string:
			parsed, ok := parseDate(strings.TrimSpace(v))
			if !ok {
				env.Logger.Warn("unparseable date, storing 0", "attribute", t.Attribute, "value", v)
			}
			ts = parsed
		default:
			env.Logger.Warn("unsupported date value, storing 0", "attribute", t.Attribute, "type", fmt.Sprintf("%T", v))
		}
		return set(ctx, env, t, ts)
	}), nil
}

func parseDate(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}
	for _, layout := range dateLayouts {
		if tm, err := time.Parse(layout, s); err == nil {
			return tm.Unix(), true
		}
	}
	return 0, false
}

// NewRelation stores the item id of a single referenced location.
func NewRelation(env Env) (FieldBuilder, error) {
	if env.Locations == nil || env.Macros == nil {
		return nil, fmt.Errorf("relation builder requires location and macro resolvers")
	}
	return FieldBuilderFunc(func(ctx context.Context, t Target, value any) error {
		return within(ctx, func() error {
			ref, err := env.Macros.Resolve(ctx, value)
			if err != nil {
				return err
			}
			if ref == nil || ref == "" {
				return set(ctx, env, t, nil)
			}
			loc, err := env.Locations.MustResolve(ctx, ref, false)
			if err != nil {
				return err
			}
			return set(ctx, env, t, loc.ItemID)
		})
	}), nil
}

// NewRelationList stores the item ids of a list of references. References
// that do not resolve are skipped.
func NewRelationList(env Env) (FieldBuilder, error) {
	if env.Locations == nil || env.Macros == nil {
		return nil, fmt.Errorf("relationlist builder requires location and macro resolvers")
	}
	return FieldBuilderFunc(func(ctx context.Context, t Target, value any) error {
		return within(ctx, func() error {
			raw, err := env.Macros.ResolveOne(ctx, value)
			if err != nil {
				return err
			}
			ids := []int64{}
			for i, el := range list(raw) {
				err := within(ctx, func() error {
					ref, err := env.Macros.Resolve(ctx, el)
					if err != nil {
						return err
					}
					loc, err := env.Locations.Resolve(ctx, ref, false)
					if err != nil {
						return err
					}
					if loc == nil {
						env.Logger.Warn("skipping unresolvable relation", "attribute", t.Attribute, "ref", ref)
						return nil
					}
					ids = append(ids, loc.ItemID)
					return nil
				}, i)
				if err != nil {
					return err
				}
			}
			return set(ctx, env, t, ids)
		})
	}), nil
}

// NewTags stores tag ids, creating missing tags in the repository tag tree.
// A plain string is split on commas.
func NewTags(env Env) (FieldBuilder, error) {
	store, ok := env.Repo.(core.TagStore)
	if !ok {
		return nil, fmt.Errorf("repository %T does not manage tags", env.Repo)
	}
	if env.Macros == nil {
		return nil, fmt.Errorf("tags builder requires a macro resolver")
	}
	return FieldBuilderFunc(func(ctx context.Context, t Target, value any) error {
		return within(ctx, func() error {
			raw, err := env.Macros.Resolve(ctx, value)
			if err != nil {
				return err
			}
			if s, ok := raw.(string); ok {
				raw = splitList(s)
			}
			ids := []int64{}
			for _, el := range list(raw) {
				path, ok := el.(string)
				if !ok || strings.TrimSpace(path) == "" {
					continue
				}
				tag, err := store.EnsureTag(ctx, path)
				if err != nil {
					return core.RepositoryFailure("ensure tag "+path, err)
				}
				ids = append(ids, tag.ID)
			}
			return set(ctx, env, t, ids)
		})
	}), nil
}

// NewMetadata stores page metadata: title, description and keywords, with
// keywords normalized into a trimmed list.
func NewMetadata(env Env) (FieldBuilder, error) {
	return FieldBuilderFunc(func(ctx context.Context, t Target, value any) error {
		meta := map[string]any{
			"title":       "",
			"description": "",
			"keywords":    []string{},
		}
		src, ok := value.(map[string]any)
		if value != nil && !ok {
			return fmt.Errorf("metadata must be a mapping, got %T", value)
		}
		for k, v := range src {
			meta[k] = v
		}
		switch kw := meta["keywords"].(type) {
		case string:
			meta["keywords"] = splitList(kw)
		case []any:
			out := make([]string, 0, len(kw))
			for _, k := range kw {
				if s := strings.TrimSpace(fmt.Sprint(k)); s != "" {
					out = append(out, s)
				}
			}
			meta["keywords"] = out
		}
		return set(ctx, env, t, meta)
	}), nil
}

// NewRichText renders Markdown (with inline HTML) to HTML markup.
func NewRichText(env Env) (FieldBuilder, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithUnsafe(),
		),
	)
	return FieldBuilderFunc(func(ctx context.Context, t Target, value any) error {
		var src string
		switch v := value.(type) {
		case nil:
		case string:
			src = v
		default:
			return fmt.Errorf("rich text must be a string, got %T", value)
		}
		var buf bytes.Buffer
		if err := md.Convert([]byte(src), &buf); err != nil {
			return fmt.Errorf("rendering rich text: %w", err)
		}
		return set(ctx, env, t, strings.TrimSpace(buf.String()))
	}), nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
