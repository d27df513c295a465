// Package location resolves references found in documents to locations of
// the content tree.
package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/strata/pkg/core"
)

// DefaultFolderType is the content type of auto-created path segments.
const DefaultFolderType = "folder"

// Config configures a Resolver.
type Config struct {
	Repository core.Repository
	// FolderType is the container type created by EnsurePath.
	FolderType string
	Logger     *slog.Logger
}

// Resolver turns references into locations.
type Resolver struct {
	repo       core.Repository
	folderType string
	logger     *slog.Logger
}

// New returns a resolver backed by cfg.Repository.
func New(cfg Config) (*Resolver, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("%w: location resolver requires a repository", core.ErrLocation)
	}
	r := &Resolver{
		repo:       cfg.Repository,
		folderType: cfg.FolderType,
		logger:     cfg.Logger,
	}
	if r.folderType == "" {
		r.folderType = DefaultFolderType
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r, nil
}

// Resolve returns the location ref points to, or nil when nothing matches.
// With ensureExists, missing segments of a path reference are created as
// folders first. Repository failures other than a miss are returned.
func (r *Resolver) Resolve(ctx context.Context, ref any, ensureExists bool) (*core.Location, error) {
	parsed, err := core.ParseReference(ref)
	if err != nil {
		return nil, err
	}

	switch parsed.Kind {
	case core.RefHandle:
		return parsed.Location, nil
	case core.RefID:
		return found(r.repo.LocationByID(ctx, parsed.ID))
	case core.RefPath:
		if ensureExists {
			return r.EnsurePath(ctx, parsed.Path)
		}
		return found(r.repo.LocationByPath(ctx, parsed.Path))
	case core.RefRemoteID:
		loc, err := found(r.repo.LocationByRemoteID(ctx, parsed.RemoteID))
		if loc != nil || err != nil {
			return loc, err
		}
		item, err := r.repo.ItemByRemoteID(ctx, parsed.RemoteID)
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, core.RepositoryFailure("item lookup", err)
		}
		if item.MainLocationID == 0 {
			return nil, nil
		}
		return found(r.repo.LocationByID(ctx, item.MainLocationID))
	}
	return nil, nil
}

// MustResolve is Resolve with a miss reported as ErrLocation.
func (r *Resolver) MustResolve(ctx context.Context, ref any, ensureExists bool) (*core.Location, error) {
	loc, err := r.Resolve(ctx, ref, ensureExists)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, fmt.Errorf("%w: %v does not resolve to a location", core.ErrLocation, ref)
	}
	return loc, nil
}

// EnsurePath walks path from the root and creates a folder for every
// segment that does not resolve yet.
func (r *Resolver) EnsurePath(ctx context.Context, path string) (*core.Location, error) {
	current, err := r.repo.Root(ctx)
	if err != nil {
		return nil, core.RepositoryFailure("root lookup", err)
	}
	walked := ""
	for _, segment := range core.SplitPath(path) {
		walked += "/" + segment
		next, err := found(r.repo.LocationByPath(ctx, walked))
		if err != nil {
			return nil, err
		}
		if next == nil {
			r.logger.Info("creating missing path segment", "path", walked, "type", r.folderType)
			if _, err := r.repo.CreateContainer(ctx, current, r.folderType, folderName(segment)); err != nil {
				return nil, core.RepositoryFailure("create folder "+walked, err)
			}
			if next, err = found(r.repo.LocationByPath(ctx, walked)); err != nil {
				return nil, err
			}
			if next == nil {
				return nil, fmt.Errorf("%w: created folder %q but its path does not resolve", core.ErrLocation, walked)
			}
		}
		current = next
	}
	return current, nil
}

// found maps a not-found lookup to a nil location.
func found(loc *core.Location, err error) (*core.Location, error) {
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, core.RepositoryFailure("location lookup", err)
	}
	return loc, nil
}

// folderName turns a path segment into a display name: "my-images" becomes
// "My images".
func folderName(segment string) string {
	name := strings.TrimSpace(strings.ReplaceAll(segment, "-", " "))
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
