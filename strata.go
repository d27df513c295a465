package strata

import (
	"context"
	"log/slog"

	"github.com/aretw0/strata/internal/platform"
	"github.com/aretw0/strata/pkg/adapters/fs"
	"github.com/aretw0/strata/pkg/builder"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/fields"
	"github.com/aretw0/strata/pkg/macro"
)

// --- Types ---

// Engine is a repository wired with the build components.
type Engine = platform.Engine

// FileReport is the outcome of applying one document file.
type FileReport = platform.FileReport

// Report is the outcome of a build.
type Report = builder.Report

// ErrNoSchema reports a repository without any content type file.
var ErrNoSchema = platform.ErrNoSchema

// --- Configuration ---

// Option configures an Engine.
type Option = platform.Option

// WithLogger sets the logger of every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRepository injects a custom repository.
func WithRepository(repo core.Repository) Option {
	return platform.WithRepository(repo)
}

// WithAdapter selects the repository adapter by name ("fs" or "memory").
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithSystemDir sets the hidden directory holding the tree index.
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithFormat sets the item file format ("yaml" or "json").
func WithFormat(ext string) Option {
	return platform.WithFormat(ext)
}

// WithMustExist requires the repository directory to exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithReadOnly opens the repository without write access.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithDryRun builds in memory without writing anything.
func WithDryRun(enabled bool) Option {
	return platform.WithDryRun(enabled)
}

// WithForceTemp forces the use of a temporary directory.
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety toggles the temporary sandbox used under `go run` and `go test`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithLanguages sets the active languages.
func WithLanguages(languages ...string) Option {
	return platform.WithLanguages(languages...)
}

// WithDefaultLanguage sets the language holding the base layer.
func WithDefaultLanguage(lang string) Option {
	return platform.WithDefaultLanguage(lang)
}

// WithRemoteIDPrefix forces the prefix of synthesized remote ids.
func WithRemoteIDPrefix(prefix string) Option {
	return platform.WithRemoteIDPrefix(prefix)
}

// WithMaxDepth bounds macro nesting.
func WithMaxDepth(depth int) Option {
	return platform.WithMaxDepth(depth)
}

// WithVariables adds "%name%" document substitutions.
func WithVariables(vars map[string]string) Option {
	return platform.WithVariables(vars)
}

// WithMacro registers a macro handler ahead of the built-in ones.
func WithMacro(pattern string, h macro.Handler) Option {
	return platform.WithMacro(pattern, h)
}

// WithFieldBuilder registers the builder of an attribute type.
func WithFieldBuilder(typeID string, f fields.Factory) Option {
	return platform.WithFieldBuilder(typeID, f)
}

// WithSearchIndex sets the search index fed by builds.
func WithSearchIndex(idx core.SearchIndex) Option {
	return platform.WithSearchIndex(idx)
}

// WithIndexPath opens a SQLite search index at path.
func WithIndexPath(path string) Option {
	return platform.WithIndexPath(path)
}

// --- Factory ---

// New opens the repository at uri and wires a build engine on it.
func New(uri string, opts ...Option) (*Engine, error) {
	return platform.New(uri, opts...)
}

// Init opens the repository at uri without wiring a builder.
func Init(uri string, opts ...Option) (core.Repository, error) {
	return platform.Init(uri, opts...)
}

// Scaffold creates a file repository holding the folder content type.
func Scaffold(ctx context.Context, path string, opts ...Option) (*fs.Repository, error) {
	return platform.Scaffold(ctx, path, opts...)
}

// FindRoot walks up from dir to the closest repository root.
func FindRoot(dir string) (string, error) {
	return platform.FindRoot(dir)
}
