package platform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/strata/pkg/adapters/fs"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/adapters/sqliteindex"
	"github.com/aretw0/strata/pkg/builder"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/document"
)

// ErrNoSchema reports a repository without any content type file.
var ErrNoSchema = errors.New("repository defines no content types")

// Init opens and initializes the repository at uri without wiring a builder.
func Init(uri string, opts ...Option) (core.Repository, error) {
	return initRepository(uri, apply(opts))
}

func initRepository(uri string, o *options) (core.Repository, error) {
	if o.repository != nil {
		return o.repository, nil
	}

	switch o.adapter {
	case "memory":
		return memory.New(memory.WithLogger(o.logger), memory.WithDefaultLanguage(o.language())), nil
	case "fs", "":
		repo := initFS(uri, o)
		if err := repo.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("%w: unknown adapter: %s", core.ErrRepository, o.adapter)
}

func initFS(path string, o *options) *fs.Repository {
	tempDir, _ := o.config["temp_dir"].(bool)
	mustExist, _ := o.config["must_exist"].(bool)
	readOnly, _ := o.config["read_only"].(bool)
	dryRun, _ := o.config["dry_run"].(bool)
	systemDir, _ := o.config["system_dir"].(string)
	format, _ := o.config["format"].(string)
	devSafety := true
	if v, ok := o.config["dev_safety"].(bool); ok {
		devSafety = v
	}

	useTemp := tempDir || (IsDevRun() && devSafety && !readOnly && !dryRun)
	resolved := ResolveRepositoryPath(path, useTemp)
	if useTemp && o.logger != nil && filepath.Clean(path) != resolved {
		o.logger.Warn("repository relocated to a temporary directory", "path", path, "resolved_path", resolved)
	}

	return fs.NewRepository(fs.Config{
		Path:            resolved,
		SystemDir:       systemDir,
		Format:          format,
		MustExist:       mustExist,
		ReadOnly:        readOnly,
		DryRun:          dryRun,
		DefaultLanguage: o.language(),
		Logger:          o.logger,
	})
}

// CheckSchema fails with ErrNoSchema when a file repository has no content
// type files. Other repositories always pass.
func (e *Engine) CheckSchema() error {
	repo, ok := e.Repository.(*fs.Repository)
	if !ok || len(repo.SchemaFiles()) > 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoSchema, filepath.Join(repo.Path, fs.TypesDir))
}

// ApplyFile parses the document at path and builds it.
func (e *Engine) ApplyFile(ctx context.Context, path string) (*builder.Report, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	doc, err := e.Parser.ParseFile(abs)
	if err != nil {
		return nil, err
	}
	e.logger.Info("applying document", "file", abs)
	return e.Builder.Apply(document.WithSource(ctx, abs), doc)
}

// FileReport is the outcome of applying one file.
type FileReport struct {
	File   string
	Report *builder.Report
}

// ApplyFiles applies every file matching the doublestar pattern, in lexical
// order, each as its own build. It stops at the first failure and returns
// the reports gathered so far, the failed one included.
func (e *Engine) ApplyFiles(ctx context.Context, pattern string) ([]FileReport, error) {
	files, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %w", core.ErrValidation, pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no document matches %q", core.ErrValidation, pattern)
	}
	slices.Sort(files)

	var out []FileReport
	for _, file := range files {
		report, err := e.ApplyFile(ctx, file)
		if report != nil {
			out = append(out, FileReport{File: file, Report: report})
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// Remove removes the locations listed in refs. Each entry may hold a comma
// separated list, as printed by a build's undo line.
func (e *Engine) Remove(ctx context.Context, refs ...string) (*builder.UndoResult, error) {
	var list []any
	for _, ref := range refs {
		for part := range strings.SplitSeq(ref, ",") {
			if part = strings.TrimSpace(part); part != "" {
				list = append(list, part)
			}
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: nothing to remove", core.ErrValidation)
	}
	return e.Builder.Undo(ctx, list)
}

// Search queries the SQLite search index.
func (e *Engine) Search(ctx context.Context, term, language string) ([]sqliteindex.Document, error) {
	if e.Index == nil {
		return nil, fmt.Errorf("%w: no search index configured", core.ErrRepository)
	}
	return e.Index.Search(ctx, term, language)
}

// Scaffold creates a file repository at path holding the folder content
// type and the tree index with its root location.
func Scaffold(ctx context.Context, path string, opts ...Option) (*fs.Repository, error) {
	o := apply(opts)
	repo := initFS(path, o)
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	if err := repo.SaveSchema(memory.FolderSchema); err != nil {
		return nil, err
	}
	return repo, nil
}
