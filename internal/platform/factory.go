package platform

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"

	"github.com/aretw0/strata/pkg/adapters/fs"
	"github.com/aretw0/strata/pkg/adapters/sqliteindex"
	"github.com/aretw0/strata/pkg/builder"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/document"
	"github.com/aretw0/strata/pkg/fields"
	"github.com/aretw0/strata/pkg/location"
	"github.com/aretw0/strata/pkg/macro"
	"github.com/aretw0/strata/pkg/macro/handlers"
)

// Engine bundles a repository with the components that build into it.
type Engine struct {
	Repository core.Repository
	Builder    *builder.Builder
	Macros     *macro.Resolver
	Locations  *location.Resolver
	Parser     *document.Parser
	Fields     *fields.Registry
	// Index is the SQLite search index opened by WithIndexPath, if any.
	Index *sqliteindex.Index

	logger  *slog.Logger
	closers []io.Closer
}

// New opens the repository at uri and wires the build components.
//
//	eng, err := strata.New("./site", strata.WithLanguages("eng-GB", "ger-DE"))
//
// The URI is adapter-specific: a directory for "fs", ignored by "memory".
func New(uri string, opts ...Option) (*Engine, error) {
	o := apply(opts)
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	repo, err := initRepository(uri, o)
	if err != nil {
		return nil, err
	}
	eng := &Engine{
		Repository: repo,
		Parser:     &document.Parser{Variables: maps.Clone(o.variables)},
		logger:     logger,
	}

	eng.Locations, err = location.New(location.Config{Repository: repo, Logger: logger})
	if err != nil {
		return nil, err
	}

	eng.Macros, err = macro.New(macro.Config{Handlers: o.macros, MaxDepth: o.maxDepth, Logger: logger})
	if err != nil {
		return nil, err
	}
	err = handlers.Register(eng.Macros, handlers.Deps{Parser: eng.Parser, Repo: repo, Locations: eng.Locations})
	if err != nil {
		return nil, err
	}

	factories := fields.Defaults()
	maps.Copy(factories, o.fields)
	eng.Fields, err = fields.NewRegistry(fields.Env{
		Repo:      repo,
		Locations: eng.Locations,
		Macros:    eng.Macros,
		Logger:    logger,
	}, factories)
	if err != nil {
		return nil, err
	}

	index := o.index
	if index == nil && o.indexPath != "" {
		path := o.indexPath
		if fsRepo, ok := repo.(*fs.Repository); ok && !filepath.IsAbs(path) {
			path = filepath.Join(fsRepo.Path, path)
		}
		eng.Index, err = sqliteindex.Open(path, sqliteindex.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrRepository, err)
		}
		eng.closers = append(eng.closers, eng.Index)
		index = eng.Index
	}

	eng.Builder, err = builder.New(builder.Config{
		Repository:      repo,
		Macros:          eng.Macros,
		Locations:       eng.Locations,
		Fields:          eng.Fields,
		Index:           index,
		Languages:       o.languages,
		DefaultLanguage: o.defaultLanguage,
		RemoteIDPrefix:  o.remoteIDPrefix,
		Logger:          logger,
	})
	if err != nil {
		_ = eng.Close()
		return nil, err
	}
	return eng, nil
}

// Close releases the resources opened by New.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	e.closers = nil
	return errors.Join(errs...)
}
