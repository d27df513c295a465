// Package builder materializes a document into a content tree.
//
// Apply walks the document's content sequence depth first. For every node it
// resolves the parent location, compiles the node specification, creates and
// publishes the item in each active language, recurses into the children and
// finally stores the post-publish fields, which may refer to those children.
// A failure aborts the build; items created so far stay in place and are
// listed in the report's ledger for manual reversal.
package builder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/document"
	"github.com/aretw0/strata/pkg/execpath"
	"github.com/aretw0/strata/pkg/fields"
	"github.com/aretw0/strata/pkg/ledger"
	"github.com/aretw0/strata/pkg/location"
	"github.com/aretw0/strata/pkg/macro"
	"github.com/aretw0/strata/pkg/nodespec"
)

// DefaultLanguage is the active language when none is configured.
const DefaultLanguage = "eng-GB"

// Config configures a Builder.
type Config struct {
	Repository core.Repository
	Macros     *macro.Resolver
	Locations  *location.Resolver
	// Fields handles attributes whose type needs conversion. Nil stores
	// every value as it is.
	Fields *fields.Registry
	// Index receives every created item. Nil disables indexing.
	Index core.SearchIndex

	// Languages are the active languages. DefaultLanguage holds the base
	// layer and defaults to the first of them.
	Languages       []string
	DefaultLanguage string

	// RemoteIDPrefix prefixes synthesized remote ids. When empty the
	// document's remoteIdPrefix key is used, then the source file name.
	RemoteIDPrefix string

	Logger *slog.Logger
}

// Builder builds content trees. A Builder keeps the ledger and execution
// path of the current build and must not be used by concurrent builds.
type Builder struct {
	repo      core.Repository
	macros    *macro.Resolver
	locations *location.Resolver
	fields    *fields.Registry
	index     core.SearchIndex
	logger    *slog.Logger

	languages       []string
	defaultLanguage string
	prefix          string

	compiler *nodespec.Compiler
	ledger   *ledger.Ledger
	path     *execpath.Path
}

// New validates cfg and returns a builder.
func New(cfg Config) (*Builder, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("%w: builder requires a repository", core.ErrRepository)
	}
	if cfg.Macros == nil {
		return nil, fmt.Errorf("%w: builder requires a macro resolver", core.ErrMacro)
	}
	if cfg.Locations == nil {
		return nil, fmt.Errorf("%w: builder requires a location resolver", core.ErrLocation)
	}

	b := &Builder{
		repo:      cfg.Repository,
		macros:    cfg.Macros,
		locations: cfg.Locations,
		fields:    cfg.Fields,
		index:     cfg.Index,
		logger:    cfg.Logger,
		prefix:    cfg.RemoteIDPrefix,
		ledger:    ledger.New(),
		path:      execpath.New(),
	}
	if b.index == nil {
		b.index = core.NopIndex{}
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	b.defaultLanguage = cfg.DefaultLanguage
	if b.defaultLanguage == "" && len(cfg.Languages) > 0 {
		b.defaultLanguage = cfg.Languages[0]
	}
	b.defaultLanguage = cmp.Or(b.defaultLanguage, DefaultLanguage)
	b.languages = []string{b.defaultLanguage}
	for _, l := range cfg.Languages {
		if l != "" && !slices.Contains(b.languages, l) {
			b.languages = append(b.languages, l)
		}
	}

	if err := b.useCompiler(b.prefix); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Builder) useCompiler(prefix string) error {
	c, err := nodespec.New(nodespec.Config{
		Macros:         b.macros,
		Custom:         b.fields,
		RemoteIDPrefix: prefix,
		Logger:         b.logger,
	})
	if err != nil {
		return err
	}
	b.compiler = c
	return nil
}

// Languages returns the active languages, default first.
func (b *Builder) Languages() []string {
	return slices.Clone(b.languages)
}

// Ledger returns the ledger of the current build.
func (b *Builder) Ledger() *ledger.Ledger {
	return b.ledger
}

// Path returns the execution path of the current build.
func (b *Builder) Path() *execpath.Path {
	return b.path
}

// Report is the outcome of Apply.
type Report struct {
	// Ledger lists the locations created, whatever the outcome.
	Ledger *ledger.Ledger
	// Path is the execution path at the failure, empty on success.
	Path string
	Err  error
}

// Undo returns the comma separated location ids to remove, children first.
func (r *Report) Undo() string {
	return r.Ledger.String()
}

// Apply builds the tree described by root. The returned report is never nil.
func (b *Builder) Apply(ctx context.Context, root any) (*Report, error) {
	b.ledger = ledger.New()
	b.path = execpath.New()
	ctx = execpath.WithPath(ctx, b.path)

	err := b.apply(ctx, root)
	if cerr := b.index.Commit(ctx); cerr != nil {
		cerr = core.RepositoryFailure("commit search index", cerr)
		if err == nil {
			err = cerr
		} else {
			b.logger.Error("search index commit failed", "error", cerr)
		}
	}

	report := &Report{Ledger: b.ledger}
	if err != nil {
		err = b.withPath(err)
		report.Err = err
		report.Path = core.PathOf(err)
		b.logger.Error("build failed", "error", err, "path", report.Path, "undo", report.Undo())
		return report, err
	}
	b.logger.Info("build finished", "created", b.ledger.Len(), "undo", report.Undo())
	return report, nil
}

func (b *Builder) apply(ctx context.Context, root any) error {
	doc, ok := root.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: document root must be a mapping, got %T", core.ErrValidation, root)
	}
	raw, ok := doc[document.ContentKey]
	if !ok {
		return fmt.Errorf("%w: document has no %q key", core.ErrValidation, document.ContentKey)
	}

	b.path.Push(document.ContentKey)
	resolved, err := b.macros.ResolveOne(ctx, raw)
	if err != nil {
		return err
	}
	specs, ok := resolved.([]any)
	if !ok {
		return fmt.Errorf("%w: %q must be a sequence, got %T", core.ErrValidation, document.ContentKey, resolved)
	}
	b.path.Pop()

	for _, key := range slices.Sorted(maps.Keys(doc)) {
		if key == document.ContentKey {
			continue
		}
		b.path.Push(key)
		v, err := b.macros.Resolve(ctx, doc[key])
		if err != nil {
			return err
		}
		b.path.Pop()
		doc[key] = v
	}

	prefix := b.prefix
	if prefix == "" {
		if p, ok := doc[document.RemoteIDPrefixKey].(string); ok {
			prefix = p
		}
	}
	if prefix == "" {
		if src := document.SourceFromContext(ctx); src != "" {
			prefix = document.BaseName(src)
		}
	}
	if err := b.useCompiler(prefix); err != nil {
		return err
	}

	b.path.Push(document.ContentKey)
	for i, raw := range specs {
		b.path.Push(i)
		if _, err := b.createNode(ctx, "", raw); err != nil {
			return err
		}
		b.path.Pop()
	}
	b.path.Pop()
	return nil
}

// CreateNode builds spec and its subtree below parent and returns the main
// location of the created item. parent is any location reference; spec may
// still be an invocation producing the node specification. The execution
// path is the same after the call as before it, whatever the outcome.
func (b *Builder) CreateNode(ctx context.Context, parent any, spec any) (*core.Location, error) {
	b.path.Store()
	defer b.path.Restore()
	ctx = execpath.WithPath(ctx, b.path)
	loc, err := b.createNode(ctx, parent, spec)
	if err != nil {
		return nil, b.withPath(err)
	}
	return loc, nil
}

// specOf shallowly resolves a node specification.
func (b *Builder) specOf(ctx context.Context, raw any) (map[string]any, error) {
	v, err := b.macros.ResolveOne(ctx, raw)
	if err != nil {
		return nil, err
	}
	spec, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: node must be a mapping, got %T", core.ErrValidation, v)
	}
	for _, key := range []string{nodespec.ClassKey, nodespec.ChildrenKey, nodespec.PostPublishKey} {
		if _, ok := spec[key]; !ok {
			continue
		}
		b.path.Push(key)
		v, err := b.macros.ResolveOne(ctx, spec[key])
		if err != nil {
			return nil, err
		}
		b.path.Pop()
		spec[key] = v
	}
	return spec, nil
}

func (b *Builder) withPath(err error) error {
	var pe *core.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &core.PathError{Path: b.path.String(), Err: err}
}
