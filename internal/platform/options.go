package platform

import (
	"log/slog"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/fields"
	"github.com/aretw0/strata/pkg/macro"
)

// options holds the internal configuration of an Engine.
type options struct {
	repository core.Repository
	logger     *slog.Logger
	adapter    string
	config     map[string]any

	languages       []string
	defaultLanguage string
	remoteIDPrefix  string
	maxDepth        int
	variables       map[string]string
	macros          []macro.Registration
	fields          map[string]fields.Factory

	index     core.SearchIndex
	indexPath string
}

// language returns the default language, if any was configured.
func (o *options) language() string {
	if o.defaultLanguage == "" && len(o.languages) > 0 {
		return o.languages[0]
	}
	return o.defaultLanguage
}

// Option configures an Engine.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter:   "fs",
		config:    make(map[string]any),
		variables: make(map[string]string),
		fields:    make(map[string]fields.Factory),
	}
}

func apply(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger of every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRepository injects a repository. The adapter settings are ignored.
func WithRepository(repo core.Repository) Option {
	return func(o *options) {
		o.repository = repo
	}
}

// WithAdapter selects the repository adapter by name: "fs" (default) or
// "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithSystemDir sets the name of the directory holding the tree index.
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithFormat sets the item file format of the fs adapter: "yaml" or "json".
func WithFormat(ext string) Option {
	return func(o *options) {
		o.config["format"] = ext
	}
}

// WithMustExist refuses to create a missing repository directory.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithReadOnly opens the repository without write access. Builds fail on
// their first mutation with core.ErrReadOnly.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithDryRun applies builds in memory only; nothing is written.
func WithDryRun(enabled bool) Option {
	return func(o *options) {
		o.config["dry_run"] = enabled
	}
}

// WithForceTemp relocates the repository into a temporary directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithDevSafety controls the relocation of the repository into a temporary
// directory when running under `go run` or `go test`. Enabled by default.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithLanguages sets the active languages. The first one is the default
// language unless WithDefaultLanguage says otherwise.
func WithLanguages(languages ...string) Option {
	return func(o *options) {
		o.languages = append(o.languages, languages...)
	}
}

// WithDefaultLanguage sets the language holding the base layer.
func WithDefaultLanguage(lang string) Option {
	return func(o *options) {
		o.defaultLanguage = lang
	}
}

// WithRemoteIDPrefix forces the prefix of synthesized remote ids.
func WithRemoteIDPrefix(prefix string) Option {
	return func(o *options) {
		o.remoteIDPrefix = prefix
	}
}

// WithMaxDepth bounds macro nesting. Zero keeps the default.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithVariables adds "%name%" substitutions applied to documents before
// parsing.
func WithVariables(vars map[string]string) Option {
	return func(o *options) {
		for k, v := range vars {
			o.variables[k] = v
		}
	}
}

// WithMacro registers a macro handler. Handlers registered this way are
// matched before the built-in ones.
func WithMacro(pattern string, h macro.Handler) Option {
	return func(o *options) {
		o.macros = append(o.macros, macro.Registration{Pattern: pattern, Handler: h})
	}
}

// WithFieldBuilder registers the builder factory of an attribute type,
// replacing a built-in one.
func WithFieldBuilder(typeID string, f fields.Factory) Option {
	return func(o *options) {
		o.fields[typeID] = f
	}
}

// WithSearchIndex sets the search index fed by builds.
func WithSearchIndex(idx core.SearchIndex) Option {
	return func(o *options) {
		o.index = idx
	}
}

// WithIndexPath opens a SQLite search index at path. Relative paths are
// resolved against the repository directory.
func WithIndexPath(path string) Option {
	return func(o *options) {
		o.indexPath = path
	}
}
