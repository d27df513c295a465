// Package sqliteindex is a search index for built content, stored in a
// SQLite database.
//
// Items are buffered by Add and written in a single IMMEDIATE transaction
// by Commit, one row per item and language. Re-adding an item replaces its
// rows.
package sqliteindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/introspection"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/aretw0/strata/pkg/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	item_id     INTEGER NOT NULL,
	language    TEXT    NOT NULL,
	location_id INTEGER NOT NULL,
	remote_id   TEXT    NOT NULL,
	type_id     TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	path        TEXT    NOT NULL,
	body        TEXT    NOT NULL,
	PRIMARY KEY (item_id, language)
);
CREATE INDEX IF NOT EXISTS documents_path ON documents (path);
`

const upsert = `INSERT INTO documents
	(item_id, language, location_id, remote_id, type_id, name, path, body)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (item_id, language) DO UPDATE SET
		location_id = excluded.location_id,
		remote_id   = excluded.remote_id,
		type_id     = excluded.type_id,
		name        = excluded.name,
		path        = excluded.path,
		body        = excluded.body`

// Document is one indexed item translation.
type Document struct {
	ItemID     int64  `json:"item_id"`
	Language   string `json:"language"`
	LocationID int64  `json:"location_id"`
	RemoteID   string `json:"remote_id"`
	TypeID     string `json:"type_id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Body       string `json:"body"`
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithPoolSize sets the number of pooled connections.
func WithPoolSize(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.poolSize = n
		}
	}
}

// Index implements core.SearchIndex.
type Index struct {
	pool     *sqlitex.Pool
	path     string
	poolSize int
	logger   *slog.Logger

	mu        sync.Mutex
	pending   []Document
	committed int
}

var _ core.SearchIndex = (*Index)(nil)

// Open opens or creates the index database at path.
func Open(path string, opts ...Option) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("search index: path is required")
	}
	idx := &Index{
		path:     path,
		poolSize: 2,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(idx)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    idx.poolSize,
		PrepareConn: prepare,
	})
	if err != nil {
		return nil, fmt.Errorf("search index: opening %s: %w", path, err)
	}
	idx.pool = pool
	idx.logger.Debug("search index opened", "path", path)
	return idx, nil
}

func prepare(conn *sqlite.Conn) error {
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, schema, nil)
}

// Close releases the database. Pending documents are discarded.
func (i *Index) Close() error {
	if err := i.pool.Close(); err != nil {
		return fmt.Errorf("search index: closing %s: %w", i.path, err)
	}
	return nil
}

// Add buffers every translation of item for the next Commit.
func (i *Index) Add(_ context.Context, item *core.Item, loc *core.Location) error {
	if item == nil || loc == nil {
		return fmt.Errorf("search index: item and location are required")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, lang := range item.Languages {
		i.pending = append(i.pending, Document{
			ItemID:     item.ID,
			Language:   lang,
			LocationID: loc.ID,
			RemoteID:   item.RemoteID,
			TypeID:     item.TypeID,
			Name:       item.Name,
			Path:       loc.Path,
			Body:       body(item.Fields[lang]),
		})
	}
	return nil
}

// Commit writes the buffered documents. Nothing is written when one of
// them fails, and the documents stay buffered for the next commit.
func (i *Index) Commit(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.pending) == 0 {
		return nil
	}

	conn, err := i.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("search index: take: %w", err)
	}
	defer i.pool.Put(conn)

	if err := i.write(conn); err != nil {
		return err
	}
	i.logger.Info("search index committed", "documents", len(i.pending))
	i.committed += len(i.pending)
	i.pending = nil
	return nil
}

func (i *Index) write(conn *sqlite.Conn) (err error) {
	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("search index: begin transaction: %w", err)
	}
	defer end(&err)

	for _, d := range i.pending {
		err = sqlitex.Execute(conn, upsert, &sqlitex.ExecOptions{
			Args: []any{d.ItemID, d.Language, d.LocationID, d.RemoteID, d.TypeID, d.Name, d.Path, d.Body},
		})
		if err != nil {
			return fmt.Errorf("search index: item %d (%s): %w", d.ItemID, d.Language, err)
		}
	}
	return nil
}

// Search returns the documents whose name or body contains term, ordered
// by path. An empty language matches every language.
func (i *Index) Search(ctx context.Context, term, language string) ([]Document, error) {
	conn, err := i.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("search index: take: %w", err)
	}
	defer i.pool.Put(conn)

	pattern := "%" + strings.ToLower(term) + "%"
	var out []Document
	err = sqlitex.Execute(conn, `SELECT item_id, language, location_id, remote_id, type_id, name, path, body
		FROM documents
		WHERE (lower(name) LIKE ? OR lower(body) LIKE ?) AND (? = '' OR language = ?)
		ORDER BY path, language`, &sqlitex.ExecOptions{
		Args: []any{pattern, pattern, language, language},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, Document{
				ItemID:     stmt.ColumnInt64(0),
				Language:   stmt.ColumnText(1),
				LocationID: stmt.ColumnInt64(2),
				RemoteID:   stmt.ColumnText(3),
				TypeID:     stmt.ColumnText(4),
				Name:       stmt.ColumnText(5),
				Path:       stmt.ColumnText(6),
				Body:       stmt.ColumnText(7),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search index: search %q: %w", term, err)
	}
	return out, nil
}

// Count returns the number of stored documents.
func (i *Index) Count(ctx context.Context) (int, error) {
	conn, err := i.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("search index: take: %w", err)
	}
	defer i.pool.Put(conn)

	var n int
	err = sqlitex.Execute(conn, "SELECT count(*) FROM documents", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("search index: count: %w", err)
	}
	return n, nil
}

// body flattens the field values of one language into searchable text.
func body(fields map[string]any) string {
	var parts []string
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if s := text(fields[key]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		var parts []string
		for _, el := range t {
			if s := text(el); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case []string:
		return strings.Join(t, " ")
	case map[string]any:
		return body(t)
	}
	return fmt.Sprint(v)
}

// Stats is the introspection state of an Index.
type Stats struct {
	Path      string `json:"path"`
	Pending   int    `json:"pending"`
	Committed int    `json:"committed"`
}

// State implements introspection.Introspectable.
func (i *Index) State() any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Stats{Path: i.path, Pending: len(i.pending), Committed: i.committed}
}

// ComponentType implements introspection.Component.
func (i *Index) ComponentType() string {
	return "search-index"
}

var _ introspection.Introspectable = (*Index)(nil)
var _ introspection.Component = (*Index)(nil)
